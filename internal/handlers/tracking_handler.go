package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carpool-backend/internal/feed"
	"carpool-backend/internal/models"
)

// LiveLocationPublish принимает образец позиции участника поездки.
// На пару (поездка, пользователь) хранится одна строка: свежий
// образец перезаписывает предыдущий, подписчики получают UPDATE.
func LiveLocationPublish(db *gorm.DB, bus *feed.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		rideID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		var update models.LiveLocationUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		var ride models.Ride
		if err := db.First(&ride, rideID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
			return
		}
		if ride.Status != models.RideStatusActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Позиция публикуется только в активной поездке"})
			return
		}
		if !isRideParticipant(db, ride, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к этой поездке"})
			return
		}

		location := models.LiveLocation{
			RideID: uint(rideID),
			UserID: userID,
			Position: models.Location{
				Latitude:  update.Latitude,
				Longitude: update.Longitude,
			},
			Speed:     update.Speed,
			Heading:   update.Heading,
			Accuracy:  update.Accuracy,
			UpdatedAt: time.Now(),
		}

		if err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ride_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"latitude", "longitude", "speed", "heading", "accuracy", "updated_at",
			}),
		}).Create(&location).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при сохранении позиции"})
			return
		}

		change, err := feed.NewRowChange(feed.OpUpdate, "live_locations", location)
		if err != nil {
			log.Printf("Ошибка при сериализации позиции поездки %d: %v", rideID, err)
		} else {
			bus.Publish(c.Request.Context(), change)
		}

		c.JSON(http.StatusOK, location)
	}
}

// LiveLocationList возвращает последние известные позиции всех
// участников поездки
func LiveLocationList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var ride models.Ride
		if err := db.First(&ride, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
			return
		}
		if !isRideParticipant(db, ride, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к этой поездке"})
			return
		}

		var locations []models.LiveLocation
		if err := db.Where("ride_id = ?", ride.ID).Find(&locations).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении позиций"})
			return
		}

		c.JSON(http.StatusOK, locations)
	}
}

// isRideParticipant проверяет, что пользователь - водитель поездки
// или пассажир с живым бронированием
func isRideParticipant(db *gorm.DB, ride models.Ride, userID uint) bool {
	if ride.DriverID == userID {
		return true
	}
	var count int64
	if err := db.Model(&models.Booking{}).
		Where("ride_id = ? AND passenger_id = ? AND status IN (?)", ride.ID, userID,
			[]string{string(models.BookingStatusPending), string(models.BookingStatusConfirmed)}).
		Count(&count).Error; err != nil {
		log.Printf("Ошибка при проверке участия пользователя %d в поездке %d: %v", userID, ride.ID, err)
		return false
	}
	return count > 0
}
