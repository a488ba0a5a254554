package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carpool-backend/internal/feed"
	"carpool-backend/internal/models"
	"carpool-backend/internal/services"
)

// lockForUpdate блокирует выбираемые строки до конца транзакции.
// Проверки мест и статусов под таким замком сериализуются между
// конкурентными запросами.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

type BookingRequest struct {
	RideID         uint            `json:"rideId" binding:"required"`
	SeatsCount     int             `json:"seatsCount" binding:"required,min=1"`
	PickupAddress  string          `json:"pickupAddress" binding:"required"`
	PickupLocation models.Location `json:"pickupLocation" binding:"required"`
	Comment        string          `json:"comment"`
}

// publishBooking отправляет событие об изменении бронирования в ленту.
// События несут полную строку, чтобы подписчикам не приходилось
// дотягивать бронирование отдельным запросом.
func publishBooking(bus *feed.Bus, c *gin.Context, op feed.Op, booking models.Booking) {
	change, err := feed.NewRowChange(op, "bookings", booking)
	if err != nil {
		log.Printf("Ошибка при сериализации события бронирования %d: %v", booking.ID, err)
		return
	}
	bus.Publish(c.Request.Context(), change)
}

// Создание бронирования
func BookingCreate(db *gorm.DB, bus *feed.Bus, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		userID := c.GetUint("user_id")

		var booking models.Booking
		var ride models.Ride

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := lockForUpdate(tx).First(&ride, req.RideID).Error; err != nil {
				return fmt.Errorf("Поездка не найдена")
			}

			if ride.Status != models.RideStatusScheduled {
				return fmt.Errorf("Бронировать можно только запланированные поездки")
			}
			if ride.DriverID == userID {
				return fmt.Errorf("Водитель не может бронировать собственную поездку")
			}

			// Повторное живое бронирование той же поездки запрещено
			var existing int64
			tx.Model(&models.Booking{}).
				Where("ride_id = ? AND passenger_id = ? AND status IN (?)", ride.ID, userID,
					[]string{string(models.BookingStatusPending), string(models.BookingStatusConfirmed)}).
				Count(&existing)
			if existing > 0 {
				return fmt.Errorf("У вас уже есть бронирование этой поездки")
			}

			booked, err := countBookedSeats(tx, ride.ID)
			if err != nil {
				return err
			}
			if ride.SeatsCount-booked < req.SeatsCount {
				return fmt.Errorf("Недостаточно свободных мест: осталось %d", ride.SeatsCount-booked)
			}

			booking = models.Booking{
				RideID:         ride.ID,
				PassengerID:    userID,
				SeatsCount:     req.SeatsCount,
				TotalFare:      ride.FarePerSeat * float64(req.SeatsCount),
				Status:         models.BookingStatusPending,
				PickupAddress:  req.PickupAddress,
				PickupLocation: pointString(req.PickupLocation),
				Comment:        req.Comment,
			}
			return tx.Create(&booking).Error
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := db.Preload("Passenger").First(&booking, booking.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении бронирования"})
			return
		}

		publishBooking(bus, c, feed.OpInsert, booking)

		if err := notifications.Notify(c.Request.Context(), ride.DriverID, "Новое бронирование",
			fmt.Sprintf("%s хочет забронировать %d мест", booking.Passenger.FirstName, booking.SeatsCount),
			map[string]string{"booking_id": fmt.Sprint(booking.ID)}); err != nil {
			log.Printf("Ошибка при уведомлении водителя %d: %v", ride.DriverID, err)
		}

		c.JSON(http.StatusOK, models.BookingToResponse(booking))
	}
}

// Подтверждение бронирования водителем
func BookingConfirm(db *gorm.DB, bus *feed.Bus, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var booking models.Booking
		var ride models.Ride

		err := db.Transaction(func(tx *gorm.DB) error {
			if err := lockForUpdate(tx).First(&booking, c.Param("id")).Error; err != nil {
				return fmt.Errorf("Бронирование не найдено")
			}
			// Блокировка строки поездки сериализует одновременные
			// подтверждения: проверка свободных мест идет под замком
			if err := lockForUpdate(tx).First(&ride, booking.RideID).Error; err != nil {
				return fmt.Errorf("Поездка не найдена")
			}
			if ride.DriverID != userID {
				return fmt.Errorf("Только водитель может подтверждать бронирования")
			}
			if booking.Status != models.BookingStatusPending {
				return fmt.Errorf("Бронирование уже обработано")
			}

			// Места могли разобрать, пока бронирование ожидало
			booked, err := countBookedSeats(tx, ride.ID)
			if err != nil {
				return err
			}
			if ride.SeatsCount-booked < booking.SeatsCount {
				return fmt.Errorf("Недостаточно свободных мест: осталось %d", ride.SeatsCount-booked)
			}

			booking.Status = models.BookingStatusConfirmed
			if err := tx.Save(&booking).Error; err != nil {
				return err
			}

			_, err = updateBookedSeatsTx(tx, ride.ID)
			return err
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		db.Preload("Passenger").First(&booking, booking.ID)
		db.First(&ride, ride.ID)

		publishBooking(bus, c, feed.OpUpdate, booking)
		publishRide(bus, c, feed.OpUpdate, ride)

		if err := notifications.Notify(c.Request.Context(), booking.PassengerID, "Бронирование подтверждено",
			fmt.Sprintf("Водитель подтвердил %d мест на %s", booking.SeatsCount, ride.FromAddress),
			map[string]string{"booking_id": fmt.Sprint(booking.ID)}); err != nil {
			log.Printf("Ошибка при уведомлении пассажира %d: %v", booking.PassengerID, err)
		}

		c.JSON(http.StatusOK, models.BookingToResponse(booking))
	}
}

// Отклонение бронирования водителем
func BookingReject(db *gorm.DB, bus *feed.Bus, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		userID := c.GetUint("user_id")

		var booking models.Booking
		if err := db.Preload("Ride").First(&booking, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Бронирование не найдено"})
			return
		}
		if booking.Ride.DriverID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Только водитель может отклонять бронирования"})
			return
		}
		if booking.Status != models.BookingStatusPending {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Бронирование уже обработано"})
			return
		}

		booking.Status = models.BookingStatusRejected
		booking.RejectReason = req.Reason
		if err := db.Save(&booking).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при отклонении бронирования"})
			return
		}

		publishBooking(bus, c, feed.OpUpdate, booking)

		if err := notifications.Notify(c.Request.Context(), booking.PassengerID, "Бронирование отклонено",
			"Водитель отклонил ваше бронирование",
			map[string]string{"booking_id": fmt.Sprint(booking.ID)}); err != nil {
			log.Printf("Ошибка при уведомлении пассажира %d: %v", booking.PassengerID, err)
		}

		c.JSON(http.StatusOK, models.BookingToResponse(booking))
	}
}

// Отмена бронирования пассажиром
func BookingCancel(db *gorm.DB, bus *feed.Bus, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var booking models.Booking
		if err := db.Preload("Ride").First(&booking, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Бронирование не найдено"})
			return
		}
		if booking.PassengerID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Можно отменять только свои бронирования"})
			return
		}
		if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusConfirmed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Бронирование уже закрыто"})
			return
		}

		wasConfirmed := booking.Status == models.BookingStatusConfirmed
		booking.Status = models.BookingStatusCancelled
		if err := db.Save(&booking).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при отмене бронирования"})
			return
		}

		// Подтвержденные места возвращаются в поездку
		if wasConfirmed {
			if _, err := UpdateRideBookedSeats(db, booking.RideID); err != nil {
				log.Printf("Ошибка при пересчете мест поездки %d: %v", booking.RideID, err)
			}
			var ride models.Ride
			if err := db.First(&ride, booking.RideID).Error; err == nil {
				publishRide(bus, c, feed.OpUpdate, ride)
			}
		}

		publishBooking(bus, c, feed.OpUpdate, booking)

		if err := notifications.Notify(c.Request.Context(), booking.Ride.DriverID, "Бронирование отменено",
			fmt.Sprintf("Пассажир отменил бронирование %d мест", booking.SeatsCount),
			map[string]string{"booking_id": fmt.Sprint(booking.ID)}); err != nil {
			log.Printf("Ошибка при уведомлении водителя %d: %v", booking.Ride.DriverID, err)
		}

		c.JSON(http.StatusOK, gin.H{"message": "Бронирование отменено"})
	}
}

// Список бронирований текущего пассажира
func BookingGetMine(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var bookings []models.Booking
		if err := db.Where("passenger_id = ?", userID).
			Preload("Ride").Preload("Ride.Driver").Preload("Passenger").
			Order("created_at DESC").
			Find(&bookings).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении бронирований"})
			return
		}

		response := make([]models.BookingResponse, 0, len(bookings))
		for _, booking := range bookings {
			resp := models.BookingToResponse(booking)
			rideInfo := models.RideToResponse(booking.Ride, booking.Ride.BookedSeats)
			resp.RideInfo = &rideInfo
			response = append(response, resp)
		}

		c.JSON(http.StatusOK, response)
	}
}

// Список бронирований поездки, доступен только водителю
func BookingGetForRide(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var ride models.Ride
		if err := db.First(&ride, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
			return
		}
		if ride.DriverID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к бронированиям этой поездки"})
			return
		}

		var bookings []models.Booking
		if err := db.Where("ride_id = ?", ride.ID).
			Preload("Passenger").
			Order("created_at ASC").
			Find(&bookings).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении бронирований"})
			return
		}

		response := make([]models.BookingResponse, 0, len(bookings))
		for _, booking := range bookings {
			response = append(response, models.BookingToResponse(booking))
		}

		c.JSON(http.StatusOK, response)
	}
}

// updateBookedSeatsTx пересчитывает занятые места внутри транзакции
func updateBookedSeatsTx(tx *gorm.DB, rideID uint) (int, error) {
	total, err := countBookedSeats(tx, rideID)
	if err != nil {
		return 0, err
	}
	err = tx.Model(&models.Ride{}).
		Where("id = ?", rideID).
		Updates(map[string]interface{}{
			"booked_seats": total,
			"updated_at":   time.Now(),
		}).Error
	return total, err
}
