package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/feed"
	"carpool-backend/internal/models"
)

type MessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// MessageSend отправляет сообщение в чат поездки
func MessageSend(db *gorm.DB, bus *feed.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		rideID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный идентификатор поездки"})
			return
		}

		var req MessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		var ride models.Ride
		if err := db.First(&ride, rideID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
			return
		}
		if !isRideParticipant(db, ride, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Чат доступен только участникам поездки"})
			return
		}

		message := models.Message{
			RideID:   uint(rideID),
			SenderID: userID,
			Text:     req.Text,
		}
		if err := db.Create(&message).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при отправке сообщения"})
			return
		}

		if err := db.Preload("Sender").First(&message, message.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении сообщения"})
			return
		}

		change, err := feed.NewRowChange(feed.OpInsert, "messages", message)
		if err != nil {
			log.Printf("Ошибка при сериализации сообщения %d: %v", message.ID, err)
		} else {
			bus.Publish(c.Request.Context(), change)
		}

		c.JSON(http.StatusOK, models.MessageToResponse(message))
	}
}

// MessageList возвращает историю чата поездки, старые сообщения первыми
func MessageList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var ride models.Ride
		if err := db.First(&ride, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
			return
		}
		if !isRideParticipant(db, ride, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Чат доступен только участникам поездки"})
			return
		}

		limit := 100
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
				limit = parsed
			}
		}

		var messages []models.Message
		if err := db.Where("ride_id = ?", ride.ID).
			Preload("Sender").
			Order("created_at DESC").
			Limit(limit).
			Find(&messages).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении сообщений"})
			return
		}

		// Выбираем свежие, отдаем в хронологическом порядке
		response := make([]models.MessageResponse, 0, len(messages))
		for i := len(messages) - 1; i >= 0; i-- {
			response = append(response, models.MessageToResponse(messages[i]))
		}

		c.JSON(http.StatusOK, response)
	}
}
