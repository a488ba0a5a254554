package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/models"
)

// NotificationList возвращает уведомления текущего пользователя,
// свежие первыми
func NotificationList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var notifications []models.Notification
		if err := db.Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(100).
			Find(&notifications).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении уведомлений"})
			return
		}

		c.JSON(http.StatusOK, notifications)
	}
}

// NotificationMarkRead помечает уведомление прочитанным
func NotificationMarkRead(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		result := db.Model(&models.Notification{}).
			Where("id = ? AND user_id = ?", c.Param("id"), userID).
			Update("read", true)
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении уведомления"})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Уведомление не найдено"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Уведомление прочитано"})
	}
}

// NotificationMarkAllRead помечает все уведомления пользователя прочитанными
func NotificationMarkAllRead(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		if err := db.Model(&models.Notification{}).
			Where("user_id = ? AND read = ?", userID, false).
			Update("read", true).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении уведомлений"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Все уведомления прочитаны"})
	}
}
