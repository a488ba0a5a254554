package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/models"
)

func UserGetProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		// Админский токен не привязан к записи в базе
		if c.GetString("role") == "admin" {
			c.JSON(http.StatusOK, models.UserResponse{
				FirstName: "Admin",
				Role:      "admin",
				CreatedAt: time.Now(),
			})
			return
		}

		var user models.User
		if err := db.Preload("DriverDocuments").First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении профиля"})
			return
		}

		c.JSON(http.StatusOK, models.UserToResponse(user))
	}
}

func UserUpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении пользователя"})
			return
		}

		var req struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
			PhotoUrl  string `json:"photoUrl"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		// Обновляем только разрешенные поля
		updates := map[string]interface{}{}
		if req.FirstName != "" {
			updates["first_name"] = req.FirstName
		}
		if req.LastName != "" {
			updates["last_name"] = req.LastName
		}
		if req.PhotoUrl != "" {
			photoUrl := req.PhotoUrl
			if photoUrl[0] != '/' {
				photoUrl = "/" + photoUrl
			}
			updates["photo_url"] = photoUrl
		}

		if len(updates) > 0 {
			if err := db.Model(&user).Updates(updates).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении профиля"})
				return
			}
		}

		if err := db.Preload("DriverDocuments").First(&user, userID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении обновленных данных"})
			return
		}

		c.JSON(http.StatusOK, models.UserToResponse(user))
	}
}
