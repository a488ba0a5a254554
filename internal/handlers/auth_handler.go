package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/models"
	"carpool-backend/internal/services"
	"carpool-backend/internal/utils"
)

type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Phone     string `json:"phone" binding:"required,e164"`
}

type VerifyCodeRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
	Code  string `json:"code" binding:"required"`
}

type SendCodeRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
}

type AuthResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Token   string              `json:"token,omitempty"`
	User    models.UserResponse `json:"user,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func AuthRegister(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Неверный формат данных",
				Error:   err.Error(),
			})
			return
		}

		// Телефон уникален: второго пользователя с таким номером быть не может
		var existingUser models.User
		if result := db.Where("phone = ?", req.Phone).First(&existingUser); result.Error == nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Пользователь с таким номером телефона уже существует",
			})
			return
		}

		user := models.User{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Role:      "user",
		}

		if result := db.Create(&user); result.Error != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при создании пользователя",
			})
			return
		}

		token, err := utils.GenerateJWT(user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при создании токена",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Token:   token,
			User:    models.UserToResponse(user),
		})
	}
}

func SendVerificationCode(whatsapp *services.WhatsAppService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SendCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Неверный формат данных",
				Error:   err.Error(),
			})
			return
		}

		// Не тратим код на номер без WhatsApp
		if err := whatsapp.CheckWhatsAppNumber(c.Request.Context(), req.Phone); err != nil {
			log.Printf("Проверка номера %s не прошла: %v", req.Phone, err)
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Номер не зарегистрирован в WhatsApp",
				Error:   err.Error(),
			})
			return
		}

		code := whatsapp.GenerateVerificationCode()
		if err := whatsapp.SendVerificationCode(c.Request.Context(), req.Phone, code); err != nil {
			log.Printf("Ошибка при отправке кода через WhatsApp: %v", err)
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при отправке кода подтверждения",
				Error:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Message: "Код подтверждения отправлен",
		})
	}
}

func VerifyCode(db *gorm.DB, whatsapp *services.WhatsAppService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Неверный формат данных",
				Error:   err.Error(),
			})
			return
		}

		isValid, err := whatsapp.VerifyCode(c.Request.Context(), req.Phone, req.Code)
		if err != nil {
			log.Printf("Ошибка при проверке кода: %v", err)
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Ошибка при проверке кода",
				Error:   err.Error(),
			})
			return
		}

		if !isValid {
			c.JSON(http.StatusBadRequest, AuthResponse{
				Success: false,
				Message: "Неверный код подтверждения",
			})
			return
		}

		var user models.User
		if result := db.Preload("DriverDocuments").Where("phone = ?", req.Phone).First(&user); result.Error != nil {
			c.JSON(http.StatusUnauthorized, AuthResponse{
				Success: false,
				Message: "Пользователь не найден",
			})
			return
		}

		token, err := utils.GenerateJWT(user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, AuthResponse{
				Success: false,
				Message: "Ошибка при создании токена",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			Token:   token,
			User:    models.UserToResponse(user),
		})
	}
}

// Получение информации о текущем пользователе
func GetCurrentUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var user models.User
		if err := db.Preload("DriverDocuments").First(&user, userID).Error; err != nil {
			c.JSON(http.StatusNotFound, AuthResponse{
				Success: false,
				Message: "Пользователь не найден",
			})
			return
		}

		c.JSON(http.StatusOK, AuthResponse{
			Success: true,
			User:    models.UserToResponse(user),
		})
	}
}

// UpdateFCMToken обновляет FCM токен пользователя
func UpdateFCMToken(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			FCMToken string `json:"fcmToken" binding:"required"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		userID := c.GetUint("user_id")

		if err := db.Model(&models.User{}).Where("id = ?", userID).Update("fcm_token", req.FCMToken).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении FCM токена"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "FCM токен успешно обновлен"})
	}
}
