package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/models"
	"carpool-backend/internal/services"
)

type DriverDocumentsRequest struct {
	VehicleType          models.VehicleType `json:"vehicleType" binding:"required"`
	CarBrand             string             `json:"carBrand" binding:"required"`
	CarModel             string             `json:"carModel" binding:"required"`
	CarYear              string             `json:"carYear" binding:"required"`
	CarColor             string             `json:"carColor" binding:"required"`
	CarNumber            string             `json:"carNumber" binding:"required"`
	DriverLicenseFront   string             `json:"driverLicenseFront" binding:"required"`
	DriverLicenseBack    string             `json:"driverLicenseBack" binding:"required"`
	CarRegistrationFront string             `json:"carRegistrationFront" binding:"required"`
	CarRegistrationBack  string             `json:"carRegistrationBack" binding:"required"`
	CarPhotoFront        string             `json:"carPhotoFront"`
	CarPhotoSide         string             `json:"carPhotoSide"`
}

// Создание/обновление документов водителя. Повторная подача
// возвращает документы на модерацию.
func DriverDocumentsSubmit(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		var req DriverDocumentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		if !models.ValidVehicleType(req.VehicleType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Неизвестный тип автомобиля: %s", req.VehicleType)})
			return
		}

		var docs models.DriverDocuments
		result := db.Where("user_id = ?", userID).First(&docs)

		docs.UserID = userID
		docs.VehicleType = req.VehicleType
		docs.CarBrand = req.CarBrand
		docs.CarModel = req.CarModel
		docs.CarYear = req.CarYear
		docs.CarColor = req.CarColor
		docs.CarNumber = req.CarNumber
		docs.DriverLicenseFront = req.DriverLicenseFront
		docs.DriverLicenseBack = req.DriverLicenseBack
		docs.CarRegistrationFront = req.CarRegistrationFront
		docs.CarRegistrationBack = req.CarRegistrationBack
		docs.CarPhotoFront = req.CarPhotoFront
		docs.CarPhotoSide = req.CarPhotoSide
		docs.Status = models.DocumentStatusPending
		docs.RejectionReason = ""

		if result.Error == nil {
			docs.UpdatedAt = time.Now()
			if err := db.Save(&docs).Error; err != nil {
				log.Printf("Ошибка при обновлении документов пользователя %d: %v", userID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении документов"})
				return
			}
		} else {
			if err := db.Create(&docs).Error; err != nil {
				log.Printf("Ошибка при создании документов пользователя %d: %v", userID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании документов"})
				return
			}
		}

		c.JSON(http.StatusOK, models.DriverDocumentsToResponse(docs))
	}
}

// Получение документов водителя. Админ видит все документы.
func DriverDocumentsGet(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		if c.GetString("role") == "admin" {
			var allDocs []models.DriverDocuments
			if err := db.Preload("User").Find(&allDocs).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении документов"})
				return
			}

			response := make([]models.DriverDocumentsResponse, 0, len(allDocs))
			for _, doc := range allDocs {
				resp := models.DriverDocumentsToResponse(doc)
				user := models.UserToResponse(doc.User)
				resp.User = &user
				response = append(response, resp)
			}
			c.JSON(http.StatusOK, response)
			return
		}

		var docs models.DriverDocuments
		if err := db.Where("user_id = ?", userID).First(&docs).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Документы не найдены"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении документов"})
			return
		}

		c.JSON(http.StatusOK, models.DriverDocumentsToResponse(docs))
	}
}

// Обновление статуса документов модератором
func DriverDocumentsUpdateStatus(db *gorm.DB, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status          models.DriverDocumentStatus `json:"status" binding:"required"`
			RejectionReason string                      `json:"rejectionReason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		switch req.Status {
		case models.DocumentStatusPending, models.DocumentStatusApproved,
			models.DocumentStatusRejected, models.DocumentStatusRevision:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Неизвестный статус: %s", req.Status)})
			return
		}

		var docs models.DriverDocuments
		if err := db.First(&docs, c.Param("id")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Документы не найдены"})
			return
		}

		docs.Status = req.Status
		docs.RejectionReason = req.RejectionReason
		docs.UpdatedAt = time.Now()

		if err := db.Save(&docs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении статуса"})
			return
		}

		// Сообщаем владельцу документов об итоге модерации
		title, body := moderationMessage(req.Status, req.RejectionReason)
		if err := notifications.Notify(c.Request.Context(), docs.UserID, title, body, nil); err != nil {
			log.Printf("Ошибка при уведомлении пользователя %d: %v", docs.UserID, err)
		}

		c.JSON(http.StatusOK, models.DriverDocumentsToResponse(docs))
	}
}

func moderationMessage(status models.DriverDocumentStatus, reason string) (string, string) {
	switch status {
	case models.DocumentStatusApproved:
		return "Документы приняты", "Теперь вы можете публиковать поездки"
	case models.DocumentStatusRejected:
		return "Документы отклонены", reason
	case models.DocumentStatusRevision:
		return "Документы требуют доработки", reason
	default:
		return "Документы на модерации", ""
	}
}

// Удаление документов водителя
func DriverDocumentsDelete(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		result := db.Where("user_id = ?", userID).Delete(&models.DriverDocuments{})
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении документов"})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Документы не найдены"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Документы успешно удалены"})
	}
}
