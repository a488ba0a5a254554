package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool-backend/internal/fare"
	"carpool-backend/internal/models"
)

type FareEstimateRequest struct {
	DistanceKm  float64            `json:"distanceKm" binding:"required"`
	VehicleType models.VehicleType `json:"vehicleType" binding:"required"`
	SeatsCount  int                `json:"seatsCount" binding:"required"`
}

// FareEstimate возвращает полную раскладку стоимости поездки
func FareEstimate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FareEstimateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		breakdown, err := fare.Calculate(req.DistanceKm, req.VehicleType, req.SeatsCount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, breakdown)
	}
}

// FareSuggestedRange возвращает рекомендованный коридор цены за место
func FareSuggestedRange() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FareEstimateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		priceRange, err := fare.SuggestedRange(req.DistanceKm, req.VehicleType, req.SeatsCount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, priceRange)
	}
}
