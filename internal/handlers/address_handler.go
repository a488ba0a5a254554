package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"carpool-backend/internal/geocode"
	"carpool-backend/internal/models"
)

type AddressSearchRequest struct {
	Query string `json:"query" binding:"required"`
}

type AddressSearchResponse struct {
	Addresses []AddressResult `json:"addresses"`
}

type AddressResult struct {
	Name        string          `json:"name"`
	FullAddress string          `json:"fullAddress"`
	Location    models.Location `json:"location"`
}

// SearchAddress ищет адреса по текстовому запросу. Геокодер сам
// обслуживает кеш и лимиты, поэтому короткий или неудачный запрос
// просто дает пустой список.
func SearchAddress(client *geocode.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddressSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат запроса"})
			return
		}

		results := client.Search(c.Request.Context(), req.Query)

		addresses := make([]AddressResult, 0, len(results))
		for _, item := range results {
			// Короткое имя - первая часть полного адреса
			name := item.DisplayName
			if idx := strings.Index(name, ","); idx > 0 {
				name = name[:idx]
			}
			addresses = append(addresses, AddressResult{
				Name:        name,
				FullAddress: item.DisplayName,
				Location: models.Location{
					Latitude:  item.Lat,
					Longitude: item.Lng,
				},
			})
		}

		c.JSON(http.StatusOK, AddressSearchResponse{Addresses: addresses})
	}
}

// ReverseGeocode превращает координаты в человекочитаемый адрес
func ReverseGeocode(client *geocode.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
		if latErr != nil || lngErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверные координаты"})
			return
		}

		address := client.Reverse(c.Request.Context(), lat, lng)
		c.JSON(http.StatusOK, gin.H{"address": address})
	}
}
