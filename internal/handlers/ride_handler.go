package handlers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carpool-backend/internal/fare"
	"carpool-backend/internal/feed"
	"carpool-backend/internal/filter"
	"carpool-backend/internal/models"
	"carpool-backend/internal/services"
)

type RideRequest struct {
	FromAddress   string             `json:"fromAddress" binding:"required"`
	ToAddress     string             `json:"toAddress" binding:"required"`
	FromLocation  models.Location    `json:"fromLocation" binding:"required"`
	ToLocation    models.Location    `json:"toLocation" binding:"required"`
	DistanceKm    float64            `json:"distanceKm" binding:"required"`
	VehicleType   models.VehicleType `json:"vehicleType" binding:"required"`
	FarePerSeat   float64            `json:"farePerSeat" binding:"required"`
	SeatsCount    int                `json:"seatsCount" binding:"required"`
	DepartureDate time.Time          `json:"departureDate" binding:"required"`
	ReturnDate    *time.Time         `json:"returnDate"`
	Comment       string             `json:"comment"`
}

// pointString форматирует координаты для типа point в PostgreSQL
func pointString(loc models.Location) string {
	return fmt.Sprintf("(%f,%f)", loc.Latitude, loc.Longitude)
}

// publishRide отправляет событие об изменении поездки в ленту
func publishRide(bus *feed.Bus, c *gin.Context, op feed.Op, ride models.Ride) {
	change, err := feed.NewRowChange(op, "rides", ride)
	if err != nil {
		log.Printf("Ошибка при сериализации события поездки %d: %v", ride.ID, err)
		return
	}
	bus.Publish(c.Request.Context(), change)
}

// Создание новой поездки
func RideCreate(db *gorm.DB, bus *feed.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		userID := c.GetUint("user_id")

		// Публиковать поездки могут только водители с принятыми документами
		var docs models.DriverDocuments
		if err := db.Where("user_id = ?", userID).First(&docs).Error; err != nil || docs.Status != models.DocumentStatusApproved {
			c.JSON(http.StatusForbidden, gin.H{"error": "Для публикации поездок нужны подтвержденные документы водителя"})
			return
		}

		if req.DepartureDate.Before(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Дата отправления должна быть в будущем"})
			return
		}

		// Цена за место должна попадать в рекомендованный коридор
		priceRange, err := fare.SuggestedRange(req.DistanceKm, req.VehicleType, req.SeatsCount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.FarePerSeat < priceRange.Min || req.FarePerSeat > priceRange.Max {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    "Цена за место выходит за рекомендованные пределы",
				"min_fare": priceRange.Min,
				"max_fare": priceRange.Max,
			})
			return
		}

		ride := models.Ride{
			DriverID:      userID,
			FromAddress:   req.FromAddress,
			ToAddress:     req.ToAddress,
			FromLocation:  pointString(req.FromLocation),
			ToLocation:    pointString(req.ToLocation),
			Status:        models.RideStatusScheduled,
			DistanceKm:    req.DistanceKm,
			VehicleType:   req.VehicleType,
			FarePerSeat:   req.FarePerSeat,
			SeatsCount:    req.SeatsCount,
			DepartureDate: req.DepartureDate,
			ReturnDate:    req.ReturnDate,
			Comment:       req.Comment,
		}

		if err := db.Create(&ride).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании поездки"})
			return
		}

		if err := db.Preload("Driver").First(&ride, ride.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении данных поездки"})
			return
		}

		publishRide(bus, c, feed.OpInsert, ride)

		c.JSON(http.StatusOK, models.RideToResponse(ride, 0))
	}
}

// Обновление поездки. Разрешено только водителю и только пока
// поездка не началась.
func RideUpdate(db *gorm.DB, bus *feed.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		rideID := c.Param("id")
		userID := c.GetUint("user_id")

		var ride models.Ride
		if err := db.First(&ride, rideID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
			return
		}

		if ride.DriverID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Только водитель может редактировать поездку"})
			return
		}

		if ride.Status != models.RideStatusScheduled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Можно редактировать только запланированные поездки"})
			return
		}

		if req.DepartureDate.Before(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Дата отправления должна быть в будущем"})
			return
		}

		priceRange, err := fare.SuggestedRange(req.DistanceKm, req.VehicleType, req.SeatsCount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.FarePerSeat < priceRange.Min || req.FarePerSeat > priceRange.Max {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    "Цена за место выходит за рекомендованные пределы",
				"min_fare": priceRange.Min,
				"max_fare": priceRange.Max,
			})
			return
		}

		ride.FromAddress = req.FromAddress
		ride.ToAddress = req.ToAddress
		ride.FromLocation = pointString(req.FromLocation)
		ride.ToLocation = pointString(req.ToLocation)
		ride.DistanceKm = req.DistanceKm
		ride.VehicleType = req.VehicleType
		ride.FarePerSeat = req.FarePerSeat
		ride.SeatsCount = req.SeatsCount
		ride.DepartureDate = req.DepartureDate
		ride.ReturnDate = req.ReturnDate
		ride.Comment = req.Comment

		if err := db.Save(&ride).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении поездки"})
			return
		}

		if err := db.Preload("Driver").First(&ride, ride.ID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении данных поездки"})
			return
		}

		publishRide(bus, c, feed.OpUpdate, ride)

		c.JSON(http.StatusOK, models.RideToResponse(ride, ride.BookedSeats))
	}
}

// transitionRide переводит поездку в новый статус под блокировкой строки
func transitionRide(db *gorm.DB, rideID string, userID uint, to models.RideStatus, reason string) (models.Ride, int, string) {
	var ride models.Ride

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&ride, rideID).Error; err != nil {
			return errRideNotFound
		}

		if ride.DriverID != userID {
			return errRideForbidden
		}

		if !models.CanTransitionRide(ride.Status, to) {
			return errRideTransition
		}

		updates := map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		}
		if reason != "" {
			updates["cancellation_reason"] = reason
		}
		if err := tx.Model(&ride).Updates(updates).Error; err != nil {
			return err
		}
		ride.Status = to
		ride.CancellationReason = reason

		// Отмена поездки каскадно отменяет живые бронирования
		if to == models.RideStatusCancelled {
			if err := tx.Model(&models.Booking{}).
				Where("ride_id = ? AND status IN (?)", ride.ID,
					[]string{string(models.BookingStatusPending), string(models.BookingStatusConfirmed)}).
				Updates(map[string]interface{}{
					"status":     models.BookingStatusCancelled,
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})

	switch err {
	case nil:
		return ride, http.StatusOK, ""
	case errRideNotFound:
		return ride, http.StatusNotFound, "Поездка не найдена"
	case errRideForbidden:
		return ride, http.StatusForbidden, "Только водитель может менять статус поездки"
	case errRideTransition:
		return ride, http.StatusBadRequest, fmt.Sprintf("Недопустимый переход статуса: %s -> %s", ride.Status, to)
	default:
		return ride, http.StatusInternalServerError, "Ошибка при обновлении поездки"
	}
}

var (
	errRideNotFound   = fmt.Errorf("ride not found")
	errRideForbidden  = fmt.Errorf("ride forbidden")
	errRideTransition = fmt.Errorf("ride transition")
)

// Начало поездки
func RideStart(db *gorm.DB, bus *feed.Bus, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ride, status, msg := transitionRide(db, c.Param("id"), c.GetUint("user_id"), models.RideStatusActive, "")
		if msg != "" {
			c.JSON(status, gin.H{"error": msg})
			return
		}

		publishRide(bus, c, feed.OpUpdate, ride)
		notifyBookingPassengers(c, db, notifications, ride.ID, "Поездка началась",
			fmt.Sprintf("Водитель выехал по маршруту %s - %s", ride.FromAddress, ride.ToAddress))

		c.JSON(http.StatusOK, gin.H{"message": "Поездка успешно начата", "status": string(ride.Status)})
	}
}

// Завершение поездки
func RideComplete(db *gorm.DB, bus *feed.Bus, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ride, status, msg := transitionRide(db, c.Param("id"), c.GetUint("user_id"), models.RideStatusCompleted, "")
		if msg != "" {
			c.JSON(status, gin.H{"error": msg})
			return
		}

		// Подтвержденные бронирования завершаются вместе с поездкой
		if err := db.Model(&models.Booking{}).
			Where("ride_id = ? AND status = ?", ride.ID, models.BookingStatusConfirmed).
			Update("status", models.BookingStatusCompleted).Error; err != nil {
			log.Printf("Ошибка при завершении бронирований поездки %d: %v", ride.ID, err)
		}

		publishRide(bus, c, feed.OpUpdate, ride)
		notifyBookingPassengers(c, db, notifications, ride.ID, "Поездка завершена",
			fmt.Sprintf("Поездка %s - %s завершена", ride.FromAddress, ride.ToAddress))

		c.JSON(http.StatusOK, gin.H{"message": "Поездка успешно завершена", "status": string(ride.Status)})
	}
}

// Отмена поездки
func RideCancel(db *gorm.DB, bus *feed.Bus, notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		ride, status, msg := transitionRide(db, c.Param("id"), c.GetUint("user_id"), models.RideStatusCancelled, req.Reason)
		if msg != "" {
			c.JSON(status, gin.H{"error": msg})
			return
		}

		publishRide(bus, c, feed.OpUpdate, ride)
		notifyBookingPassengers(c, db, notifications, ride.ID, "Поездка отменена",
			fmt.Sprintf("Поездка %s - %s отменена: %s", ride.FromAddress, ride.ToAddress, req.Reason))

		c.JSON(http.StatusOK, gin.H{"message": "Поездка успешно отменена"})
	}
}

// notifyBookingPassengers уведомляет пассажиров со свежими бронированиями
func notifyBookingPassengers(c *gin.Context, db *gorm.DB, notifications *services.NotificationService, rideID uint, title, body string) {
	var bookings []models.Booking
	if err := db.Where("ride_id = ?", rideID).Find(&bookings).Error; err != nil {
		log.Printf("Ошибка при получении бронирований поездки %d: %v", rideID, err)
		return
	}
	for _, booking := range bookings {
		if err := notifications.Notify(c.Request.Context(), booking.PassengerID, title, body,
			map[string]string{"ride_id": fmt.Sprint(rideID)}); err != nil {
			log.Printf("Ошибка при уведомлении пассажира %d: %v", booking.PassengerID, err)
		}
	}
}

// Поиск поездок для пассажиров. Статус и маршрут фильтруются на
// загруженном наборе, чтобы текстовый поиск был таким же нечетким,
// как на клиенте.
func RideSearch(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			FromQuery     string     `json:"fromQuery"`
			ToQuery       string     `json:"toQuery"`
			DepartureDate *time.Time `json:"departureDate"`
			SeatsCount    int        `json:"seatsCount"`
			Sort          string     `json:"sort"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		query := db.Where("status = ?", models.RideStatusScheduled).
			Preload("Driver").Preload("Driver.DriverDocuments")

		// Грубое сужение выборки по дате на стороне базы
		if req.DepartureDate != nil {
			start := time.Date(req.DepartureDate.Year(), req.DepartureDate.Month(), req.DepartureDate.Day(),
				0, 0, 0, 0, req.DepartureDate.Location())
			query = query.Where("departure_date BETWEEN ? AND ?", start, start.Add(24*time.Hour))
		}

		var rides []models.Ride
		if err := query.Find(&rides).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при поиске поездок"})
			return
		}

		rides = filter.Apply(rides, filter.Params{
			Statuses: []models.RideStatus{models.RideStatusScheduled},
			From:     req.FromQuery,
			To:       req.ToQuery,
			Date:     req.DepartureDate,
			Sort:     filter.SortKey(req.Sort),
		})

		response := make([]models.RideResponse, 0, len(rides))
		for _, ride := range rides {
			booked, err := countBookedSeats(db, ride.ID)
			if err != nil {
				log.Printf("Ошибка при подсчете мест поездки %d: %v", ride.ID, err)
				booked = ride.BookedSeats
			}
			if req.SeatsCount > 0 && ride.SeatsCount-booked < req.SeatsCount {
				continue
			}
			response = append(response, models.RideToResponse(ride, booked))
		}

		c.JSON(http.StatusOK, response)
	}
}

// Получение поездки по ID
func RideGetByID(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ride models.Ride
		if err := db.Preload("Driver").Preload("Driver.DriverDocuments").First(&ride, c.Param("id")).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Поездка не найдена"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении поездки"})
			return
		}

		booked, err := countBookedSeats(db, ride.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при подсчете мест"})
			return
		}

		response := models.RideToResponse(ride, booked)
		payload := gin.H{"ride": response}
		if ride.Driver.DriverDocuments != nil {
			payload["car"] = gin.H{
				"vehicle_type": ride.Driver.DriverDocuments.VehicleType,
				"car_brand":    ride.Driver.DriverDocuments.CarBrand,
				"car_model":    ride.Driver.DriverDocuments.CarModel,
				"car_year":     ride.Driver.DriverDocuments.CarYear,
				"car_color":    ride.Driver.DriverDocuments.CarColor,
				"car_number":   ride.Driver.DriverDocuments.CarNumber,
			}
		}
		c.JSON(http.StatusOK, payload)
	}
}

// Список поездок текущего пользователя как водителя
func RideGetMine(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")

		statuses := []models.RideStatus{models.RideStatusScheduled, models.RideStatusActive}
		if c.Query("archive") == "true" {
			statuses = []models.RideStatus{models.RideStatusCompleted, models.RideStatusCancelled}
		}

		var rides []models.Ride
		if err := db.Where("driver_id = ? AND status IN (?)", userID, statuses).
			Preload("Driver").
			Order("departure_date ASC").
			Find(&rides).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении поездок"})
			return
		}

		response := make([]models.RideResponse, 0, len(rides))
		for _, ride := range rides {
			booked, err := countBookedSeats(db, ride.ID)
			if err != nil {
				booked = ride.BookedSeats
			}
			response = append(response, models.RideToResponse(ride, booked))
		}

		c.JSON(http.StatusOK, response)
	}
}

// countBookedSeats считает занятые места по подтвержденным бронированиям
func countBookedSeats(db *gorm.DB, rideID uint) (int, error) {
	var total int
	err := db.Model(&models.Booking{}).
		Where("ride_id = ? AND status = ?", rideID, models.BookingStatusConfirmed).
		Select("COALESCE(SUM(seats_count), 0)").
		Scan(&total).Error
	return total, err
}

// UpdateRideBookedSeats пересчитывает занятые места и сохраняет их в поездке
func UpdateRideBookedSeats(db *gorm.DB, rideID uint) (int, error) {
	total, err := countBookedSeats(db, rideID)
	if err != nil {
		return 0, err
	}

	if err := db.Model(&models.Ride{}).
		Where("id = ?", rideID).
		Updates(map[string]interface{}{
			"booked_seats": total,
			"updated_at":   time.Now(),
		}).Error; err != nil {
		return 0, err
	}

	return total, nil
}
