package models

import (
	"time"
)

type RideStatus string

const (
	RideStatusScheduled RideStatus = "scheduled" // Опубликованная поездка, ожидает отправления
	RideStatusActive    RideStatus = "active"    // Поездка в пути
	RideStatusCompleted RideStatus = "completed" // Завершенная поездка
	RideStatusCancelled RideStatus = "cancelled" // Отмененная поездка
)

// rideStatusRank задает порядок статусов: переходы разрешены только вперед
var rideStatusRank = map[RideStatus]int{
	RideStatusScheduled: 0,
	RideStatusActive:    1,
	RideStatusCompleted: 2,
	RideStatusCancelled: 2,
}

// CanTransitionRide проверяет допустимость перехода статуса поездки.
// Возврат из completed/cancelled назад невозможен.
func CanTransitionRide(from, to RideStatus) bool {
	fr, ok := rideStatusRank[from]
	if !ok {
		return false
	}
	tr, ok := rideStatusRank[to]
	if !ok {
		return false
	}
	if from == RideStatusCompleted || from == RideStatusCancelled {
		return false
	}
	return tr > fr
}

type Ride struct {
	ID                 uint        `json:"id" gorm:"primaryKey"`
	DriverID           uint        `json:"driver_id" gorm:"not null;index"`
	FromAddress        string      `json:"from_address" gorm:"not null"`
	ToAddress          string      `json:"to_address" gorm:"not null"`
	FromLocation       string      `json:"from_location" gorm:"type:point"`
	ToLocation         string      `json:"to_location" gorm:"type:point"`
	Status             RideStatus  `json:"status" gorm:"type:varchar(20);default:'scheduled'"`
	DistanceKm         float64     `json:"distance_km" gorm:"not null"`
	VehicleType        VehicleType `json:"vehicle_type" gorm:"type:varchar(20);not null"`
	FarePerSeat        float64     `json:"fare_per_seat" gorm:"not null"`
	SeatsCount         int         `json:"seats_count" gorm:"not null"`
	BookedSeats        int         `json:"booked_seats" gorm:"default:0"`
	DepartureDate      time.Time   `json:"departure_date" gorm:"not null;index"`
	ReturnDate         *time.Time  `json:"return_date,omitempty" gorm:"default:null"` // Для поездок туда-обратно
	Comment            string      `json:"comment" gorm:"default:''"`
	CancellationReason string      `json:"cancellation_reason,omitempty" gorm:"default:''"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	Driver             User        `json:"-" gorm:"foreignKey:DriverID"`
	Bookings           []Booking   `json:"-" gorm:"foreignKey:RideID"`
}

type RideResponse struct {
	ID                 uint        `json:"id"`
	DriverID           uint        `json:"driver_id"`
	FromAddress        string      `json:"from_address"`
	ToAddress          string      `json:"to_address"`
	FromLocation       string      `json:"from_location"`
	ToLocation         string      `json:"to_location"`
	Status             RideStatus  `json:"status"`
	DistanceKm         float64     `json:"distance_km"`
	VehicleType        VehicleType `json:"vehicle_type"`
	FarePerSeat        float64     `json:"fare_per_seat"`
	SeatsCount         int         `json:"seats_count"`
	BookedSeats        int         `json:"booked_seats"`
	SeatsLeft          int         `json:"seats_left"`
	DepartureDate      time.Time   `json:"departure_date"`
	ReturnDate         *time.Time  `json:"return_date,omitempty"`
	Comment            string      `json:"comment,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	DriverName         string      `json:"driver_name"`
}

// RideToResponse собирает ответ API из модели поездки
func RideToResponse(r Ride, bookedSeats int) RideResponse {
	return RideResponse{
		ID:                 r.ID,
		DriverID:           r.DriverID,
		FromAddress:        r.FromAddress,
		ToAddress:          r.ToAddress,
		FromLocation:       r.FromLocation,
		ToLocation:         r.ToLocation,
		Status:             r.Status,
		DistanceKm:         r.DistanceKm,
		VehicleType:        r.VehicleType,
		FarePerSeat:        r.FarePerSeat,
		SeatsCount:         r.SeatsCount,
		BookedSeats:        bookedSeats,
		SeatsLeft:          r.SeatsCount - bookedSeats,
		DepartureDate:      r.DepartureDate,
		ReturnDate:         r.ReturnDate,
		Comment:            r.Comment,
		CancellationReason: r.CancellationReason,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		DriverName:         r.Driver.FirstName + " " + r.Driver.LastName,
	}
}
