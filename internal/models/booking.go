package models

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Ожидает подтверждения водителем
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено
	BookingStatusRejected  BookingStatus = "rejected"  // Отклонено
	BookingStatusCancelled BookingStatus = "cancelled" // Отменено пассажиром или каскадом
	BookingStatusCompleted BookingStatus = "completed" // Завершено
)

// Booking представляет бронирование мест в поездке
type Booking struct {
	ID             uint          `json:"id" gorm:"primaryKey"`
	RideID         uint          `json:"ride_id" gorm:"not null;index"`
	PassengerID    uint          `json:"passenger_id" gorm:"not null;index"`
	SeatsCount     int           `json:"seats_count" gorm:"not null"`
	TotalFare      float64       `json:"total_fare" gorm:"not null"`
	Status         BookingStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	PickupAddress  string        `json:"pickup_address" gorm:"not null"`
	PickupLocation string        `json:"pickup_location" gorm:"type:point"`
	Comment        string        `json:"comment" gorm:"default:''"`
	RejectReason   string        `json:"reject_reason,omitempty" gorm:"default:''"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	Ride           Ride          `json:"-" gorm:"foreignKey:RideID"`
	Passenger      User          `json:"-" gorm:"foreignKey:PassengerID"`
}

// BookingResponse представляет ответ API с информацией о бронировании
type BookingResponse struct {
	ID             uint          `json:"id"`
	RideID         uint          `json:"ride_id"`
	PassengerID    uint          `json:"passenger_id"`
	SeatsCount     int           `json:"seats_count"`
	TotalFare      float64       `json:"total_fare"`
	Status         BookingStatus `json:"status"`
	PickupAddress  string        `json:"pickup_address"`
	PickupLocation string        `json:"pickup_location"`
	Comment        string        `json:"comment,omitempty"`
	RejectReason   string        `json:"reject_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	PassengerName  string        `json:"passenger_name"`
	PassengerPhone string        `json:"passenger_phone"`
	RideInfo       *RideResponse `json:"ride_info,omitempty"`
}

// BookingToResponse собирает ответ API из модели бронирования
func BookingToResponse(b Booking) BookingResponse {
	return BookingResponse{
		ID:             b.ID,
		RideID:         b.RideID,
		PassengerID:    b.PassengerID,
		SeatsCount:     b.SeatsCount,
		TotalFare:      b.TotalFare,
		Status:         b.Status,
		PickupAddress:  b.PickupAddress,
		PickupLocation: b.PickupLocation,
		Comment:        b.Comment,
		RejectReason:   b.RejectReason,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		PassengerName:  b.Passenger.FirstName + " " + b.Passenger.LastName,
		PassengerPhone: b.Passenger.Phone,
	}
}
