package models

import (
	"time"
)

// LiveLocation хранит последнюю известную позицию участника поездки.
// Логически одна строка на пару (ride_id, user_id): новые образцы
// перезаписывают старые.
type LiveLocation struct {
	ID        uint     `json:"id" gorm:"primaryKey"`
	RideID    uint     `json:"ride_id" gorm:"not null;uniqueIndex:idx_live_location_ride_user"`
	UserID    uint     `json:"user_id" gorm:"not null;uniqueIndex:idx_live_location_ride_user"`
	Position  Location `json:"position" gorm:"embedded"`
	Speed     *float64 `json:"speed,omitempty" gorm:"default:null"`    // м/с
	Heading   *float64 `json:"heading,omitempty" gorm:"default:null"`  // градусы
	Accuracy  *float64 `json:"accuracy,omitempty" gorm:"default:null"` // метры
	UpdatedAt time.Time `json:"updated_at"`

	Ride Ride `json:"-" gorm:"foreignKey:RideID"`
	User User `json:"-" gorm:"foreignKey:UserID"`
}

// LiveLocationUpdate структура для публикации позиции с устройства
type LiveLocationUpdate struct {
	Latitude  float64  `json:"latitude" binding:"required"`
	Longitude float64  `json:"longitude" binding:"required"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}
