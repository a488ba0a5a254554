package models

import (
	"time"
)

// Message представляет сообщение в чате поездки
type Message struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RideID    uint      `json:"ride_id" gorm:"not null;index"`
	SenderID  uint      `json:"sender_id" gorm:"not null"`
	Text      string    `json:"text" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Ride   Ride `json:"-" gorm:"foreignKey:RideID"`
	Sender User `json:"-" gorm:"foreignKey:SenderID"`
}

type MessageResponse struct {
	ID         uint      `json:"id"`
	RideID     uint      `json:"ride_id"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageToResponse собирает ответ API из модели сообщения
func MessageToResponse(m Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		RideID:     m.RideID,
		SenderID:   m.SenderID,
		SenderName: m.Sender.FirstName + " " + m.Sender.LastName,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
}
