package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"gorm.io/gorm"

	"carpool-backend/internal/models"
)

// Pusher доставляет уведомление в открытые соединения пользователя.
// Реализуется менеджером WebSocket; может быть nil.
type Pusher interface {
	PushToUser(userID uint, payload interface{})
}

type NotificationService struct {
	serverKey  string
	httpClient *http.Client
	db         *gorm.DB
	pusher     Pusher
}

type FCMPayload struct {
	To           string            `json:"to"`
	Data         map[string]string `json:"data,omitempty"`
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
}

func NewNotificationService(db *gorm.DB, pusher Pusher) *NotificationService {
	return &NotificationService{
		serverKey:  os.Getenv("FIREBASE_SERVER_KEY"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		db:         db,
		pusher:     pusher,
	}
}

// Notify сохраняет уведомление в базе и отправляет push, если у
// пользователя есть FCM токен. Ошибка отправки push не мешает
// сохранению: уведомление в любом случае появится в списке.
func (s *NotificationService) Notify(ctx context.Context, userID uint, title, body string, data map[string]string) error {
	notification := models.Notification{
		UserID: userID,
		Title:  title,
		Body:   body,
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return fmt.Errorf("ошибка при сохранении уведомления: %w", err)
	}

	if s.pusher != nil {
		s.pusher.PushToUser(userID, notification)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil || user.FCMToken == "" {
		return nil
	}

	if err := s.SendPushNotification(ctx, user.FCMToken, title, body, data); err != nil {
		log.Printf("Ошибка при отправке push пользователю %d: %v", userID, err)
	}
	return nil
}

func (s *NotificationService) SendPushNotification(ctx context.Context, token, title, body string, data map[string]string) error {
	payload := FCMPayload{
		To:   token,
		Data: data,
	}
	payload.Notification.Title = title
	payload.Notification.Body = body

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling notification: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://fcm.googleapis.com/fcm/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}

	req.Header.Set("Authorization", "key="+s.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending notification: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FCM returned error: %v", resp.Status)
	}

	return nil
}
