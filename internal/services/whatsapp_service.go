package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"carpool-backend/internal/utils"
)

// codeTTL - время жизни кода подтверждения
const codeTTL = 5 * time.Minute

// WhatsAppService отправляет коды подтверждения через Green API.
// Коды хранятся в Redis в виде bcrypt-хешей.
type WhatsAppService struct {
	idInstance       string
	apiTokenInstance string
	baseURL          string
	httpClient       *http.Client
	redisClient      *redis.Client
}

func NewWhatsAppService(redisClient *redis.Client) *WhatsAppService {
	return &WhatsAppService{
		idInstance:       os.Getenv("GREEN_API_INSTANCE_ID"),
		apiTokenInstance: os.Getenv("GREEN_API_TOKEN"),
		baseURL:          os.Getenv("GREEN_API_BASE_URL"),
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		redisClient:      redisClient,
	}
}

// normalizePhone приводит номер к формату Green API: только цифры, без плюса
func normalizePhone(phone string) (string, error) {
	chatId := strings.TrimSpace(phone)
	chatId = strings.TrimPrefix(chatId, "+")

	if chatId == "" {
		return "", fmt.Errorf("номер телефона не может быть пустым")
	}
	for _, r := range chatId {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("номер телефона должен содержать только цифры: %s", phone)
		}
	}
	if len(chatId) < 11 || len(chatId) > 12 {
		return "", fmt.Errorf("неверная длина номера телефона: %s", phone)
	}
	return chatId, nil
}

// ErrNotOnWhatsApp возвращается, когда номер не зарегистрирован в WhatsApp
var ErrNotOnWhatsApp = fmt.Errorf("номер не зарегистрирован в WhatsApp")

// CheckWhatsAppNumber проверяет, зарегистрирован ли номер в WhatsApp.
// Без настроенного Green API проверка пропускается: код все равно
// не уйдет дальше SendVerificationCode.
func (w *WhatsAppService) CheckWhatsAppNumber(ctx context.Context, phone string) error {
	chatId, err := normalizePhone(phone)
	if err != nil {
		return err
	}

	if w.idInstance == "" || w.apiTokenInstance == "" || w.baseURL == "" {
		return nil
	}

	url := fmt.Sprintf("%s/waInstance%s/checkWhatsapp/%s", w.baseURL, w.idInstance, w.apiTokenInstance)
	response, err := w.post(ctx, url, map[string]interface{}{"phoneNumber": chatId})
	if err != nil {
		return fmt.Errorf("ошибка при проверке номера: %w", err)
	}

	if exists, ok := response["existsWhatsapp"].(bool); ok && !exists {
		return ErrNotOnWhatsApp
	}
	return nil
}

// GenerateVerificationCode генерирует шестизначный код подтверждения
func (w *WhatsAppService) GenerateVerificationCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand отказывает только при неисправном источнике энтропии
		n = big.NewInt(time.Now().UnixNano() % 1000000)
	}
	return fmt.Sprintf("%06d", n.Int64())
}

// SaveVerificationCode сохраняет хеш кода подтверждения в Redis
func (w *WhatsAppService) SaveVerificationCode(ctx context.Context, phone, code string) error {
	hash, err := utils.HashVerificationCode(code)
	if err != nil {
		return fmt.Errorf("ошибка при хешировании кода: %w", err)
	}

	key := fmt.Sprintf("verification_code:%s", phone)
	if err := w.redisClient.Set(ctx, key, hash, codeTTL).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении кода в Redis: %w", err)
	}
	return nil
}

// VerifyCode проверяет код подтверждения. Верный код одноразовый:
// после успешной проверки он удаляется.
func (w *WhatsAppService) VerifyCode(ctx context.Context, phone, code string) (bool, error) {
	key := fmt.Sprintf("verification_code:%s", phone)

	hash, err := w.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, fmt.Errorf("код подтверждения истек или не существует")
	} else if err != nil {
		return false, fmt.Errorf("ошибка при получении кода из Redis: %w", err)
	}

	if !utils.CheckVerificationCode(hash, code) {
		return false, nil
	}

	w.redisClient.Del(ctx, key)
	return true, nil
}

// SendVerificationCode отправляет код подтверждения через WhatsApp
func (w *WhatsAppService) SendVerificationCode(ctx context.Context, phone, code string) error {
	chatId, err := normalizePhone(phone)
	if err != nil {
		return err
	}

	if err := w.SaveVerificationCode(ctx, phone, code); err != nil {
		return err
	}

	if w.idInstance == "" || w.apiTokenInstance == "" || w.baseURL == "" {
		return fmt.Errorf("отсутствуют необходимые параметры Green API")
	}

	url := fmt.Sprintf("%s/waInstance%s/sendMessage/%s", w.baseURL, w.idInstance, w.apiTokenInstance)
	message := fmt.Sprintf("Ваш код подтверждения: %s\n\nНикому не сообщайте этот код.", code)

	response, err := w.post(ctx, url, map[string]interface{}{
		"chatId":  fmt.Sprintf("%s@c.us", chatId),
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("ошибка при отправке запроса: %w", err)
	}

	if _, ok := response["idMessage"]; !ok {
		return fmt.Errorf("отсутствует idMessage в ответе")
	}

	log.Printf("Код подтверждения отправлен на номер %s", phone)
	return nil
}

func (w *WhatsAppService) post(ctx context.Context, url string, payload map[string]interface{}) (map[string]interface{}, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка при маршалинге данных: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка при чтении ответа: %w", err)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return nil, fmt.Errorf("ошибка при разборе ответа: %w, тело: %s", err, string(bodyBytes))
	}

	if resp.StatusCode != http.StatusOK {
		if errMsg, ok := response["error"]; ok {
			return nil, fmt.Errorf("ошибка от Green API: %v", errMsg)
		}
		return nil, fmt.Errorf("неожиданный статус ответа: %d", resp.StatusCode)
	}
	return response, nil
}
