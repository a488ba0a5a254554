package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"carpool-backend/internal/feed"
	"carpool-backend/internal/presence"
)

// Типы исходящих сообщений WebSocket
const (
	SnapshotMessageType         = "SNAPSHOT"
	PresenceMessageType         = "PRESENCE"
	PresenceSnapshotMessageType = "PRESENCE_SNAPSHOT"
	NotificationMessageType     = "NOTIFICATION"
	ErrorMessageType            = "ERROR"
)

// Message представляет формат сообщения WebSocket
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Manager управляет всеми подключениями WebSocket
type Manager struct {
	db  *gorm.DB
	bus *feed.Bus

	clients       map[string]map[*Client]bool
	clientsByUser map[uint]map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	mutex         sync.RWMutex

	presence *presence.Tracker
}

// Client представляет клиентское соединение WebSocket
type Client struct {
	conn     *websocket.Conn
	userID   uint
	clientID string
	cancel   context.CancelFunc

	// Запись в соединение сериализуется: в нее пишут подписки,
	// трансляции и ответы на ping одновременно
	writeMu sync.Mutex

	// Каналы присутствия, в которые вошел клиент
	channels map[string]bool

	// Активные подписки на живые списки по ключу таблица:поездка
	subsMu sync.Mutex
	subs   map[string]context.CancelFunc
}

// write отправляет сообщение клиенту. Конкурентные вызовы безопасны.
func (client *Client) write(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("ошибка при кодировании сообщения: %w", err)
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	return client.conn.WriteMessage(websocket.TextMessage, data)
}

// storeSubscription запоминает подписку, снимая прежнюю с тем же ключом
func (client *Client) storeSubscription(key string, cancel context.CancelFunc) {
	client.subsMu.Lock()
	old := client.subs[key]
	client.subs[key] = cancel
	client.subsMu.Unlock()

	if old != nil {
		old()
	}
}

// dropSubscription снимает подписку по ключу. Неизвестный ключ - ничего
func (client *Client) dropSubscription(key string) {
	client.subsMu.Lock()
	cancel := client.subs[key]
	delete(client.subs, key)
	client.subsMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// NewManager создает менеджер WebSocket. Без db и bus подписки на живые
// списки недоступны; без трекера игнорируются join/typing.
func NewManager(db *gorm.DB, bus *feed.Bus, tracker *presence.Tracker) *Manager {
	return &Manager{
		db:            db,
		bus:           bus,
		clients:       make(map[string]map[*Client]bool),
		clientsByUser: make(map[uint]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		presence:      tracker,
	}
}

// Start запускает обработку подключений
func (manager *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return

			case client := <-manager.register:
				manager.mutex.Lock()
				if _, ok := manager.clients[client.clientID]; !ok {
					manager.clients[client.clientID] = make(map[*Client]bool)
				}
				manager.clients[client.clientID][client] = true

				if client.userID > 0 {
					if _, ok := manager.clientsByUser[client.userID]; !ok {
						manager.clientsByUser[client.userID] = make(map[*Client]bool)
					}
					manager.clientsByUser[client.userID][client] = true
				}
				manager.mutex.Unlock()
				log.Printf("WebSocket клиент %s подключен (userID=%d)", client.clientID, client.userID)

			case client := <-manager.unregister:
				manager.mutex.Lock()
				if clients, ok := manager.clients[client.clientID]; ok {
					if _, exists := clients[client]; exists {
						delete(clients, client)
						client.conn.Close()
					}
					if len(clients) == 0 {
						delete(manager.clients, client.clientID)
					}
				}
				if client.userID > 0 {
					if clients, ok := manager.clientsByUser[client.userID]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(manager.clientsByUser, client.userID)
						}
					}
				}
				manager.mutex.Unlock()

				// Отмена контекста клиента гасит все его подписки
				client.cancel()

				// Выход из всех каналов присутствия
				if manager.presence != nil && client.userID > 0 {
					for channel := range client.channels {
						manager.presence.SetOnline(ctx, channel, client.userID, false)
					}
				}
				log.Printf("WebSocket клиент %s отключен", client.clientID)
			}
		}
	}()
}

// BroadcastPresence транслирует событие присутствия всем клиентам.
// Подключается как onChange трекера.
func (manager *Manager) BroadcastPresence(ev presence.Event) {
	manager.BroadcastAll(&Message{Type: PresenceMessageType, Payload: ev})
}

// PushToUser доставляет уведомление во все соединения пользователя
func (manager *Manager) PushToUser(userID uint, payload interface{}) {
	manager.BroadcastToUser(userID, &Message{Type: NotificationMessageType, Payload: payload})
}

// BroadcastAll отправляет сообщение во все активные соединения
func (manager *Manager) BroadcastAll(message *Message) {
	manager.mutex.RLock()
	targets := make([]*Client, 0, len(manager.clients))
	for _, clients := range manager.clients {
		for client := range clients {
			targets = append(targets, client)
		}
	}
	manager.mutex.RUnlock()

	for _, client := range targets {
		if err := client.write(message); err != nil {
			log.Printf("BroadcastAll: ошибка при отправке клиенту %s: %v", client.clientID, err)
		}
	}
}

// BroadcastToUser отправляет сообщение всем подключениям конкретного пользователя
func (manager *Manager) BroadcastToUser(userID uint, message *Message) {
	manager.mutex.RLock()
	targets := make([]*Client, 0, len(manager.clientsByUser[userID]))
	for client := range manager.clientsByUser[userID] {
		targets = append(targets, client)
	}
	manager.mutex.RUnlock()

	for _, client := range targets {
		if err := client.write(message); err != nil {
			log.Printf("BroadcastToUser: ошибка при отправке пользователю %d: %v", userID, err)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler обрабатывает подключения WebSocket
func (manager *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Upgrade") != "websocket" {
			c.String(http.StatusBadRequest, "Требуется WebSocket соединение")
			return
		}

		userID := c.GetUint("user_id")
		clientID := c.Query("client_id")
		if clientID == "" {
			if userID > 0 {
				clientID = fmt.Sprintf("user_%d", userID)
			} else {
				clientID = fmt.Sprintf("anon_%d", time.Now().UnixNano())
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Ошибка обновления соединения до WebSocket: %v", err)
			return
		}

		// Контекст клиента живет до отключения, а не до возврата
		// HTTP-обработчика: после Upgrade запрос уже перехвачен
		ctx, cancel := context.WithCancel(context.Background())
		client := &Client{
			conn:     conn,
			userID:   userID,
			clientID: clientID,
			cancel:   cancel,
			channels: make(map[string]bool),
			subs:     make(map[string]context.CancelFunc),
		}

		manager.register <- client
		go manager.handleMessages(ctx, client)
	}
}

// handleMessages обрабатывает входящие сообщения клиента: ping, подписки
// на живые списки, вход в канал присутствия и индикатор набора текста
func (manager *Manager) handleMessages(ctx context.Context, client *Client) {
	defer func() {
		manager.unregister <- client
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type    string `json:"type"`
			Channel string `json:"channel"`
			Table   string `json:"table"`
			RideID  uint   `json:"ride_id"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("Ошибка при разборе сообщения клиента %s: %v", client.clientID, err)
			continue
		}

		switch msg.Type {
		case "ping":
			if err := client.write(&Message{Type: "pong", Payload: time.Now().Unix()}); err != nil {
				log.Printf("Ошибка при отправке pong клиенту %s: %v", client.clientID, err)
			}

		case "subscribe":
			if err := manager.subscribe(ctx, client, msg.Table, msg.RideID); err != nil {
				client.write(&Message{
					Type:    ErrorMessageType,
					Payload: gin.H{"table": msg.Table, "error": err.Error()},
				})
			}

		case "unsubscribe":
			client.dropSubscription(subKey(msg.Table, msg.RideID))

		case "join":
			if manager.presence != nil && client.userID > 0 && msg.Channel != "" {
				client.channels[msg.Channel] = true
				manager.presence.SetOnline(ctx, msg.Channel, client.userID, true)

				// Вошедший сразу получает текущее состояние канала,
				// дальше его догоняют события PRESENCE
				client.write(&Message{
					Type: PresenceSnapshotMessageType,
					Payload: gin.H{
						"channel": msg.Channel,
						"users":   manager.presence.Snapshot(msg.Channel),
					},
				})
			}

		case "leave":
			if manager.presence != nil && client.userID > 0 && msg.Channel != "" {
				delete(client.channels, msg.Channel)
				manager.presence.SetOnline(ctx, msg.Channel, client.userID, false)
			}

		case "typing":
			if manager.presence != nil && client.userID > 0 && msg.Channel != "" {
				manager.presence.SetTyping(ctx, msg.Channel, client.userID)
			}
		}
	}
}
