package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"carpool-backend/internal/feed"
	"carpool-backend/internal/presence"
)

func TestRideFilter(t *testing.T) {
	mustRow := func(rideID uint) feed.Change {
		t.Helper()
		change, err := feed.NewRowChange(feed.OpUpdate, "messages", map[string]interface{}{
			"id":      1,
			"ride_id": rideID,
		})
		if err != nil {
			t.Fatalf("NewRowChange: %v", err)
		}
		return change
	}

	tests := []struct {
		name   string
		change feed.Change
		want   bool
	}{
		{"своя поездка", mustRow(5), true},
		{"чужая поездка", mustRow(6), false},
		{"DELETE без строки проходит всегда", feed.NewDeleteChange("messages", 3), true},
		{"нечитаемая строка отбрасывается", feed.Change{Op: feed.OpInsert, Payload: []byte("{")}, false},
	}

	filter := rideFilter(5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filter(tt.change); got != tt.want {
				t.Errorf("filter() = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

// envelope - разобранное исходящее сообщение WebSocket
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil читает сообщения, пока не встретит нужный тип
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("не дождались сообщения %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func dialTestServer(t *testing.T, manager *Manager, userID uint) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { c.Set("user_id", userID) }, manager.Handler())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("не удалось подключиться к %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Вошедший в канал сразу получает снимок присутствия, а не только
// последующие события
func TestJoinSendsPresenceSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var manager *Manager
	tracker := presence.NewTracker(nil, func(ev presence.Event) {
		manager.BroadcastPresence(ev)
	})
	defer tracker.Close()
	manager = NewManager(nil, nil, tracker)
	manager.Start(ctx)

	// Второй участник уже в канале до подключения клиента
	tracker.SetOnline(ctx, "ride_5", 3, true)

	conn := dialTestServer(t, manager, 7)
	if err := conn.WriteJSON(map[string]interface{}{"type": "join", "channel": "ride_5"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	msg := readUntil(t, conn, PresenceSnapshotMessageType)

	var payload struct {
		Channel string           `json:"channel"`
		Users   []presence.State `json:"users"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("разбор снимка: %v", err)
	}
	if payload.Channel != "ride_5" {
		t.Fatalf("канал снимка = %q, ожидался ride_5", payload.Channel)
	}
	if len(payload.Users) != 2 {
		t.Fatalf("в снимке %d участников, ожидалось 2: %+v", len(payload.Users), payload.Users)
	}
	if payload.Users[0].UserID != 3 || payload.Users[1].UserID != 7 {
		t.Fatalf("снимок не содержит обоих участников: %+v", payload.Users)
	}
	if !payload.Users[1].Online {
		t.Fatalf("вошедший участник отмечен как офлайн: %+v", payload.Users[1])
	}
}

func TestSubscribeRejectsBadRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := NewManager(nil, nil, nil)
	manager.Start(ctx)
	conn := dialTestServer(t, manager, 7)

	tests := []struct {
		name    string
		request map[string]interface{}
		wantErr string
	}{
		{
			"неизвестная таблица",
			map[string]interface{}{"type": "subscribe", "table": "drivers"},
			"неизвестная таблица: drivers",
		},
		{
			"чат без поездки",
			map[string]interface{}{"type": "subscribe", "table": "messages"},
			"требуется ride_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteJSON(tt.request); err != nil {
				t.Fatalf("subscribe: %v", err)
			}

			msg := readUntil(t, conn, ErrorMessageType)
			var payload struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				t.Fatalf("разбор ошибки: %v", err)
			}
			if payload.Error != tt.wantErr {
				t.Errorf("ошибка = %q, ожидалась %q", payload.Error, tt.wantErr)
			}
		})
	}
}
