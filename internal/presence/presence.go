package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// redisChannel - канал Redis для обмена событиями присутствия
	// между экземплярами сервера
	redisChannel = "presence:events"

	// defaultTypingTTL - через сколько индикатор набора текста
	// гаснет сам, если не пришло нового события
	defaultTypingTTL = 2 * time.Second
)

// Event - событие присутствия в канале (чате поездки)
type Event struct {
	Channel string    `json:"channel"`
	UserID  uint      `json:"user_id"`
	Online  bool      `json:"online"`
	Typing  bool      `json:"typing"`
	At      time.Time `json:"at"`
}

// State - текущее состояние участника канала
type State struct {
	UserID   uint      `json:"user_id"`
	Online   bool      `json:"online"`
	Typing   bool      `json:"typing"`
	LastSeen time.Time `json:"last_seen"`
}

type entry struct {
	online bool
	typing bool
	at     time.Time
}

// Tracker хранит присутствие и индикаторы набора текста по каналам.
// Снимок канала всегда собирается из последних по времени событий:
// событие старше уже учтенного молча отбрасывается.
type Tracker struct {
	mu       sync.Mutex
	channels map[string]map[uint]entry
	timers   map[string]*time.Timer

	typingTTL   time.Duration
	redisClient *redis.Client
	onChange    func(Event)
	closed      bool
}

// NewTracker создает трекер присутствия. onChange вызывается на каждое
// учтенное событие (локальное или пришедшее из Redis) и может быть nil.
func NewTracker(redisClient *redis.Client, onChange func(Event)) *Tracker {
	return &Tracker{
		channels:    make(map[string]map[uint]entry),
		timers:      make(map[string]*time.Timer),
		typingTTL:   defaultTypingTTL,
		redisClient: redisClient,
		onChange:    onChange,
	}
}

// SetTypingTTL переопределяет время жизни индикатора набора текста
func (t *Tracker) SetTypingTTL(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typingTTL = d
}

// Start запускает прием событий присутствия из Redis. Без Redis трекер
// работает только в рамках одного экземпляра.
func (t *Tracker) Start(ctx context.Context) {
	if t.redisClient == nil {
		return
	}

	pubsub := t.redisClient.Subscribe(ctx, redisChannel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("Ошибка разбора события присутствия: %v", err)
					continue
				}
				t.apply(ev)
			}
		}
	}()
}

// SetOnline отмечает вход участника в канал или выход из него
func (t *Tracker) SetOnline(ctx context.Context, channel string, userID uint, online bool) {
	t.publish(ctx, Event{
		Channel: channel,
		UserID:  userID,
		Online:  online,
		At:      time.Now(),
	})
}

// SetTyping отмечает набор текста. Индикатор гаснет сам через
// typingTTL, повторное событие продлевает его.
func (t *Tracker) SetTyping(ctx context.Context, channel string, userID uint) {
	t.publish(ctx, Event{
		Channel: channel,
		UserID:  userID,
		Online:  true,
		Typing:  true,
		At:      time.Now(),
	})
}

// Snapshot возвращает состояние всех известных участников канала,
// отсортированное по идентификатору пользователя
func (t *Tracker) Snapshot(channel string) []State {
	t.mu.Lock()
	defer t.mu.Unlock()

	members := t.channels[channel]
	out := make([]State, 0, len(members))
	for userID, e := range members {
		out = append(out, State{
			UserID:   userID,
			Online:   e.online,
			Typing:   e.typing,
			LastSeen: e.at,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Close гасит таймеры и прекращает прием новых событий
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
}

// publish отправляет событие через Redis, чтобы его увидели все
// экземпляры сервера. Без Redis событие применяется напрямую.
func (t *Tracker) publish(ctx context.Context, ev Event) {
	if t.redisClient != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := t.redisClient.Publish(ctx, redisChannel, payload).Err(); err == nil {
				return
			}
			log.Printf("Ошибка публикации присутствия в Redis, применяем локально: %v", err)
		}
	}
	t.apply(ev)
}

func (t *Tracker) apply(ev Event) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	members, ok := t.channels[ev.Channel]
	if !ok {
		members = make(map[uint]entry)
		t.channels[ev.Channel] = members
	}

	// Побеждает последнее по времени событие
	if existing, ok := members[ev.UserID]; ok && existing.at.After(ev.At) {
		t.mu.Unlock()
		return
	}

	members[ev.UserID] = entry{online: ev.Online, typing: ev.Typing, at: ev.At}

	key := timerKey(ev.Channel, ev.UserID)
	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	if ev.Typing {
		t.timers[key] = time.AfterFunc(t.typingTTL, func() {
			t.clearTyping(ev.Channel, ev.UserID)
		})
	}

	onChange := t.onChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(ev)
	}
}

// clearTyping гасит индикатор набора текста по истечении таймера,
// не трогая признак присутствия
func (t *Tracker) clearTyping(channel string, userID uint) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.timers, timerKey(channel, userID))

	members := t.channels[channel]
	e, ok := members[userID]
	if !ok || !e.typing {
		t.mu.Unlock()
		return
	}
	e.typing = false
	e.at = time.Now()
	members[userID] = e

	onChange := t.onChange
	ev := Event{Channel: channel, UserID: userID, Online: e.online, At: e.at}
	t.mu.Unlock()

	if onChange != nil {
		onChange(ev)
	}
}

func timerKey(channel string, userID uint) string {
	return fmt.Sprintf("%s|%d", channel, userID)
}
