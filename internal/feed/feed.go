package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"carpool-backend/internal/middleware"

	"github.com/go-redis/redis/v8"
)

// Op - тип операции над строкой
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change - одно событие ленты изменений. Для INSERT/UPDATE Payload несет
// новые значения строки, для DELETE заполнен только OldID.
type Change struct {
	Op      Op              `json:"op"`
	Table   string          `json:"table"`
	Payload json.RawMessage `json:"payload,omitempty"`
	OldID   uint            `json:"old_id,omitempty"`
}

// NewRowChange собирает событие INSERT/UPDATE с сериализованной строкой
func NewRowChange(op Op, table string, row interface{}) (Change, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return Change{}, fmt.Errorf("ошибка при сериализации строки для ленты: %w", err)
	}
	return Change{Op: op, Table: table, Payload: payload}, nil
}

// NewDeleteChange собирает событие DELETE по идентификатору строки
func NewDeleteChange(table string, id uint) Change {
	return Change{Op: OpDelete, Table: table, OldID: id}
}

// Filter отбирает события для подписчика; nil - все события таблицы
type Filter func(Change) bool

// subscriberBuffer - емкость канала подписчика. Медленный потребитель
// не блокирует публикацию: лишние события отбрасываются и учитываются.
const subscriberBuffer = 64

// Subscription - отменяемая подписка на события одной таблицы
type Subscription struct {
	C <-chan Change

	ch     chan Change
	bus    *Bus
	table  string
	filter Filter
	id     uint64
	once   sync.Once
}

// Unsubscribe снимает подписку и закрывает канал событий.
// Повторный вызов безопасен.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.table, s.id)
		close(s.ch)
	})
}

// Bus - шина изменений. Доставляет события локальным подписчикам,
// при наличии Redis ретранслирует их между экземплярами через pub/sub.
type Bus struct {
	mutex       sync.RWMutex
	subscribers map[string]map[uint64]*Subscription
	nextID      uint64
	redisClient *redis.Client
	channel     string
}

// NewBus создает шину изменений. redisClient может быть nil -
// тогда события доставляются только внутри процесса.
func NewBus(redisClient *redis.Client) *Bus {
	return &Bus{
		subscribers: make(map[string]map[uint64]*Subscription),
		redisClient: redisClient,
		channel:     "feed:changes",
	}
}

// Start запускает ретрансляцию событий из Redis. Возвращается сразу,
// чтение идет в фоне до отмены контекста.
func (b *Bus) Start(ctx context.Context) {
	if b.redisClient == nil {
		return
	}

	pubsub := b.redisClient.Subscribe(ctx, b.channel)
	log.Printf("Шина изменений подписана на канал Redis %s", b.channel)

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					log.Printf("Канал Redis шины изменений закрыт")
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					log.Printf("Ошибка при разборе события из Redis: %v", err)
					continue
				}
				b.deliver(change)
			}
		}
	}()
}

// Publish публикует событие. При наличии Redis доставка локальным
// подписчикам происходит через канал pub/sub, чтобы все экземпляры
// получали события в одном порядке.
func (b *Bus) Publish(ctx context.Context, change Change) {
	if b.redisClient != nil {
		data, err := json.Marshal(change)
		if err != nil {
			log.Printf("Ошибка при сериализации события ленты: %v", err)
			return
		}
		if err := b.redisClient.Publish(ctx, b.channel, data).Err(); err != nil {
			log.Printf("Ошибка при публикации события в Redis, доставляем локально: %v", err)
			b.deliver(change)
		}
		return
	}

	b.deliver(change)
}

// Subscribe создает подписку на события таблицы с необязательным фильтром
func (b *Bus) Subscribe(table string, filter Filter) *Subscription {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.nextID++
	ch := make(chan Change, subscriberBuffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		bus:    b,
		table:  table,
		filter: filter,
		id:     b.nextID,
	}

	if _, ok := b.subscribers[table]; !ok {
		b.subscribers[table] = make(map[uint64]*Subscription)
	}
	b.subscribers[table][sub.id] = sub

	return sub
}

func (b *Bus) remove(table string, id uint64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if subs, ok := b.subscribers[table]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.subscribers, table)
		}
	}
}

// deliver раздает событие локальным подписчикам без блокировки:
// переполненный буфер - событие отброшено и посчитано
func (b *Bus) deliver(change Change) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for _, sub := range b.subscribers[change.Table] {
		if sub.filter != nil && !sub.filter(change) {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			middleware.FeedDroppedTotal.WithLabelValues(change.Table).Inc()
			log.Printf("Подписчик таблицы %s не успевает, событие %s отброшено", change.Table, change.Op)
		}
	}
}
