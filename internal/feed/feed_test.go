package feed

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type rideRow struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	bus := NewBus(nil)

	sub := bus.Subscribe("rides", nil)
	defer sub.Unsubscribe()

	change, err := NewRowChange(OpInsert, "rides", rideRow{ID: 7, Status: "scheduled"})
	if err != nil {
		t.Fatalf("NewRowChange: %v", err)
	}
	bus.Publish(context.Background(), change)

	select {
	case got := <-sub.C:
		if got.Op != OpInsert || got.Table != "rides" {
			t.Fatalf("неожиданное событие: %+v", got)
		}
		var row rideRow
		if err := json.Unmarshal(got.Payload, &row); err != nil {
			t.Fatalf("разбор payload: %v", err)
		}
		if row.ID != 7 {
			t.Fatalf("id строки = %d, ожидалось 7", row.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
}

func TestFilterScopesDelivery(t *testing.T) {
	bus := NewBus(nil)

	onlyDeletes := bus.Subscribe("bookings", func(c Change) bool { return c.Op == OpDelete })
	defer onlyDeletes.Unsubscribe()

	insert, _ := NewRowChange(OpInsert, "bookings", rideRow{ID: 1})
	bus.Publish(context.Background(), insert)
	bus.Publish(context.Background(), NewDeleteChange("bookings", 2))

	got := <-onlyDeletes.C
	if got.Op != OpDelete || got.OldID != 2 {
		t.Fatalf("фильтр пропустил лишнее событие: %+v", got)
	}
	select {
	case extra := <-onlyDeletes.C:
		t.Fatalf("лишнее событие после фильтра: %+v", extra)
	default:
	}
}

func TestTablesAreIsolated(t *testing.T) {
	bus := NewBus(nil)

	rides := bus.Subscribe("rides", nil)
	defer rides.Unsubscribe()

	bus.Publish(context.Background(), NewDeleteChange("messages", 3))

	select {
	case got := <-rides.C:
		t.Fatalf("событие чужой таблицы доставлено: %+v", got)
	default:
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	bus := NewBus(nil)

	sub := bus.Subscribe("rides", nil)
	sub.Unsubscribe()
	sub.Unsubscribe() // повторный вызов не должен паниковать

	// Публикация после отписки не должна блокироваться и паниковать
	bus.Publish(context.Background(), NewDeleteChange("rides", 1))

	if _, ok := <-sub.C; ok {
		t.Fatal("канал должен быть закрыт после отписки")
	}
}

// Медленный потребитель: лишние события отбрасываются, публикация не блокируется
func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus(nil)

	sub := bus.Subscribe("rides", nil)
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(context.Background(), NewDeleteChange("rides", uint(i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("публикация заблокировалась на медленном подписчике")
	}

	// В буфере ровно subscriberBuffer первых событий
	count := 0
	for {
		select {
		case <-sub.C:
			count++
		default:
			if count != subscriberBuffer {
				t.Fatalf("в буфере %d событий, ожидалось %d", count, subscriberBuffer)
			}
			return
		}
	}
}
