package liveview

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"carpool-backend/internal/feed"
)

type bookingRow struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

type locationRow struct {
	ID     uint `json:"id"`
	RideID uint `json:"ride_id"`
	UserID uint `json:"user_id"`
	Lat    float64 `json:"lat"`
}

func bookingConfig(order Order) Config[bookingRow] {
	return Config[bookingRow]{
		ID:    func(b bookingRow) uint { return b.ID },
		Order: order,
	}
}

func mustChange(t *testing.T, op feed.Op, table string, row interface{}) feed.Change {
	t.Helper()
	c, err := feed.NewRowChange(op, table, row)
	if err != nil {
		t.Fatalf("NewRowChange: %v", err)
	}
	return c
}

func TestApplyInsertThenUpdateKeepsSingleEntry(t *testing.T) {
	v := NewView(bookingConfig(OrderPrepend), nil)

	v.Apply(mustChange(t, feed.OpInsert, "bookings", bookingRow{ID: 1, Status: "pending"}))
	v.Apply(mustChange(t, feed.OpUpdate, "bookings", bookingRow{ID: 1, Status: "confirmed"}))

	items := v.Items()
	if len(items) != 1 {
		t.Fatalf("в списке %d записей, ожидалась одна", len(items))
	}
	if items[0].Status != "confirmed" {
		t.Fatalf("статус = %q, ожидался confirmed", items[0].Status)
	}
}

func TestApplyUpdateWithoutMatchIsIgnored(t *testing.T) {
	v := NewView(bookingConfig(OrderPrepend), []bookingRow{{ID: 1, Status: "pending"}})

	v.Apply(mustChange(t, feed.OpUpdate, "bookings", bookingRow{ID: 99, Status: "confirmed"}))

	items := v.Items()
	if len(items) != 1 {
		t.Fatalf("несовпавший UPDATE изменил размер списка: %+v", items)
	}
	if items[0].ID != 1 || items[0].Status != "pending" {
		t.Fatalf("несовпавший UPDATE изменил запись: %+v", items[0])
	}
}

// Повторный INSERT той же строки замещает, а не дублирует
func TestDuplicateInsertReplaces(t *testing.T) {
	v := NewView(bookingConfig(OrderPrepend), nil)

	v.Apply(mustChange(t, feed.OpInsert, "bookings", bookingRow{ID: 1, Status: "pending"}))
	v.Apply(mustChange(t, feed.OpInsert, "bookings", bookingRow{ID: 1, Status: "confirmed"}))

	items := v.Items()
	if len(items) != 1 || items[0].Status != "confirmed" {
		t.Fatalf("повторный INSERT продублировал строку: %+v", items)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	v := NewView(bookingConfig(OrderPrepend), []bookingRow{{ID: 1, Status: "pending"}})

	v.Apply(feed.NewDeleteChange("bookings", 2)) // отсутствующая строка
	if v.Len() != 1 {
		t.Fatalf("удаление отсутствующей строки изменило список: %d", v.Len())
	}

	v.Apply(feed.NewDeleteChange("bookings", 1))
	v.Apply(feed.NewDeleteChange("bookings", 1)) // повторное удаление
	if v.Len() != 0 {
		t.Fatalf("после удаления в списке %d записей", v.Len())
	}
}

func TestOrderPrependAndAppend(t *testing.T) {
	prepend := NewView(bookingConfig(OrderPrepend), []bookingRow{{ID: 1}})
	prepend.Apply(mustChange(t, feed.OpInsert, "bookings", bookingRow{ID: 2}))
	if items := prepend.Items(); items[0].ID != 2 {
		t.Fatalf("OrderPrepend: первая запись %d, ожидалась 2", items[0].ID)
	}

	appendV := NewView(bookingConfig(OrderAppend), []bookingRow{{ID: 1}})
	appendV.Apply(mustChange(t, feed.OpInsert, "bookings", bookingRow{ID: 2}))
	if items := appendV.Items(); items[1].ID != 2 {
		t.Fatalf("OrderAppend: последняя запись %d, ожидалась 2", items[1].ID)
	}
}

// Вариант с составным ключом: новый образец позиции замещает старый
// для той же пары (поездка, пользователь)
func TestCompositeKeyUpsert(t *testing.T) {
	v := NewView(Config[locationRow]{
		ID:    func(l locationRow) uint { return l.ID },
		Order: OrderAppend,
		Key: func(l locationRow) string {
			return fmt.Sprintf("%d:%d", l.RideID, l.UserID)
		},
	}, nil)

	v.Apply(mustChange(t, feed.OpInsert, "live_locations", locationRow{ID: 1, RideID: 5, UserID: 10, Lat: 24.1}))
	v.Apply(mustChange(t, feed.OpInsert, "live_locations", locationRow{ID: 2, RideID: 5, UserID: 10, Lat: 24.2}))
	v.Apply(mustChange(t, feed.OpInsert, "live_locations", locationRow{ID: 3, RideID: 5, UserID: 11, Lat: 24.3}))

	items := v.Items()
	if len(items) != 2 {
		t.Fatalf("в списке %d записей, ожидалось 2 (по одной на пользователя)", len(items))
	}
	if items[0].Lat != 24.2 {
		t.Fatalf("старый образец не замещен: %+v", items[0])
	}
}

// Гонка дотяжек: медленная дотяжка первого события не должна затирать
// результат более нового события
func TestStaleRefetchIsDiscarded(t *testing.T) {
	bus := feed.NewBus(nil)
	sub := bus.Subscribe("bookings", nil)
	defer sub.Unsubscribe()

	v := NewView(bookingConfig(OrderPrepend), nil)

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	refetch := func(ctx context.Context, id uint) (bookingRow, bool, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(firstStarted)
			<-release // первая дотяжка зависает до отмашки
			return bookingRow{ID: 1, Status: "stale"}, true, nil
		}
		return bookingRow{ID: 1, Status: "confirmed"}, true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.Consume(ctx, sub, refetch)

	bus.Publish(ctx, mustChange(t, feed.OpInsert, "bookings", bookingRow{ID: 1}))
	<-firstStarted

	// Пока первая дотяжка висит, по той же строке приходит новое событие
	bus.Publish(ctx, mustChange(t, feed.OpUpdate, "bookings", bookingRow{ID: 1, Status: "confirmed"}))
	waitFor(t, func() bool {
		items := v.Items()
		return len(items) == 1 && items[0].Status == "confirmed"
	})

	// Отпускаем зависшую дотяжку: ее устаревший результат должен быть отброшен
	close(release)
	time.Sleep(50 * time.Millisecond)

	items := v.Items()
	if len(items) != 1 || items[0].Status == "stale" {
		t.Fatalf("устаревшая дотяжка затерла состояние: %+v", items)
	}
}

// Неудачная дотяжка: событие пропускается, список не меняется
func TestFailedRefetchDropsEvent(t *testing.T) {
	bus := feed.NewBus(nil)
	sub := bus.Subscribe("bookings", nil)
	defer sub.Unsubscribe()

	v := NewView(bookingConfig(OrderPrepend), []bookingRow{{ID: 1, Status: "pending"}})

	refetch := func(ctx context.Context, id uint) (bookingRow, bool, error) {
		return bookingRow{}, false, fmt.Errorf("база недоступна")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.Consume(ctx, sub, refetch)

	bus.Publish(ctx, mustChange(t, feed.OpUpdate, "bookings", bookingRow{ID: 1, Status: "confirmed"}))
	time.Sleep(50 * time.Millisecond)

	items := v.Items()
	if len(items) != 1 || items[0].Status != "pending" {
		t.Fatalf("неудачная дотяжка изменила список: %+v", items)
	}
}

// Дотяжка по исчезнувшей строке применяется как удаление
func TestRefetchMissingRowRemovesEntry(t *testing.T) {
	bus := feed.NewBus(nil)
	sub := bus.Subscribe("bookings", nil)
	defer sub.Unsubscribe()

	v := NewView(bookingConfig(OrderPrepend), []bookingRow{{ID: 1, Status: "pending"}})

	refetch := func(ctx context.Context, id uint) (bookingRow, bool, error) {
		return bookingRow{}, false, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.Consume(ctx, sub, refetch)

	bus.Publish(ctx, mustChange(t, feed.OpUpdate, "bookings", bookingRow{ID: 1, Status: "confirmed"}))
	waitFor(t, func() bool { return v.Len() == 0 })
}

// OnChange получает снимок после каждого учтенного события;
// события без эффекта снимков не порождают
func TestOnChangeStreamsSnapshots(t *testing.T) {
	var snapshots [][]bookingRow
	cfg := bookingConfig(OrderPrepend)
	cfg.OnChange = func(items []bookingRow) {
		snapshots = append(snapshots, items)
	}

	v := NewView(cfg, []bookingRow{{ID: 1, Status: "pending"}})

	v.Apply(mustChange(t, feed.OpInsert, "bookings", bookingRow{ID: 2, Status: "pending"}))
	v.Apply(mustChange(t, feed.OpUpdate, "bookings", bookingRow{ID: 1, Status: "confirmed"}))
	v.Apply(mustChange(t, feed.OpUpdate, "bookings", bookingRow{ID: 99, Status: "confirmed"})) // мимо списка
	v.Apply(feed.NewDeleteChange("bookings", 2))
	v.Apply(feed.NewDeleteChange("bookings", 2)) // повторное удаление

	if len(snapshots) != 3 {
		t.Fatalf("получено %d снимков, ожидалось 3: %+v", len(snapshots), snapshots)
	}
	if len(snapshots[0]) != 2 || snapshots[0][0].ID != 2 {
		t.Fatalf("первый снимок не отражает вставку: %+v", snapshots[0])
	}
	if snapshots[1][1].Status != "confirmed" {
		t.Fatalf("второй снимок не отражает обновление: %+v", snapshots[1])
	}
	if len(snapshots[2]) != 1 || snapshots[2][0].ID != 1 {
		t.Fatalf("третий снимок не отражает удаление: %+v", snapshots[2])
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("условие не выполнилось за отведенное время")
}
