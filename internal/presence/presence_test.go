package presence

import (
	"context"
	"sync"
	"testing"
	"time"
)

// waitFor опрашивает условие до срабатывания или до исчерпания времени
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

func TestSnapshotAfterJoins(t *testing.T) {
	tr := NewTracker(nil, nil)
	defer tr.Close()
	ctx := context.Background()

	tr.SetOnline(ctx, "ride:42", 7, true)
	tr.SetOnline(ctx, "ride:42", 3, true)
	tr.SetOnline(ctx, "ride:99", 5, true)

	snap := tr.Snapshot("ride:42")
	if len(snap) != 2 {
		t.Fatalf("в канале 2 участника, получено %d", len(snap))
	}
	// Снимок отсортирован по идентификатору
	if snap[0].UserID != 3 || snap[1].UserID != 7 {
		t.Errorf("неверный порядок участников: %+v", snap)
	}
	if !snap[0].Online || !snap[1].Online {
		t.Error("участники должны быть онлайн")
	}
}

func TestOfflineKeepsLastSeen(t *testing.T) {
	tr := NewTracker(nil, nil)
	defer tr.Close()
	ctx := context.Background()

	tr.SetOnline(ctx, "ride:1", 7, true)
	tr.SetOnline(ctx, "ride:1", 7, false)

	snap := tr.Snapshot("ride:1")
	if len(snap) != 1 {
		t.Fatalf("участник должен остаться в снимке, получено %d записей", len(snap))
	}
	if snap[0].Online {
		t.Error("участник должен быть офлайн")
	}
	if snap[0].LastSeen.IsZero() {
		t.Error("время последней активности должно сохраняться")
	}
}

func TestTypingAutoClears(t *testing.T) {
	tr := NewTracker(nil, nil)
	defer tr.Close()
	tr.SetTypingTTL(30 * time.Millisecond)
	ctx := context.Background()

	tr.SetTyping(ctx, "ride:1", 7)

	snap := tr.Snapshot("ride:1")
	if len(snap) != 1 || !snap[0].Typing {
		t.Fatalf("индикатор набора должен гореть: %+v", snap)
	}

	waitFor(t, func() bool {
		s := tr.Snapshot("ride:1")
		return len(s) == 1 && !s[0].Typing
	})

	// Присутствие при этом не гаснет
	if snap := tr.Snapshot("ride:1"); !snap[0].Online {
		t.Error("участник должен остаться онлайн после сброса индикатора")
	}
}

func TestRepeatedTypingExtendsTimer(t *testing.T) {
	tr := NewTracker(nil, nil)
	defer tr.Close()
	tr.SetTypingTTL(60 * time.Millisecond)
	ctx := context.Background()

	tr.SetTyping(ctx, "ride:1", 7)
	time.Sleep(40 * time.Millisecond)
	tr.SetTyping(ctx, "ride:1", 7)
	time.Sleep(40 * time.Millisecond)

	// С момента последнего события прошло меньше TTL
	if snap := tr.Snapshot("ride:1"); !snap[0].Typing {
		t.Error("повторное событие должно продлевать индикатор")
	}

	waitFor(t, func() bool {
		s := tr.Snapshot("ride:1")
		return !s[0].Typing
	})
}

func TestStaleEventIgnored(t *testing.T) {
	tr := NewTracker(nil, nil)
	defer tr.Close()

	now := time.Now()
	tr.apply(Event{Channel: "ride:1", UserID: 7, Online: true, At: now})
	// Опоздавшее событие с более ранней меткой времени не откатывает состояние
	tr.apply(Event{Channel: "ride:1", UserID: 7, Online: false, At: now.Add(-time.Second)})

	snap := tr.Snapshot("ride:1")
	if !snap[0].Online {
		t.Error("устаревшее событие не должно перекрывать свежее")
	}
}

func TestOnChangeNotified(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	tr := NewTracker(nil, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer tr.Close()
	tr.SetTypingTTL(20 * time.Millisecond)
	ctx := context.Background()

	tr.SetOnline(ctx, "ride:1", 7, true)
	tr.SetTyping(ctx, "ride:1", 7)

	// Ожидаем также событие автоматического сброса индикатора
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	last := events[2]
	if last.Typing || !last.Online {
		t.Errorf("последнее событие должно гасить индикатор: %+v", last)
	}
}

func TestCloseStopsTimers(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.SetTypingTTL(20 * time.Millisecond)
	ctx := context.Background()

	tr.SetTyping(ctx, "ride:1", 7)
	tr.Close()
	time.Sleep(40 * time.Millisecond)

	// После Close состояние заморожено, таймер не срабатывает
	snap := tr.Snapshot("ride:1")
	if len(snap) != 1 || !snap[0].Typing {
		t.Errorf("состояние после Close не должно меняться: %+v", snap)
	}
}
