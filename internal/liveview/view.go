package liveview

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"carpool-backend/internal/feed"
)

// Order определяет, куда встают новые строки списка
type Order int

const (
	// OrderPrepend - новые строки в начало (ленты поездок, уведомления)
	OrderPrepend Order = iota
	// OrderAppend - новые строки в конец (сообщения чата)
	OrderAppend
)

// Refetcher дотягивает строку по первичному ключу, когда событие ленты
// не несет присоединенных данных. ok=false - строка не найдена.
type Refetcher[T any] func(ctx context.Context, id uint) (T, bool, error)

// Config описывает поведение живого списка для конкретной сущности
type Config[T any] struct {
	// ID извлекает первичный ключ строки
	ID func(T) uint
	// Order - порядок вставки новых строк
	Order Order
	// Key - необязательный составной ключ замещения. Для живых позиций
	// это пара (поездка, пользователь): новый образец замещает старый.
	Key func(T) string
	// OnChange получает копию списка после каждого учтенного события.
	// События без эффекта (устаревшая дотяжка, UPDATE мимо списка,
	// повторный DELETE) его не вызывают.
	OnChange func([]T)
}

// View поддерживает живой отфильтрованный список: начальная выборка плюс
// последовательное применение событий ленты изменений. Каждый экземпляр
// принадлежит одному потребителю; снимки копируются.
type View[T any] struct {
	cfg   Config[T]
	mutex sync.Mutex
	items []T
	// stamps хранит номер последнего события по ключу строки: результат
	// устаревшей дотяжки по версии отбрасывается
	stamps map[string]uint64
	seq    uint64
}

// NewView создает живой список из начальной выборки.
// Пустая или неудавшаяся выборка дает пустой, но рабочий список.
func NewView[T any](cfg Config[T], initial []T) *View[T] {
	v := &View[T]{
		cfg:    cfg,
		items:  make([]T, len(initial)),
		stamps: make(map[string]uint64),
	}
	copy(v.items, initial)
	return v
}

// Items возвращает копию текущего состояния списка
func (v *View[T]) Items() []T {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

// Len возвращает текущий размер списка
func (v *View[T]) Len() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return len(v.items)
}

// Apply применяет событие ленты к списку: чистый переход состояния,
// без дотяжек. DELETE идемпотентен, UPDATE без совпадения игнорируется.
func (v *View[T]) Apply(change feed.Change) {
	switch change.Op {
	case feed.OpDelete:
		v.applyDelete(change.OldID)
	case feed.OpInsert, feed.OpUpdate:
		row, err := decode[T](change.Payload)
		if err != nil {
			log.Printf("Ошибка при разборе строки события %s: %v", change.Op, err)
			return
		}
		v.applyRow(row, v.stamp(v.key(row)), change.Op == feed.OpInsert)
	}
}

// Consume читает события подписки до отписки или отмены контекста.
// Если задан refetch и событие несет только идентификатор, строка
// дотягивается асинхронно; устаревший результат отбрасывается по версии.
func (v *View[T]) Consume(ctx context.Context, sub *feed.Subscription, refetch Refetcher[T]) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C:
			if !ok {
				return
			}
			v.handle(ctx, change, refetch)
		}
	}
}

func (v *View[T]) handle(ctx context.Context, change feed.Change, refetch Refetcher[T]) {
	if change.Op == feed.OpDelete {
		v.applyDelete(change.OldID)
		return
	}

	row, err := decode[T](change.Payload)
	if err != nil {
		log.Printf("Ошибка при разборе строки события %s: %v", change.Op, err)
		return
	}

	if refetch == nil {
		v.applyRow(row, v.stamp(v.key(row)), change.Op == feed.OpInsert)
		return
	}

	// Дотяжка присоединенных данных. Версия фиксируется до запроса:
	// событие, пришедшее во время дотяжки, делает ее результат устаревшим.
	key := v.key(row)
	token := v.stamp(key)
	id := v.cfg.ID(row)
	go func() {
		full, ok, err := refetch(ctx, id)
		if err != nil {
			// Неудачная дотяжка: событие отбрасывается, список остается как был
			log.Printf("Дотяжка строки %d не удалась, событие пропущено: %v", id, err)
			return
		}
		if !ok {
			// Строка успела исчезнуть - применяем как удаление
			v.applyDelete(id)
			return
		}
		// Дотяжка подтвердила существование строки, поэтому результат
		// применяется как замещение-или-вставка независимо от операции
		v.applyRow(full, token, true)
	}()
}

// stamp выдает ключу новый номер версии
func (v *View[T]) stamp(key string) uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.seq++
	v.stamps[key] = v.seq
	return v.seq
}

// applyRow замещает строку по идентичности, если версия не устарела.
// Для INSERT без совпадения строка добавляется согласно порядку списка,
// UPDATE без совпадения игнорируется.
func (v *View[T]) applyRow(row T, token uint64, insert bool) {
	v.mutex.Lock()

	key := v.keyLocked(row)
	if v.stamps[key] != token {
		// Пока шла дотяжка, по этой строке пришло более новое событие
		v.mutex.Unlock()
		return
	}

	changed := false
	for i := range v.items {
		if v.keyLocked(v.items[i]) == key {
			v.items[i] = row
			changed = true
			break
		}
	}
	if !changed && insert {
		if v.cfg.Order == OrderAppend {
			v.items = append(v.items, row)
		} else {
			v.items = append([]T{row}, v.items...)
		}
		changed = true
	}

	snapshot := v.snapshotLocked(changed)
	v.mutex.Unlock()

	if snapshot != nil {
		v.cfg.OnChange(snapshot)
	}
}

func (v *View[T]) applyDelete(id uint) {
	v.mutex.Lock()

	changed := false
	for i := range v.items {
		if v.cfg.ID(v.items[i]) == id {
			v.items = append(v.items[:i], v.items[i+1:]...)
			changed = true
			break
		}
	}
	// Строки уже нет - удаление идемпотентно

	snapshot := v.snapshotLocked(changed)
	v.mutex.Unlock()

	if snapshot != nil {
		v.cfg.OnChange(snapshot)
	}
}

// snapshotLocked готовит копию списка для OnChange; вызывать под мьютексом
func (v *View[T]) snapshotLocked(changed bool) []T {
	if !changed || v.cfg.OnChange == nil {
		return nil
	}
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

func (v *View[T]) key(row T) string {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.keyLocked(row)
}

func (v *View[T]) keyLocked(row T) string {
	if v.cfg.Key != nil {
		return v.cfg.Key(row)
	}
	return fmt.Sprintf("%d", v.cfg.ID(row))
}

func decode[T any](payload []byte) (T, error) {
	var row T
	if err := json.Unmarshal(payload, &row); err != nil {
		return row, err
	}
	return row, nil
}
