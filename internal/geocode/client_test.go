package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// memCache - кэш в памяти с ручным управлением сроком жизни записей
type memCache struct {
	data    map[string][]byte
	expired map[string]bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), expired: make(map[string]bool)}
}

func (m *memCache) Get(ctx context.Context, key string, result interface{}) (bool, error) {
	if m.expired[key] {
		return false, nil
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, result)
}

func (m *memCache) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	delete(m.expired, key)
	return nil
}

// expire имитирует истечение TTL записи
func (m *memCache) expire(key string) {
	m.expired[key] = true
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *memCache, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cache := newMemCache()
	c := &Client{
		httpClient:    srv.Client(),
		cache:         cache,
		baseURL:       srv.URL,
		countryCode:   "pk",
		rateLimiter:   time.NewTicker(time.Millisecond),
		requestsLimit: 100,
		resetTime:     time.Now().Add(24 * time.Hour),
	}
	t.Cleanup(c.Close)
	return c, cache, srv
}

func TestSearchShortQuerySkipsNetwork(t *testing.T) {
	calls := 0
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode([]nominatimItem{})
	}))

	for _, q := range []string{"", "k", "kh"} {
		if got := c.Search(context.Background(), q); len(got) != 0 {
			t.Errorf("Search(%q): ожидался пустой результат, получено %d", q, len(got))
		}
	}
	if calls != 0 {
		t.Fatalf("короткие запросы не должны ходить в сеть, вызовов: %d", calls)
	}
}

func TestSearchUsesCache(t *testing.T) {
	calls := 0
	c, cache, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode([]nominatimItem{
			{Lat: "24.8607", Lon: "67.0011", DisplayName: "Karachi, Sindh"},
		})
	}))

	first := c.Search(context.Background(), "Karachi")
	if len(first) != 1 || first[0].DisplayName != "Karachi, Sindh" {
		t.Fatalf("неожиданный результат первого запроса: %+v", first)
	}

	// Повторный запрос в пределах TTL обслуживается из кэша,
	// ключ нормализуется к нижнему регистру
	second := c.Search(context.Background(), "karachi")
	if len(second) != 1 {
		t.Fatalf("неожиданный результат повторного запроса: %+v", second)
	}
	if calls != 1 {
		t.Fatalf("ожидался один сетевой вызов, было %d", calls)
	}

	// После истечения TTL запрос снова уходит к провайдеру
	cache.expire(searchKey("karachi"))
	c.Search(context.Background(), "Karachi")
	if calls != 2 {
		t.Fatalf("после истечения TTL ожидался второй сетевой вызов, было %d", calls)
	}
}

func TestSearchProviderErrorYieldsEmpty(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	if got := c.Search(context.Background(), "Lahore"); len(got) != 0 {
		t.Fatalf("при ошибке провайдера ожидался пустой список, получено %+v", got)
	}
}

func TestSearchSkipsUnparsableCoordinates(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]nominatimItem{
			{Lat: "not-a-number", Lon: "67.0011", DisplayName: "Плохая запись"},
			{Lat: "31.5204", Lon: "74.3587", DisplayName: "Lahore, Punjab"},
		})
	}))

	got := c.Search(context.Background(), "Lahore")
	if len(got) != 1 || got[0].DisplayName != "Lahore, Punjab" {
		t.Fatalf("ожидалась одна корректная запись, получено %+v", got)
	}
}

func TestReverseFallsBackToCoordinates(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	got := c.Reverse(context.Background(), 24.8607, 67.0011)
	want := "24.86070, 67.00110"
	if got != want {
		t.Fatalf("Reverse = %q, ожидалось %q", got, want)
	}
}

func TestReverseReturnsDisplayName(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(nominatimItem{Lat: "24.8607", Lon: "67.0011", DisplayName: "Saddar, Karachi"})
	}))

	if got := c.Reverse(context.Background(), 24.8607, 67.0011); got != "Saddar, Karachi" {
		t.Fatalf("Reverse = %q, ожидалось %q", got, "Saddar, Karachi")
	}
}
