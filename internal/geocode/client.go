package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"carpool-backend/internal/middleware"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// minQueryLen - запросы короче не уходят в сеть, сразу пустой результат
const minQueryLen = 3

// Result представляет один результат геокодирования
type Result struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DisplayName string  `json:"display_name"`
}

// Client представляет клиент геокодирования с кэшем и ограничением запросов.
// Ошибки сети и разбора не поднимаются наверх: прямой поиск деградирует до
// пустого списка, обратное геокодирование - до строки с координатами.
type Client struct {
	httpClient    *http.Client
	cache         Cache
	baseURL       string
	countryCode   string
	rateLimiter   *time.Ticker
	requestsMutex sync.Mutex
	requestsCount int
	requestsLimit int
	resetTime     time.Time
}

// nominatimItem - элемент ответа провайдера (координаты приходят строками)
type nominatimItem struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewClient создает новый клиент геокодирования
func NewClient(cache Cache) *Client {
	baseURL := os.Getenv("GEOCODE_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Поиск ограничен одной страной
	countryCode := os.Getenv("GEOCODE_COUNTRY")
	if countryCode == "" {
		countryCode = "pk"
	}

	// Дневной лимит запросов к провайдеру, по умолчанию 5000
	requestsLimit := 5000
	if limitStr := os.Getenv("GEOCODE_DAILY_LIMIT"); limitStr != "" {
		if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
			requestsLimit = val
		}
	}

	return &Client{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		cache:         cache,
		baseURL:       baseURL,
		countryCode:   countryCode,
		rateLimiter:   time.NewTicker(1100 * time.Millisecond), // Не чаще одного запроса в секунду
		requestsLimit: requestsLimit,
		resetTime:     time.Now().Add(24 * time.Hour),
	}
}

// checkRateLimit проверяет лимит запросов и ожидает, если необходимо
func (c *Client) checkRateLimit() error {
	c.requestsMutex.Lock()
	defer c.requestsMutex.Unlock()

	// Если прошли сутки, сбрасываем счетчик
	if time.Now().After(c.resetTime) {
		c.requestsCount = 0
		c.resetTime = time.Now().Add(24 * time.Hour)
	}

	if c.requestsCount >= c.requestsLimit {
		return fmt.Errorf("превышен дневной лимит запросов к геокодеру (%d)", c.requestsLimit)
	}

	<-c.rateLimiter.C

	c.requestsCount++
	return nil
}

// Search выполняет прямое геокодирование с учетом кэша.
// Запрос короче трех символов - пустой результат без обращения к сети.
func (c *Client) Search(ctx context.Context, query string) []Result {
	if len([]rune(query)) < minQueryLen {
		return []Result{}
	}

	start := time.Now()
	cacheKey := searchKey(query)

	var cached []Result
	found, err := c.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		log.Printf("Ошибка при получении данных из кэша геокодера: %v", err)
	} else if found {
		middleware.TrackGeocodeRequest("search", "ok", true, time.Since(start))
		return cached
	}

	if err := c.checkRateLimit(); err != nil {
		log.Printf("Поиск адреса %q отклонен: %v", query, err)
		middleware.TrackGeocodeRequest("search", "rate_limited", false, time.Since(start))
		return []Result{}
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("format", "json")
	params.Add("limit", "8")
	params.Add("countrycodes", c.countryCode)
	params.Add("addressdetails", "0")

	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	items, err := c.fetch(ctx, reqURL)
	if err != nil {
		log.Printf("Ошибка при поиске адреса %q: %v", query, err)
		middleware.TrackGeocodeRequest("search", "error", false, time.Since(start))
		return []Result{}
	}

	results := make([]Result, 0, len(items))
	for _, item := range items {
		lat, errLat := strconv.ParseFloat(item.Lat, 64)
		lng, errLng := strconv.ParseFloat(item.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		results = append(results, Result{
			Lat:         lat,
			Lng:         lng,
			DisplayName: item.DisplayName,
		})
	}

	if err := c.cache.Set(ctx, cacheKey, results); err != nil {
		log.Printf("Ошибка при сохранении результатов геокодера в кэш: %v", err)
	}

	middleware.TrackGeocodeRequest("search", "ok", false, time.Since(start))
	return results
}

// Reverse выполняет обратное геокодирование без кэширования.
// При любой ошибке возвращает отформатированные координаты.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) string {
	fallback := fmt.Sprintf("%.5f, %.5f", lat, lng)

	start := time.Now()
	if err := c.checkRateLimit(); err != nil {
		log.Printf("Обратное геокодирование (%f, %f) отклонено: %v", lat, lng, err)
		return fallback
	}

	params := url.Values{}
	params.Add("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Add("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Add("format", "json")

	reqURL := fmt.Sprintf("%s/reverse?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fallback
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Ошибка при обратном геокодировании: %v", err)
		middleware.TrackGeocodeRequest("reverse", "error", false, time.Since(start))
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Геокодер вернул статус %d для обратного геокодирования", resp.StatusCode)
		middleware.TrackGeocodeRequest("reverse", "error", false, time.Since(start))
		return fallback
	}

	var item nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		log.Printf("Ошибка при декодировании ответа обратного геокодирования: %v", err)
		middleware.TrackGeocodeRequest("reverse", "error", false, time.Since(start))
		return fallback
	}

	middleware.TrackGeocodeRequest("reverse", "ok", false, time.Since(start))
	if item.DisplayName == "" {
		return fallback
	}
	return item.DisplayName
}

// fetch выполняет запрос к провайдеру и разбирает список результатов
func (c *Client) fetch(ctx context.Context, reqURL string) ([]nominatimItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании запроса: %w", err)
	}
	req.Header.Set("User-Agent", "carpool-backend/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка при выполнении запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("неверный статус ответа: %d", resp.StatusCode)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("ошибка при декодировании ответа: %w", err)
	}

	return items, nil
}

// Close закрывает ресурсы клиента
func (c *Client) Close() {
	c.rateLimiter.Stop()
}
