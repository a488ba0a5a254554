package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal - общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration - длительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Длительность HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RequestsInFlight - количество запросов в обработке
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Текущее количество запросов в обработке",
		},
	)

	// GeocodeRequestsTotal - общее количество запросов к геокодеру
	GeocodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_requests_total",
			Help: "Общее количество запросов к геокодеру",
		},
		[]string{"endpoint", "status", "cached"},
	)

	// GeocodeRequestDuration - длительность запросов к геокодеру
	GeocodeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocode_request_duration_seconds",
			Help:    "Длительность запросов к геокодеру в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "cached"},
	)

	// FeedDroppedTotal - события ленты изменений, потерянные из-за
	// переполнения буфера подписчика
	FeedDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_dropped_events_total",
			Help: "Количество событий ленты, отброшенных медленными подписчиками",
		},
		[]string{"table"},
	)
)

// PrometheusMiddleware собирает метрики для HTTP запросов
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Увеличиваем счетчик запросов в обработке
		RequestsInFlight.Inc()
		defer RequestsInFlight.Dec()

		// Фиксируем время начала запроса
		start := time.Now()

		// Обрабатываем запрос
		c.Next()

		// Вычисляем длительность запроса
		duration := time.Since(start).Seconds()

		// Получаем статус код и эндпоинт
		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		// Увеличиваем счетчик запросов
		RequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()

		// Добавляем длительность запроса
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// TrackGeocodeRequest отслеживает запрос к геокодеру
func TrackGeocodeRequest(endpoint string, status string, cached bool, duration time.Duration) {
	cachedStr := strconv.FormatBool(cached)
	GeocodeRequestsTotal.WithLabelValues(endpoint, status, cachedStr).Inc()
	GeocodeRequestDuration.WithLabelValues(endpoint, cachedStr).Observe(duration.Seconds())
}
