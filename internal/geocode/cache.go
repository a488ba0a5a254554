package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache - хранилище результатов геокодирования с TTL.
// Выделено в интерфейс, чтобы в тестах подставлять память вместо Redis.
type Cache interface {
	Get(ctx context.Context, key string, result interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// RedisCache представляет сервис кэширования запросов геокодирования в Redis
type RedisCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	enabled     bool
}

// NewRedisCache создает новый сервис кэширования.
// TTL по умолчанию - сутки, настраивается через GEOCODE_CACHE_DURATION (секунды).
func NewRedisCache(client *redis.Client) *RedisCache {
	if client == nil {
		return &RedisCache{enabled: false}
	}

	ttl := 86400 // 1 день по умолчанию
	if cacheDuration := os.Getenv("GEOCODE_CACHE_DURATION"); cacheDuration != "" {
		if val, err := strconv.Atoi(cacheDuration); err == nil && val > 0 {
			ttl = val
		}
	}

	return &RedisCache{
		redisClient: client,
		ttl:         time.Duration(ttl) * time.Second,
		enabled:     true,
	}
}

// Get получает данные из кэша
func (c *RedisCache) Get(ctx context.Context, key string, result interface{}) (bool, error) {
	if !c.enabled {
		return false, nil
	}

	val, err := c.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		// Ключ не найден в кэше
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("ошибка при получении данных из кэша: %w", err)
	}

	if err := json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("ошибка при десериализации данных из кэша: %w", err)
	}

	return true, nil
}

// Set сохраняет данные в кэш
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка при сериализации данных для кэша: %w", err)
	}

	if err := c.redisClient.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка при сохранении данных в кэш: %w", err)
	}

	return nil
}

// searchKey генерирует ключ кэша для поискового запроса.
// Ключ нормализуется к нижнему регистру: "Karachi" и "karachi" - одна запись.
func searchKey(query string) string {
	return "geocoding:" + strings.ToLower(strings.TrimSpace(query))
}
