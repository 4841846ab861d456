package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Rate limit defaults.
const (
	DefaultRateLimit       = 30
	DefaultRateLimitWindow = time.Minute
	DefaultRateLimitPrefix = "userdesk:ratelimit:"
)

// ErrRateLimitExceeded is reported when a session runs out of mutations.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimitStore defines the interface for rate limit storage.
type RateLimitStore interface {
	// Increment increments the counter for key and returns the new count.
	// It sets the expiration when the key is new.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// GetTTL returns the remaining TTL for key.
	GetTTL(ctx context.Context, key string) (time.Duration, error)
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// Logger is the structured logger for rate limit events.
	Logger *slog.Logger

	// Store is the counter backend. A nil store disables limiting.
	Store RateLimitStore

	// Limit is the maximum number of requests allowed per window.
	Limit int

	// Window is the time window for rate limiting.
	Window time.Duration

	// KeyFunc generates the limiting key. Defaults to the session ID, then the client IP.
	KeyFunc func(c echo.Context) string

	// Message is the error message returned when the limit is exceeded.
	Message string
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Logger:  slog.Default(),
		Limit:   DefaultRateLimit,
		Window:  DefaultRateLimitWindow,
		Message: "Too many changes. Please wait a moment and try again.",
	}
}

// RateLimit returns a fixed-window rate limiting middleware.
func RateLimit(config RateLimitConfig) echo.MiddlewareFunc {
	defaults := DefaultRateLimitConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Limit <= 0 {
		config.Limit = defaults.Limit
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.Message == "" {
		config.Message = defaults.Message
	}
	if config.KeyFunc == nil {
		config.KeyFunc = sessionKey
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Store == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			key := config.KeyFunc(c)

			count, err := config.Store.Increment(ctx, key, config.Window)
			if err != nil {
				config.Logger.ErrorContext(ctx, "failed to increment rate limit counter",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				// On error, allow the request to proceed
				return next(c)
			}

			limit := int64(config.Limit)
			remaining := max(limit-count, 0)

			c.Response().Header().Set("X-Ratelimit-Limit", strconv.FormatInt(limit, 10))
			c.Response().Header().Set("X-Ratelimit-Remaining", strconv.FormatInt(remaining, 10))

			if count <= limit {
				return next(c)
			}

			ttl, ttlErr := config.Store.GetTTL(ctx, key)
			if ttlErr != nil {
				ttl = config.Window
			}

			config.Logger.WarnContext(ctx, "rate limit exceeded",
				slog.String("key", key),
				slog.Int64("count", count),
				slog.Int64("limit", limit),
				slog.String("path", c.Request().URL.Path),
			)

			return respondRateLimitError(c, config.Message, ttl)
		}
	}
}

func sessionKey(c echo.Context) string {
	if id := GetSessionID(c); id != "" {
		return "session:" + id
	}
	return "ip:" + c.RealIP()
}

func respondRateLimitError(c echo.Context, message string, retryAfter time.Duration) error {
	if retryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}

	if wantsHTML(c.Request()) {
		return c.String(http.StatusTooManyRequests, message)
	}

	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":        "RATE_LIMIT_EXCEEDED",
			"message":     message,
			"retry_after": int64(retryAfter.Seconds()),
		},
	})
}

// MemoryRateLimitStore keeps counters in process memory.
type MemoryRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]*rateLimitEntry
	now    func() time.Time
}

type rateLimitEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryRateLimitStore creates a new in-memory rate limit store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		counts: make(map[string]*rateLimitEntry),
		now:    time.Now,
	}
}

// Increment increments the counter for the given key.
func (s *MemoryRateLimitStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, exists := s.counts[key]
	if exists && now.Before(entry.expiresAt) {
		entry.count++
		return entry.count, nil
	}

	s.counts[key] = &rateLimitEntry{
		count:     1,
		expiresAt: now.Add(window),
	}

	return 1, nil
}

// GetTTL returns the remaining TTL for the given key.
func (s *MemoryRateLimitStore) GetTTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.counts[key]
	if !exists {
		return 0, nil
	}

	return max(entry.expiresAt.Sub(s.now()), 0), nil
}

// RedisRateLimitStore shares counters between console replicas through Redis.
type RedisRateLimitStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisRateLimitStore creates a new Redis-based rate limit store.
func NewRedisRateLimitStore(client redis.Cmdable, keyPrefix string) *RedisRateLimitStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRateLimitPrefix
	}
	return &RedisRateLimitStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Increment increments the counter for the given key.
func (s *RedisRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := s.keyPrefix + key

	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	// Set expiration on first request
	if count == 1 {
		if expireErr := s.client.Expire(ctx, fullKey, window).Err(); expireErr != nil {
			return count, fmt.Errorf("failed to set expiration: %w", expireErr)
		}
	}

	return count, nil
}

// GetTTL returns the remaining TTL for the given key.
func (s *RedisRateLimitStore) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read ttl: %w", err)
	}
	return max(ttl, 0), nil
}
