package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// RateLimitConfig configures one per-client-IP limiter.
type RateLimitConfig struct {
	Name              string // key prefix, e.g. "login"
	RequestsPerMinute int
	CleanupInterval   time.Duration

	StoreType   string        // "memory" or "redis"
	RedisClient *redis.Client // required for the redis store; shared across limiters
}

// NewRateLimiter builds a gin middleware limiting requests per client IP.
// The redis store lets several gateway processes share one budget.
func NewRateLimiter(cfg RateLimitConfig) (gin.HandlerFunc, error) {
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limit %q: requests per minute must be positive", cfg.Name)
	}
	prefix := "ratelimit:" + cfg.Name

	var store limiter.Store
	switch cfg.StoreType {
	case RateLimitStoreRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("rate limit %q: redis store needs a redis client", cfg.Name)
		}
		s, err := limiterRedis.NewStoreWithOptions(cfg.RedisClient, limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: cfg.CleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("rate limit %q: create redis store: %w", cfg.Name, err)
		}
		store = s
	default:
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: cfg.CleanupInterval,
		})
	}

	instance := limiter.New(store, limiter.Rate{
		Period: time.Minute,
		Limit:  int64(cfg.RequestsPerMinute),
	})

	return mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate_limit_exceeded",
			"error_description": "Too many requests. Please try again later.",
		})
	})), nil
}
