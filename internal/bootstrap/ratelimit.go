package bootstrap

import (
	"fmt"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// rateLimitMiddlewares holds rate limiting middlewares for different endpoints
type rateLimitMiddlewares struct {
	login     gin.HandlerFunc
	authorize gin.HandlerFunc
	callback  gin.HandlerFunc
	token     gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration.
// redisClient is nil unless the redis store is selected.
func setupRateLimiting(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) (rateLimitMiddlewares, error) {
	if !cfg.EnableRateLimit {
		noOp := func(c *gin.Context) { c.Next() }
		logger.Info("rate limiting disabled")
		return rateLimitMiddlewares{login: noOp, authorize: noOp, callback: noOp, token: noOp}, nil
	}

	if cfg.RateLimitStore == middleware.RateLimitStoreRedis {
		logger.Info("rate limiting enabled", zap.String("store", "redis (shared)"))
	} else {
		logger.Info("rate limiting enabled", zap.String("store", "memory (single instance only)"))
	}

	create := func(name string, requestsPerMinute int) (gin.HandlerFunc, error) {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			Name:              name,
			RequestsPerMinute: requestsPerMinute,
			CleanupInterval:   cfg.RateLimitCleanupInterval,
			StoreType:         cfg.RateLimitStore,
			RedisClient:       redisClient,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		return limiter, nil
	}

	var (
		limiters rateLimitMiddlewares
		err      error
	)
	if limiters.login, err = create("login", cfg.LoginRateLimit); err != nil {
		return limiters, err
	}
	if limiters.authorize, err = create("authorize", cfg.AuthorizeRateLimit); err != nil {
		return limiters, err
	}
	if limiters.callback, err = create("callback", cfg.CallbackRateLimit); err != nil {
		return limiters, err
	}
	if limiters.token, err = create("token", cfg.TokenRateLimit); err != nil {
		return limiters, err
	}
	return limiters, nil
}
