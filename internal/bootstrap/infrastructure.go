package bootstrap

import (
	"context"
	"fmt"

	"github.com/expense-tracker/authgate/internal/cache"
	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/metrics"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const userCacheKeyPrefix = "expense-auth:users:"

// initializeDatabase creates and initializes the database connection
func initializeDatabase(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.DBInitTimeout)
	defer cancel()

	db, err := store.New(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

// initializeMetrics initializes Prometheus metrics
func initializeMetrics(cfg *config.Config, logger *zap.Logger) metrics.Recorder {
	recorder := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		logger.Info("prometheus metrics initialized")
	} else {
		logger.Info("metrics disabled (using noop implementation)")
	}
	return recorder
}

// initializeRedisClient initializes the go-redis client used by the rate
// limiter. Returns nil unless rate limiting is enabled with the redis store.
func initializeRedisClient(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
) (*redis.Client, error) {
	if !cfg.EnableRateLimit || cfg.RateLimitStore != config.RateLimitStoreRedis {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.RedisConnTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("rate limiting redis client initialized",
		zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return client, nil
}

// initializeUserCache builds the cache in front of user directory reads.
func initializeUserCache(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
) (core.Cache[models.User], error) {
	switch cfg.UserCacheType {
	case config.UserCacheTypeRedis:
		ctx, cancel := context.WithTimeout(ctx, cfg.CacheInitTimeout)
		defer cancel()

		c, err := cache.NewRueidisCache[models.User](
			ctx,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			userCacheKeyPrefix,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis user cache: %w", err)
		}
		logger.Info("user cache: redis",
			zap.String("addr", cfg.RedisAddr),
			zap.Int("db", cfg.RedisDB),
			zap.Duration("ttl", cfg.UserCacheTTL))
		return c, nil
	default:
		logger.Info("user cache: memory (single instance only)", zap.Duration("ttl", cfg.UserCacheTTL))
		return cache.NewMemoryCache[models.User](), nil
	}
}
