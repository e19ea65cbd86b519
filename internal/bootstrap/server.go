package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"
	"github.com/expense-tracker/authgate/internal/models"
	"github.com/expense-tracker/authgate/internal/services"
	"github.com/expense-tracker/authgate/internal/store"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server, logger *zap.Logger) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			logger.Info("server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("failed to start server", zap.Error(err))
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(
	m *graceful.Manager,
	srv *http.Server,
	cfg *config.Config,
	logger *zap.Logger,
) {
	m.AddShutdownJob(func() error {
		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server forced to shutdown", zap.Error(err))
			return err
		}

		logger.Info("server exited")
		return nil
	})
}

// addAuthorizationCleanupJob periodically purges expired authorization
// requests and codes.
func addAuthorizationCleanupJob(
	m *graceful.Manager,
	cfg *config.Config,
	authz *services.AuthorizationService,
	logger *zap.Logger,
) {
	if cfg.OAuthCleanupInterval <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.OAuthCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := authz.CleanupExpired(ctx); err != nil {
					logger.Warn("authorization cleanup failed", zap.Error(err))
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client, logger *zap.Logger) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := redisClient.Close(); err != nil {
			logger.Error("error closing redis client", zap.Error(err))
			return err
		}
		logger.Info("redis connection closed")
		return nil
	})
}

// addCacheShutdownJob closes the user cache on shutdown
func addCacheShutdownJob(m *graceful.Manager, userCache core.Cache[models.User], logger *zap.Logger) {
	if userCache == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := userCache.Close(); err != nil {
			logger.Error("error closing user cache", zap.Error(err))
			return err
		}
		logger.Info("user cache closed")
		return nil
	})
}

// addDatabaseShutdownJob closes the database pool on shutdown
func addDatabaseShutdownJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	logger *zap.Logger,
) {
	m.AddShutdownJob(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DBCloseTimeout)
		defer cancel()

		if err := db.Close(ctx); err != nil {
			logger.Error("error closing database", zap.Error(err))
			return err
		}
		logger.Info("database connection closed")
		return nil
	})
}

// redisHealth adapts the go-redis client to the health endpoint.
type redisHealth struct {
	client *redis.Client
}

func (r redisHealth) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
