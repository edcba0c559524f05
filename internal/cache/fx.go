// Package cache provides the shared Redis client.
package cache

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/soundhaven/soundhaven/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewClient),
)

// NewClient returns a Redis client, or nil when no address is configured.
// Consumers treat a nil client as cache-disabled.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Named("cache").Info("redis disabled, no address configured")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}
