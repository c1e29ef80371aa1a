package ratelimit

import (
	"github.com/redis/go-redis/v9"
	"github.com/vettedhq/vetted/internal/config"
	"go.uber.org/fx"
)

// NewRedisClient returns nil when no redis address is configured; the
// limiter then falls back to fixed local delays.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

var Module = fx.Module("rate.limit",
	fx.Provide(
		NewRedisClient,
		NewTokenBucket,
		NewUpstreamLimiter,
	),
)
