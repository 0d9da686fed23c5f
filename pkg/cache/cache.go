package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huangang/erpsettings/internal/config"
	"github.com/huangang/erpsettings/pkg/logger"
)

// ErrCacheMiss is returned (via Cmd.Err) when a key is absent.
var ErrCacheMiss = redis.Nil

// ICache is the subset of redis commands the settings layer relies on.
// Both backends answer with go-redis command values so callers handle
// results and misses the same way.
type ICache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// New builds the cache selected by cfg. A redis backend that cannot be
// reached at boot falls back to the in-process cache.
func New(cfg config.CacheConfig) ICache {
	local := func() ICache {
		return NewFastCache(FastCacheConfig{MaxBytes: cfg.MaxBytes})
	}

	if cfg.Driver != "redis" {
		return local()
	}

	client, err := NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, using local settings cache")
		return local()
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Settings cache backed by redis")
	return NewRedisCache(client)
}
