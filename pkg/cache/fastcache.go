package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// FastCacheConfig holds fastcache configuration
type FastCacheConfig struct {
	MaxBytes int // Maximum bytes for fastcache, default 16MB
}

// FastCache is an in-process cache backed by VictoriaMetrics fastcache.
// Expiration is checked lazily on read.
type FastCache struct {
	cache *fastcache.Cache
	ttls  sync.Map // map[string]time.Time
	mu    sync.RWMutex
}

// NewFastCache creates a new FastCache instance
func NewFastCache(conf FastCacheConfig) *FastCache {
	maxBytes := conf.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 16 * 1024 * 1024
	}

	return &FastCache{
		cache: fastcache.New(maxBytes),
	}
}

func (fc *FastCache) expired(key string) bool {
	if exp, ok := fc.ttls.Load(key); ok {
		return time.Now().After(exp.(time.Time))
	}
	return false
}

// Get returns the value for key, or a command carrying ErrCacheMiss.
func (fc *FastCache) Get(ctx context.Context, key string) *redis.StringCmd {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	cmd := redis.NewStringCmd(ctx, "get", key)
	if fc.expired(key) {
		cmd.SetErr(ErrCacheMiss)
		return cmd
	}

	value, ok := fc.cache.HasGet(nil, []byte(key))
	if !ok {
		cmd.SetErr(ErrCacheMiss)
		return cmd
	}
	cmd.SetVal(string(value))
	return cmd
}

// Set stores value under key. Non-string values are JSON encoded with sonic.
func (fc *FastCache) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	cmd := redis.NewStatusCmd(ctx, "set", key)

	var valueBytes []byte
	switch v := value.(type) {
	case string:
		valueBytes = []byte(v)
	case []byte:
		valueBytes = v
	default:
		data, err := sonic.Marshal(v)
		if err != nil {
			cmd.SetErr(err)
			return cmd
		}
		valueBytes = data
	}

	fc.cache.Set([]byte(key), valueBytes)
	if expiration > 0 {
		fc.ttls.Store(key, time.Now().Add(expiration))
	} else {
		fc.ttls.Delete(key)
	}

	cmd.SetVal("OK")
	return cmd
}

// Del deletes the given keys
func (fc *FastCache) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	count := 0
	for _, key := range keys {
		if fc.cache.Has([]byte(key)) {
			fc.cache.Del([]byte(key))
			count++
		}
		fc.ttls.Delete(key)
	}

	cmd := redis.NewIntCmd(ctx, "del")
	cmd.SetVal(int64(count))
	return cmd
}

// Incr increments the integer stored at key, starting from zero.
func (fc *FastCache) Incr(ctx context.Context, key string) *redis.IntCmd {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	cmd := redis.NewIntCmd(ctx, "incr", key)

	var n int64
	if raw, ok := fc.cache.HasGet(nil, []byte(key)); ok && !fc.expired(key) {
		parsed, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			cmd.SetErr(err)
			return cmd
		}
		n = parsed
	}
	n++
	fc.cache.Set([]byte(key), []byte(strconv.FormatInt(n, 10)))
	fc.ttls.Delete(key)

	cmd.SetVal(n)
	return cmd
}

// Clear drops every entry.
func (fc *FastCache) Clear() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.cache.Reset()
	fc.ttls.Range(func(k, _ any) bool {
		fc.ttls.Delete(k)
		return true
	})
}
