package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huangang/erpsettings/internal/config"
)

func TestFastCache_SetGet(t *testing.T) {
	cache := NewFastCache(FastCacheConfig{MaxBytes: 1024 * 1024})
	defer cache.Clear()

	ctx := context.Background()
	if cmd := cache.Set(ctx, "k", "v", 0); cmd.Val() != "OK" {
		t.Fatalf("expected OK, got %s (err %v)", cmd.Val(), cmd.Err())
	}

	got, err := cache.Get(ctx, "k").Result()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "v" {
		t.Errorf("expected v, got %s", got)
	}
}

func TestFastCache_Miss(t *testing.T) {
	cache := NewFastCache(FastCacheConfig{})
	_, err := cache.Get(context.Background(), "absent").Result()
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestFastCache_StructValuesUseJSON(t *testing.T) {
	cache := NewFastCache(FastCacheConfig{})
	ctx := context.Background()

	cache.Set(ctx, "obj", map[string]int{"a": 1}, 0)
	got, err := cache.Get(ctx, "obj").Result()
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"a":1}` {
		t.Errorf("expected JSON encoding, got %s", got)
	}
}

func TestFastCache_Expiration(t *testing.T) {
	cache := NewFastCache(FastCacheConfig{})
	ctx := context.Background()

	cache.Set(ctx, "short", "v", 20*time.Millisecond)
	if v := cache.Get(ctx, "short").Val(); v != "v" {
		t.Fatalf("expected v before expiry, got %q", v)
	}
	time.Sleep(40 * time.Millisecond)
	if err := cache.Get(ctx, "short").Err(); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after expiry, got %v", err)
	}
}

func TestFastCache_Del(t *testing.T) {
	cache := NewFastCache(FastCacheConfig{})
	ctx := context.Background()

	cache.Set(ctx, "a", "1", 0)
	cache.Set(ctx, "b", "2", 0)

	if n := cache.Del(ctx, "a", "b", "c").Val(); n != 2 {
		t.Errorf("expected 2 deletions, got %d", n)
	}
	if err := cache.Get(ctx, "a").Err(); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected a to be gone, got %v", err)
	}
}

func TestFastCache_Incr(t *testing.T) {
	cache := NewFastCache(FastCacheConfig{})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		if got := cache.Incr(ctx, "gen").Val(); got != want {
			t.Errorf("Incr() = %d, expected %d", got, want)
		}
	}

	cache.Set(ctx, "text", "abc", 0)
	if err := cache.Incr(ctx, "text").Err(); err == nil {
		t.Error("expected error incrementing a non-integer value")
	}
}

func TestNew_DefaultsToLocal(t *testing.T) {
	c := New(config.CacheConfig{Driver: "local"})
	if _, ok := c.(*FastCache); !ok {
		t.Errorf("expected *FastCache, got %T", c)
	}
}

func TestNew_UnreachableRedisFallsBack(t *testing.T) {
	c := New(config.CacheConfig{
		Driver: "redis",
		Redis:  config.RedisConfig{Addr: "127.0.0.1:1"},
	})
	if _, ok := c.(*FastCache); !ok {
		t.Errorf("expected fallback to *FastCache, got %T", c)
	}
}
