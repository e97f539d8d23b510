package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStoreFromClient(client)
}

func TestRedisStore_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)

	if _, ok, err := store.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Get() on empty = %v, %v", ok, err)
	}

	if err := store.Set(ctx, "k", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != `{"a":1}` {
		t.Fatalf("Get() = %q, %v, %v", got, ok, err)
	}
	if exists, _ := store.Exists(ctx, "k"); !exists {
		t.Error("Exists() false after Set")
	}

	mr.FastForward(time.Minute)
	if exists, _ := store.Exists(ctx, "k"); exists {
		t.Error("key survived its TTL")
	}

	_ = store.Set(ctx, "k2", []byte("v"), 0)
	if err := store.Delete(ctx, "k2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if exists, _ := store.Exists(ctx, "k2"); exists {
		t.Error("Exists() true after Delete")
	}
}

func TestRedisStore_FlushPrefix(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)

	for i := 0; i < 1200; i++ {
		_ = store.Set(ctx, fmt.Sprintf("%s%d", DefaultPrefix, i), []byte("x"), time.Hour)
	}
	_ = store.Set(ctx, "task:1", []byte("keep"), time.Hour)

	if err := store.Flush(ctx, DefaultPrefix); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "task:1" {
		t.Errorf("keys after flush = %v", keys)
	}
}

func TestResultCache_WithRedis(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedis(t)
	p := writeFile(t, t.TempDir(), "clip.mp4", "frames")
	c := New(store, time.Hour, quietLogger())

	c.Put(ctx, p, analysis{Description: "beach"}, 0)
	var got analysis
	if !c.Get(ctx, p, &got) || got.Description != "beach" {
		t.Errorf("Get() = %+v", got)
	}
}
