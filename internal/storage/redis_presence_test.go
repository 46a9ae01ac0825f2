package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func newTestPresence(t *testing.T, ttl time.Duration) *RedisPresence {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	p, err := NewRedisPresence(Config{Addr: addr, DB: 15}, ttl)
	if err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPresenceKey(t *testing.T) {
	if got := presenceKey(42); got != "im:presence:42" {
		t.Errorf("presenceKey(42) = %q", got)
	}
}

func TestRedisPresence_OnlineOffline(t *testing.T) {
	p := newTestPresence(t, time.Minute)
	ctx := context.Background()
	const uid = 900001

	if err := p.SetUserOnline(ctx, uid, true, time.Now()); err != nil {
		t.Fatalf("SetUserOnline(true) error = %v", err)
	}
	ttl, err := p.rdb.TTL(ctx, presenceKey(uid)).Result()
	if err != nil {
		t.Fatalf("TTL error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}

	if err := p.SetUserOnline(ctx, uid, false, time.Now()); err != nil {
		t.Fatalf("SetUserOnline(false) error = %v", err)
	}
	n, err := p.rdb.Exists(ctx, presenceKey(uid)).Result()
	if err != nil {
		t.Fatalf("Exists error = %v", err)
	}
	if n != 0 {
		t.Errorf("key still exists after offline")
	}
}

func TestRedisPresence_Refresh(t *testing.T) {
	p := newTestPresence(t, 30*time.Second)
	ctx := context.Background()
	const uid = 900002
	t.Cleanup(func() { p.rdb.Del(context.Background(), presenceKey(uid)) })

	if err := p.rdb.Set(ctx, presenceKey(uid), 1, 2*time.Second).Err(); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if err := p.Refresh(ctx, []uint{uid}); err != nil {
		t.Fatalf("Refresh error = %v", err)
	}
	ttl, _ := p.rdb.TTL(ctx, presenceKey(uid)).Result()
	if ttl <= 2*time.Second {
		t.Errorf("TTL after refresh = %v, want > 2s", ttl)
	}
	if err := p.Refresh(ctx, nil); err != nil {
		t.Errorf("Refresh(nil) error = %v", err)
	}
}

func TestRedisPresence_RefreshWrapsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	p := &RedisPresence{rdb: rdb, ttl: time.Minute}
	t.Cleanup(func() { _ = p.Close() })

	err := p.Refresh(context.Background(), []uint{1})
	if err == nil {
		t.Fatal("Refresh() against unreachable redis returned nil")
	}
	if !strings.HasPrefix(err.Error(), "refresh 1 presence keys: ") {
		t.Errorf("Refresh() error = %q", err)
	}
	if errors.Cause(err) == err {
		t.Error("Refresh() error carries no wrapped cause")
	}
}
