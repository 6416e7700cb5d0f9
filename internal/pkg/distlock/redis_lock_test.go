package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLockMutualExclusion(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	a := NewRedisLock(client, "sweep", time.Minute)
	b := NewRedisLock(client, "sweep", time.Minute)

	ok, err := a.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, err = b.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatal("second holder acquired a held lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = b.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !ok {
		t.Fatal("acquire should succeed once the lock is released")
	}
}

func TestRedisLockReleaseOnlyOwn(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	a := NewRedisLock(client, "dispatch", time.Minute)
	b := NewRedisLock(client, "dispatch", time.Minute)

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	// b never acquired; its release must not free a's lock.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("lock was freed by a non-owner release")
	}
}

func TestRedisLockExtend(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	l := NewRedisLock(client, "tick", time.Minute)
	if ok, _ := l.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Extend(ctx, 5*time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	ttl, err := client.PTTL(ctx, "loyalty:lock:tick").Result()
	if err != nil {
		t.Fatalf("pttl: %v", err)
	}
	if ttl <= time.Minute {
		t.Errorf("ttl = %v, want extended past 1m", ttl)
	}
}
