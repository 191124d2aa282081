package services

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestLocalCleanupLock(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalCleanupLock(time.Minute)

	release, ok, err := lock.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Expected to acquire a free lock, got ok=%v err=%v", ok, err)
	}

	if _, ok, _ := lock.TryAcquire(ctx); ok {
		t.Fatal("Lock should not be acquired twice")
	}

	release()

	release2, ok, err := lock.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Expected to re-acquire after release, got ok=%v err=%v", ok, err)
	}
	release2()
}

func TestLocalCleanupLock_Expires(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalCleanupLock(50 * time.Millisecond)

	if _, ok, _ := lock.TryAcquire(ctx); !ok {
		t.Fatal("Expected to acquire a free lock")
	}

	time.Sleep(100 * time.Millisecond)

	release, ok, _ := lock.TryAcquire(ctx)
	if !ok {
		t.Fatal("Expired lock should be acquirable")
	}
	release()
}

func TestLocalCleanupLock_StaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalCleanupLock(50 * time.Millisecond)

	staleRelease, _, _ := lock.TryAcquire(ctx)
	time.Sleep(100 * time.Millisecond)

	_, ok, _ := lock.TryAcquire(ctx)
	if !ok {
		t.Fatal("Expected the second holder to acquire the expired lock")
	}

	// The first holder's release must not free the second holder's lock
	staleRelease()
	if _, ok, _ := lock.TryAcquire(ctx); ok {
		t.Error("Stale release freed a lock it no longer owned")
	}
}

func TestLocalCleanupLock_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok, err := NewLocalCleanupLock(time.Second).TryAcquire(ctx); ok || err == nil {
		t.Errorf("Expected error for cancelled context, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCleanupLock(t *testing.T) {
	redisURL := os.Getenv("REDIS_TEST_URL")
	if redisURL == "" {
		t.Skip("REDIS_TEST_URL not set - skipping Redis lock test")
	}

	ctx := context.Background()
	redisService, err := NewRedisService(ctx, redisURL)
	if err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisService.Close()

	first := NewRedisCleanupLock(redisService, 5*time.Second)
	second := NewRedisCleanupLock(redisService, 5*time.Second)
	first.key = "prismx:test:cleanup-lock:" + time.Now().Format("150405.000000000")
	second.key = first.key
	defer redisService.Client().Del(ctx, first.key)

	release, ok, err := first.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Expected first instance to acquire, got ok=%v err=%v", ok, err)
	}

	if _, ok, err := second.TryAcquire(ctx); err != nil || ok {
		t.Fatalf("Second instance should be refused, got ok=%v err=%v", ok, err)
	}

	release()

	release2, ok, err := second.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("Expected second instance to acquire after release, got ok=%v err=%v", ok, err)
	}
	release2()
}
