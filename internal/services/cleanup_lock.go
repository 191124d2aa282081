package services

import (
	"context"
	"log/slog"
	"time"

	"prismx/internal/logging"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// CleanupLock serialises retention cleanup runs.
// TryAcquire never blocks: ok=false means another run holds the lock.
type CleanupLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

const (
	cleanupLockKey = "prismx:patterns:cleanup-lock"
	// A crashed holder frees the lock after this long
	defaultCleanupLockTTL = 30 * time.Second
)

// LocalCleanupLock is a process-local lock with a TTL, backed by go-cache
type LocalCleanupLock struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewLocalCleanupLock creates a process-local cleanup lock
func NewLocalCleanupLock(ttl time.Duration) *LocalCleanupLock {
	if ttl <= 0 {
		ttl = defaultCleanupLockTTL
	}
	return &LocalCleanupLock{
		cache: cache.New(ttl, time.Minute),
		ttl:   ttl,
	}
}

// TryAcquire takes the lock if nobody holds it
func (l *LocalCleanupLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	token := uuid.NewString()
	if err := l.cache.Add(cleanupLockKey, token, l.ttl); err != nil {
		return nil, false, nil
	}

	release := func() {
		if v, ok := l.cache.Get(cleanupLockKey); ok && v == token {
			l.cache.Delete(cleanupLockKey)
		}
	}
	return release, true, nil
}

// RedisCleanupLock coordinates cleanup across every instance sharing a Redis
type RedisCleanupLock struct {
	redis      *RedisService
	key        string
	ttl        time.Duration
	instanceID string
	logger     *slog.Logger
}

// NewRedisCleanupLock creates a distributed cleanup lock
func NewRedisCleanupLock(redisService *RedisService, ttl time.Duration) *RedisCleanupLock {
	if ttl <= 0 {
		ttl = defaultCleanupLockTTL
	}
	return &RedisCleanupLock{
		redis:      redisService,
		key:        cleanupLockKey,
		ttl:        ttl,
		instanceID: uuid.NewString(),
		logger:     logging.WithComponent("cleanup-lock"),
	}
}

// TryAcquire sets the lock key with NX; the token is unique per acquisition
func (l *RedisCleanupLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := l.instanceID + ":" + uuid.NewString()

	acquired, err := l.redis.AcquireLock(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		// The caller's context may already be cancelled; releasing must still happen
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := l.redis.ReleaseLock(releaseCtx, l.key, token); err != nil {
			l.logger.Warn("failed to release cleanup lock", "error", err)
		}
	}
	return release, true, nil
}
