package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/coursehub-backend/internal/platform/envutil"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker hands out short-lived named locks. Release is safe to call more than
// once and only removes a lock the caller still owns.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	Close() error
}

// release only deletes the key while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type locker struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	wait   time.Duration
	poll   time.Duration
}

// NewLocker connects using REDIS_ADDR. An empty address is an error, callers
// fall back to NewNoopLocker.
func NewLocker(log *logger.Logger) (Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewLockerFromClient(log, rdb), nil
}

func NewLockerFromClient(log *logger.Logger, rdb goredis.UniversalClient) Locker {
	return &locker{
		log:    log.With("client", "RedisLocker"),
		rdb:    rdb,
		prefix: envutil.String("REDIS_LOCK_PREFIX", "coursehub:lock:"),
		wait:   envutil.Seconds("REDIS_LOCK_WAIT", 5*time.Second),
		poll:   50 * time.Millisecond,
	}
}

// Client exposes the underlying connection for health collectors.
func (l *locker) Client() goredis.UniversalClient { return l.rdb }

// ClientOf returns the Redis connection behind l, or nil for a no-op locker.
func ClientOf(l Locker) goredis.UniversalClient {
	if c, ok := l.(interface{ Client() goredis.UniversalClient }); ok {
		return c.Client()
	}
	return nil
}

// Acquire polls SET NX until the lock is taken, the wait budget runs out
// (ErrLockNotAcquired) or ctx ends.
func (l *locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.rdb == nil {
		return nil, fmt.Errorf("redis locker not initialized")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	full := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", key, ErrLockNotAcquired)
		}
		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			l.log.Warn("redis lock release failed", "key", key, "error", err)
		}
	}, nil
}

func (l *locker) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}

type noopLocker struct{}

// NewNoopLocker is used when Redis is not configured; store-level uniqueness
// still guarantees correctness.
func NewNoopLocker() Locker { return noopLocker{} }

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

func (noopLocker) Close() error { return nil }
