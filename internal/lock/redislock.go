package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the lock is still held after MaxWait.
var ErrBusy = errors.New("lock: resource busy")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed mutual exclusion lock keyed by string.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls for a held lock. Zero waits
	// until ctx is done.
	MaxWait time.Duration
}

// Key joins parts under the locker prefix.
func (l Locker) Key(parts ...string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = "bookwise:lock"
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// WithLock runs fn while holding key. The lock expires after ttl and is
// released when fn returns, but only if this caller still owns it.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	var deadline time.Time
	if l.MaxWait > 0 {
		deadline = time.Now().Add(l.MaxWait)
	}
	token := uuid.NewString()

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrBusy
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
