package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding window limiter backed by Redis sorted sets. Each
// request is a member scored by its timestamp; members older than the window
// are trimmed before counting.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records one request for key and reports whether it fits in the window.
// reset is when the oldest counted request leaves the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := l.now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	cutoff := now.Add(-window).UnixNano()
	redisKey := l.Prefix + key
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%d", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.Expire(ctx, redisKey, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, now.Add(window), err
	}

	reset = now.Add(window)
	if oldest := oldestCmd.Val(); len(oldest) == 1 {
		reset = time.Unix(0, int64(oldest[0].Score)).Add(window)
	}
	current := int(countCmd.Val())
	remaining = max - current
	if current > max {
		// rejected requests do not occupy the window
		_ = l.Client.ZRem(ctx, redisKey, member).Err()
		return false, 0, reset, nil
	}
	return true, remaining, reset, nil
}
