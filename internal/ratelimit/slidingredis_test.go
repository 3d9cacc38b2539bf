package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(t *testing.T) (Limiter, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := &clock{t: time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)}
	return Limiter{Client: client, Prefix: "test:", Now: c.now}, c
}

func TestLimiterAllowSlidingWindow(t *testing.T) {
	limiter, c := newLimiter(t)
	ctx := context.Background()
	window := time.Hour
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
		require.NoError(t, err)
		require.Truef(t, allowed, "request %d", i)
		require.Equal(t, max-(i+1), remaining)
		c.t = c.t.Add(10 * time.Minute)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "key", window, max)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
	// the first request leaves the window an hour after it was made
	require.Equal(t, c.t.Add(-20*time.Minute).Add(window).Unix(), reset.Unix())

	// the window slides: the first request has aged out
	c.t = c.t.Add(41 * time.Minute)
	allowed, _, _, err = limiter.Allow(ctx, "key", window, max)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newLimiter(t)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "a", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = limiter.Allow(ctx, "b", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = limiter.Allow(ctx, "a", time.Minute, 1)
	require.NoError(t, err)
	require.False(t, allowed)
}
