package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookwise-api/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}, mr
}

func TestWithLockSerialises(t *testing.T) {
	locker, _ := newLocker(t)
	key := locker.Key("checkout", "user-1")
	require.Equal(t, "bookwise:lock:checkout:user-1", key)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, key, time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()
	<-firstDone

	go func() {
		defer wg.Done()
		_ = locker.WithLock(ctx, key, time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	close(releaseFirst)
	wg.Wait()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockGivesUpAfterMaxWait(t *testing.T) {
	locker, mr := newLocker(t)
	key := locker.Key("checkout", "user-2")
	require.NoError(t, mr.Set(key, "someone-else"))

	locker.MaxWait = 20 * time.Millisecond
	called := false
	err := locker.WithLock(context.Background(), key, time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrBusy)
	require.False(t, called)

	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestWithLockReleasesOnlyOwnToken(t *testing.T) {
	locker, mr := newLocker(t)
	key := locker.Key("checkout", "user-3")

	err := locker.WithLock(context.Background(), key, time.Second, func(context.Context) error {
		require.True(t, mr.Exists(key))
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
}
