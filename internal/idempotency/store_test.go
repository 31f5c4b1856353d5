package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, nil, time.Hour), mr
}

func TestNewStoreWithoutBackends(t *testing.T) {
	assert.Nil(t, NewStore(nil, nil, time.Hour))
}

func TestRedisReserveFinalizeReplay(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Reserve(ctx, "k1", "h1", "POST", "/v1/wallet/transfer")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "k1", "h1", "POST", "/v1/wallet/transfer")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrInProgress)
	_, err = s.Lookup(ctx, "k1", "other")
	assert.ErrorIs(t, err, ErrHashMismatch)

	_, err = s.Finalize(ctx, "k1", "h1", 201, []byte(`{"status":"success"}`), "application/json")
	require.NoError(t, err)

	rec, err := s.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"status":"success"}`, string(rec.Body))
	assert.Equal(t, "redis", rec.ServedBy)

	assert.InDelta(t, time.Hour.Seconds(), mr.TTL(redisKey("k1")).Seconds(), 1)
	mr.FastForward(2 * time.Hour)
	_, err = s.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisRelease(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "k2", "h", "POST", "/p")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Release(ctx, "k2"))

	ok, err = s.Reserve(ctx, "k2", "h", "POST", "/p")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitForCompletion(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "k3", "h", "POST", "/p")
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(100 * time.Millisecond)
		_, err := s.Finalize(ctx, "k3", "h", 200, []byte("{}"), "application/json")
		assert.NoError(t, err)
	}()

	rec, err := s.WaitForCompletion(ctx, "k3", "h")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)
	wg.Wait()

	ok, err = s.Reserve(ctx, "k4", "h", "POST", "/p")
	require.NoError(t, err)
	require.True(t, ok)
	short, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = s.WaitForCompletion(short, "k4", "h")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
