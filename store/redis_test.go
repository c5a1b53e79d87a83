package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client)
}

func TestRedisGetMissing(t *testing.T) {
	_, s := newTestRedis(t)
	found, data, err := s.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestRedisSetGetDelete(t *testing.T) {
	_, s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "trip:t1", []byte(`{"title":"alps"}`), time.Minute))
	found, data, err := s.Get(ctx, "trip:t1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"title":"alps"}`), data)

	require.NoError(t, s.Delete(ctx, "trip:t1"))
	found, _, err = s.Get(ctx, "trip:t1")
	assert.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, "trip:t1"))
}

func TestRedisSetRejectsNonPositiveTTL(t *testing.T) {
	_, s := newTestRedis(t)
	assert.Error(t, s.Set(context.Background(), "k", []byte("v"), 0))
	assert.Error(t, s.Set(context.Background(), "k", []byte("v"), -time.Second))
}

func TestRedisTTLExpiry(t *testing.T) {
	mr, s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "weather:paris", []byte("sunny"), time.Minute))
	mr.FastForward(61 * time.Second)

	found, _, err := s.Get(ctx, "weather:paris")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRedisPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedis(client, WithPrefix("staging"))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "trip:t1", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("staging:trip:t1"))

	found, data, err := s.Get(ctx, "trip:t1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), data)
}

func TestRedisIncrementAndExpire(t *testing.T) {
	mr, s := newTestRedis(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := s.IncrementAndExpire(ctx, "rate:geocode:u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// The deadline is set by the increment that created the key and is not
	// refreshed by later increments.
	ttl := mr.TTL("rate:geocode:u1")
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl %s", ttl)

	// A fresh window starts counting from 1 again.
	mr.FastForward(61 * time.Second)
	count, err := s.IncrementAndExpire(ctx, "rate:geocode:u1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisIncrementRejectsNonPositiveWindow(t *testing.T) {
	_, s := newTestRedis(t)
	_, err := s.IncrementAndExpire(context.Background(), "rate:x:y", 0)
	assert.Error(t, err)
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedis(client, WithOpTimeout(time.Second))
	ctx := context.Background()
	mr.Close()

	_, _, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	_, err = s.IncrementAndExpire(ctx, "k", time.Minute)
	assert.Error(t, err)
}
