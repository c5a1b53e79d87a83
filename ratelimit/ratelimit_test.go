package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/travelblogr/go-common/logger"
	"github.com/travelblogr/go-common/store"
)

func newTestLimiter(t *testing.T, limits map[string]APILimit) (*miniredis.Miniredis, *Limiter, *logger.TestLogger) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	log := logger.NewTestLogger()
	limiter, err := New(store.NewRedis(client), limits, log)
	require.NoError(t, err)
	return mr, limiter, log
}

func TestCheckAndConsumeFixedWindow(t *testing.T) {
	_, limiter, _ := newTestLimiter(t, map[string]APILimit{
		"geocode": {Limit: 3, Window: time.Minute},
	})
	ctx := context.Background()

	// Four rapid calls for the same caller: allowed, allowed, allowed, denied.
	want := []struct {
		allowed   bool
		remaining int64
	}{
		{true, 2},
		{true, 1},
		{true, 0},
		{false, 0},
	}
	for i, expect := range want {
		decision, err := limiter.CheckAndConsume(ctx, "geocode", "u1")
		require.NoError(t, err)
		assert.Equal(t, expect.allowed, decision.Allowed, "call %d", i+1)
		assert.Equal(t, expect.remaining, decision.Remaining, "call %d", i+1)
		assert.Equal(t, int64(3), decision.Limit)
		assert.False(t, decision.Degraded)
	}
}

func TestCheckAndConsumeWindowReset(t *testing.T) {
	mr, limiter, _ := newTestLimiter(t, map[string]APILimit{
		"geocode": {Limit: 1, Window: time.Minute},
	})
	ctx := context.Background()

	decision, err := limiter.CheckAndConsume(ctx, "geocode", "u1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.CheckAndConsume(ctx, "geocode", "u1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	mr.FastForward(61 * time.Second)

	decision, err = limiter.CheckAndConsume(ctx, "geocode", "u1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckAndConsumeCallersIndependent(t *testing.T) {
	_, limiter, _ := newTestLimiter(t, map[string]APILimit{
		"weather": {Limit: 1, Window: time.Minute},
	})
	ctx := context.Background()

	decision, err := limiter.CheckAndConsume(ctx, "weather", "u1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.CheckAndConsume(ctx, "weather", "u2")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckAndConsumeAtomicUnderConcurrency(t *testing.T) {
	const limit = 25
	_, limiter, _ := newTestLimiter(t, map[string]APILimit{
		"llm": {Limit: limit, Window: time.Minute},
	})
	ctx := context.Background()

	// limit+10 concurrent calls must yield exactly limit allowances.
	var allowed atomic.Int64
	var g errgroup.Group
	for i := 0; i < limit+10; i++ {
		g.Go(func() error {
			decision, err := limiter.CheckAndConsume(ctx, "llm", "u1")
			if err != nil {
				return err
			}
			if decision.Allowed {
				allowed.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(limit), allowed.Load())

	// And the window stays exhausted afterwards.
	decision, err := limiter.CheckAndConsume(ctx, "llm", "u1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

// downStore fails every operation, simulating an unreachable backend.
type downStore struct {
	store.Store
}

func (downStore) IncrementAndExpire(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestCheckAndConsumeFailOpen(t *testing.T) {
	log := logger.NewTestLogger()
	limiter, err := New(downStore{}, map[string]APILimit{
		"weather": {Limit: 3, Window: time.Minute, OnStoreError: FailOpen},
	}, log)
	require.NoError(t, err)

	decision, err := limiter.CheckAndConsume(context.Background(), "weather", "u1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Degraded)
	assert.True(t, log.Contains("WARNING", "failing open"))
}

func TestCheckAndConsumeFailClosed(t *testing.T) {
	log := logger.NewTestLogger()
	limiter, err := New(downStore{}, map[string]APILimit{
		"llm": {Limit: 3, Window: time.Minute, OnStoreError: FailClosed},
	}, log)
	require.NoError(t, err)

	decision, err := limiter.CheckAndConsume(context.Background(), "llm", "u1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.Degraded)
	assert.True(t, log.Contains("WARNING", "failing closed"))
}

func TestCheckAndConsumeMisuse(t *testing.T) {
	_, limiter, _ := newTestLimiter(t, map[string]APILimit{
		"geocode": {Limit: 3, Window: time.Minute},
	})
	ctx := context.Background()

	_, err := limiter.CheckAndConsume(ctx, "imaginary", "u1")
	assert.Error(t, err)

	_, err = limiter.CheckAndConsume(ctx, "geocode", "  ")
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	st := store.NewMemory(context.Background())
	defer st.Close()
	log := logger.NewTestLogger()
	good := map[string]APILimit{"geocode": {Limit: 1, Window: time.Minute}}

	_, err := New(nil, good, log)
	assert.Error(t, err)

	_, err = New(st, nil, log)
	assert.Error(t, err)

	_, err = New(st, map[string]APILimit{"geocode": {Limit: 0, Window: time.Minute}}, log)
	assert.Error(t, err)

	_, err = New(st, map[string]APILimit{"geocode": {Limit: 1, Window: 0}}, log)
	assert.Error(t, err)
}

func TestParseFailureMode(t *testing.T) {
	mode, err := ParseFailureMode("open")
	assert.NoError(t, err)
	assert.Equal(t, FailOpen, mode)

	mode, err = ParseFailureMode(" Closed ")
	assert.NoError(t, err)
	assert.Equal(t, FailClosed, mode)

	_, err = ParseFailureMode("maybe")
	assert.Error(t, err)
}
