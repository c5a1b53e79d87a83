package cache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/travelblogr/go-common/logger"
	"github.com/travelblogr/go-common/store"
)

// Cache is the cache-aside orchestrator every feature calls instead of
// talking to the store directly. It owns no data: the store owns entry
// lifetime and the fallback owns correctness.
type Cache struct {
	store  store.Store
	policy *Policy
	logger logger.Logger
	tracer trace.Tracer
}

// New builds a Cache over the given store and TTL policy.
func New(st store.Store, policy *Policy, log logger.Logger) (*Cache, error) {
	if st == nil {
		return nil, errors.New("cache: store is required")
	}
	if policy == nil {
		return nil, errors.New("cache: ttl policy is required")
	}
	if log == nil {
		return nil, errors.New("cache: logger is required")
	}
	return &Cache{
		store:  st,
		policy: policy,
		logger: log.WithPrefix("[cache]"),
		tracer: otel.Tracer("travelblogr/cache"),
	}, nil
}

// Policy returns the cache's TTL policy.
func (c *Cache) Policy() *Policy {
	return c.policy
}

// Fallback computes a value from its origin on a cache miss. The bool
// return distinguishes "not found at the origin" from a found zero value:
// when it is false nothing is cached, so absent records are re-checked on
// the next call instead of being served as cached emptiness.
type Fallback[T any] func(ctx context.Context) (T, bool, error)

// GetOrCompute returns the cached value for (kind, params), or computes it
// via fallback and caches the result with the kind's configured TTL.
//
// Store read failures degrade to a miss: the cache is an optimization, and
// an unreachable store must never fail a feature that the origin could
// still serve. Fallback errors propagate verbatim and are never cached.
// The write-back is best effort — losing it costs a future recompute,
// nothing more.
//
// Concurrent misses for the same key each run fallback and the last write
// wins. Both results come from the same origin query, so either is valid.
func GetOrCompute[T any](ctx context.Context, c *Cache, kind Kind, params []any, fallback func(ctx context.Context) (T, error)) (T, error) {
	val, _, err := GetOrComputeFound(ctx, c, kind, params, func(ctx context.Context) (T, bool, error) {
		v, err := fallback(ctx)
		return v, err == nil, err
	})
	return val, err
}

// GetOrComputeFound is GetOrCompute for origins that can report "not
// found" (a missing row, an image search with no results). A not-found
// result is returned with found=false and is not cached.
func GetOrComputeFound[T any](ctx context.Context, c *Cache, kind Kind, params []any, fallback Fallback[T]) (T, bool, error) {
	var zero T
	key, err := BuildKey(kind, params...)
	if err != nil {
		return zero, false, err
	}
	ttl, err := c.policy.TTLFor(kind)
	if err != nil {
		return zero, false, err
	}

	ctx, span := c.tracer.Start(ctx, "cache.get_or_compute",
		trace.WithAttributes(attribute.String("cache.kind", string(kind))))
	defer span.End()

	found, data, err := c.store.Get(ctx, key)
	if err != nil {
		// Degraded mode: treat the unreachable store as a miss and let the
		// origin serve the request.
		c.logger.Warn("store get failed for %s, treating as miss: %s", key, err)
		found = false
	}
	if found {
		var cached T
		if err := msgpack.Unmarshal(data, &cached); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, true, nil
		}
		// An entry we can no longer decode (value shape changed across a
		// deploy). Drop it and recompute.
		c.logger.Warn("dropping undecodable entry at %s", key)
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("failed to drop undecodable entry at %s: %s", key, err)
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	val, ok, err := fallback(ctx)
	if err != nil {
		span.RecordError(err)
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	data, err = msgpack.Marshal(val)
	if err != nil {
		c.logger.Warn("cannot serialize value for %s, skipping write-back: %s", key, err)
		return val, true, nil
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("store set failed for %s: %s", key, err)
	}
	return val, true, nil
}
