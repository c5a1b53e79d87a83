package store

import (
	"context"
	"time"
)

// Store is the adapter over the key-value service backing the cache and the
// rate limiter. Implementations serialize nothing themselves: values are
// opaque byte slices and the caller owns their encoding.
//
// Get treats a missing key as a normal outcome, not an error. A Store error
// from Get means the backend itself failed (timeout, connection refused) —
// callers are expected to degrade to a cache miss.
type Store interface {
	// Get retrieves the value stored at key. found is false when the key
	// does not exist or has expired.
	Get(ctx context.Context, key string) (found bool, data []byte, err error)

	// Set stores data at key with the given TTL. ttl must be positive.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrementAndExpire atomically increments the counter at key and,
	// only when this increment creates the key, sets its expiry to window.
	// The increment and the conditional expiry happen in a single round
	// trip so the counter can never exist without a deadline.
	IncrementAndExpire(ctx context.Context, key string, window time.Duration) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// DefaultOpTimeout bounds every round trip to a remote store. Prevents a
// slow backend from hanging request handlers.
const DefaultOpTimeout = 5 * time.Second

type config struct {
	opTimeout   time.Duration
	prefix      string
	expiryCheck time.Duration
	clock       func() time.Time
}

// Option configures a Store implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		opTimeout:   DefaultOpTimeout,
		expiryCheck: time.Minute,
		clock:       time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithOpTimeout sets the per-operation timeout for remote stores.
// Defaults to DefaultOpTimeout.
func WithOpTimeout(d time.Duration) Option {
	return func(c *config) { c.opTimeout = d }
}

// WithPrefix namespaces every key, so multiple environments can share one
// Redis instance. Applies to the Redis backend.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithExpiryCheck sets the sweep interval for expired entries in the
// in-memory backend. Defaults to 1 minute.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithClock overrides the time source of the in-memory backend. Tests use
// this to exercise TTL expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.clock = now }
}
