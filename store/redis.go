package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	cfg    config
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis. The caller owns the
// redis.Client lifecycle — Close is a no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) Store {
	return &redisStore{
		client: client,
		cfg:    applyOptions(opts),
	}
}

func (s *redisStore) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.opTimeout)
}

func (s *redisStore) prefixKey(key string) string {
	if s.cfg.prefix == "" {
		return key
	}
	return s.cfg.prefix + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	data, err := s.client.Get(octx, s.prefixKey(key)).Bytes()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, errors.Wrapf(err, "store: get %s", key)
	}
	return true, data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.Errorf("store: set %s: ttl must be positive, got %s", key, ttl)
	}
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Set(octx, s.prefixKey(key), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "store: set %s", key)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Del(octx, s.prefixKey(key)).Err(); err != nil {
		return errors.Wrapf(err, "store: delete %s", key)
	}
	return nil
}

func (s *redisStore) IncrementAndExpire(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, errors.Errorf("store: increment %s: window must be positive, got %s", key, window)
	}
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	k := s.prefixKey(key)
	// INCR and EXPIRE NX pipelined into one round trip. EXPIRE NX only sets
	// the deadline when the key has none, which is exactly the increment
	// that created it.
	pipe := s.client.Pipeline()
	incr := pipe.Incr(octx, k)
	pipe.ExpireNX(octx, k, window)
	if _, err := pipe.Exec(octx); err != nil {
		return 0, errors.Wrapf(err, "store: increment %s", key)
	}
	return incr.Val(), nil
}

// Close is a no-op — the caller owns the redis.Client lifecycle.
func (s *redisStore) Close() error {
	return nil
}
