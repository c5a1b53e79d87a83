package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type entry struct {
	data    []byte
	expires time.Time
}

type memoryStore struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]*entry
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Store = (*memoryStore)(nil)

// NewMemory returns an in-process Store. Used when no remote key-value
// service is configured (local development, tests). Entries are not shared
// across processes and are lost on restart.
func NewMemory(parent context.Context, opts ...Option) Store {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	s := &memoryStore{
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		cfg:     cfg,
	}
	s.waitGroup.Add(1)
	go s.run()
	return s
}

func (s *memoryStore) Get(_ context.Context, key string) (bool, []byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false, nil, nil
	}
	if e.expires.Before(s.cfg.clock()) {
		delete(s.entries, key)
		return false, nil, nil
	}
	return true, e.data, nil
}

func (s *memoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.Errorf("store: set %s: ttl must be positive, got %s", key, ttl)
	}
	s.mutex.Lock()
	s.entries[key] = &entry{data: data, expires: s.cfg.clock().Add(ttl)}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.entries, key)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) IncrementAndExpire(_ context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, errors.Errorf("store: increment %s: window must be positive, got %s", key, window)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	now := s.cfg.clock()
	e, ok := s.entries[key]
	if ok && e.expires.Before(now) {
		delete(s.entries, key)
		ok = false
	}
	if !ok {
		s.entries[key] = &entry{data: []byte("1"), expires: now.Add(window)}
		return 1, nil
	}
	count, err := strconv.ParseInt(string(e.data), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "store: increment %s: not a counter", key)
	}
	count++
	e.data = []byte(strconv.FormatInt(count, 10))
	return count, nil
}

func (s *memoryStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.waitGroup.Wait()
	})
	return nil
}

func (s *memoryStore) run() {
	defer s.waitGroup.Done()
	ticker := time.NewTicker(s.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.cfg.clock()
			s.mutex.Lock()
			for key, e := range s.entries {
				if e.expires.Before(now) {
					delete(s.entries, key)
				}
			}
			s.mutex.Unlock()
		}
	}
}
