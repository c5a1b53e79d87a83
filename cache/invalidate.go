package cache

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/travelblogr/go-common/logger"
	"github.com/travelblogr/go-common/store"
)

// Event names a write to an origin that makes cached entries stale
// ("trip_updated", "profile_updated", "location_changed").
type Event string

// KeyRef identifies one cache entry to delete, in the same (kind, params)
// terms GetOrCompute uses to create it.
type KeyRef struct {
	Kind   Kind
	Params []any
}

// Rule maps a write event to the cache entries it staled. Keys receives
// the write's params and may derive any number of entries — updating a
// trip invalidates both the trip entry and the owner's trip listing.
type Rule struct {
	Event Event
	Keys  func(params ...any) []KeyRef
}

// Router deletes the cache entries staled by origin writes. Rules are
// static: provided at startup, read-only afterwards.
//
// Invalidate must be called after the origin write has committed.
// Invalidating first opens a race where a concurrent reader repopulates
// the cache with the pre-write value.
type Router struct {
	store  store.Store
	rules  map[Event]Rule
	logger logger.Logger
}

// NewRouter builds a Router from the given rules. Duplicate events and
// rules without a key derivation fail fast.
func NewRouter(st store.Store, log logger.Logger, rules ...Rule) (*Router, error) {
	if st == nil {
		return nil, errors.New("cache: store is required")
	}
	if log == nil {
		return nil, errors.New("cache: logger is required")
	}
	table := make(map[Event]Rule, len(rules))
	for _, rule := range rules {
		if rule.Event == "" {
			return nil, errors.New("cache: invalidation rule with empty event")
		}
		if rule.Keys == nil {
			return nil, errors.Errorf("cache: invalidation rule %q has no key derivation", rule.Event)
		}
		if _, dup := table[rule.Event]; dup {
			return nil, errors.Errorf("cache: duplicate invalidation rule %q", rule.Event)
		}
		table[rule.Event] = rule
	}
	return &Router{
		store:  st,
		rules:  table,
		logger: log.WithPrefix("[invalidate]"),
	}, nil
}

// Invalidate deletes every cache entry the event's rule derives from
// params. An unknown event is a programmer error and is returned as one.
// Individual deletion failures are logged, not returned: a lingering stale
// entry expires at its TTL, which is a bounded staleness window.
func (r *Router) Invalidate(ctx context.Context, event Event, params ...any) error {
	rule, ok := r.rules[event]
	if !ok {
		return errors.Errorf("cache: no invalidation rule for event %q", event)
	}
	for _, ref := range rule.Keys(params...) {
		key, err := BuildKey(ref.Kind, ref.Params...)
		if err != nil {
			return errors.Wrapf(err, "cache: invalidation rule %q", event)
		}
		if err := r.store.Delete(ctx, key); err != nil {
			r.logger.Warn("failed to delete %s for event %s: %s", key, event, err)
			continue
		}
		r.logger.Debug("invalidated %s for event %s", key, event)
	}
	return nil
}
