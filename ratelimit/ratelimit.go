// Package ratelimit holds the fixed-window rate limiter gating
// TravelBlogr's calls to external APIs (geocoding, weather, image search,
// LLM completion). Counters live in the shared key-value store so budgets
// hold across process restarts and replicas.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/travelblogr/go-common/cache"
	"github.com/travelblogr/go-common/logger"
	"github.com/travelblogr/go-common/store"
)

// FailureMode decides what a limiter answers when the store is
// unreachable. Fail-open lets the call through (right for free or cheap
// origins, where an unreachable cache should not take the feature down);
// fail-closed denies it (right for paid or metered origins, where
// unmetered calls cost real money).
type FailureMode int

const (
	FailOpen FailureMode = iota
	FailClosed
)

func (m FailureMode) String() string {
	switch m {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseFailureMode parses "open" or "closed".
func ParseFailureMode(s string) (FailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, errors.Errorf("ratelimit: unknown failure mode %q (want open or closed)", s)
	}
}

// APILimit is the per-API budget: Limit calls per Window per caller, and
// the failure mode applied when the store cannot answer.
type APILimit struct {
	Limit        int64
	Window       time.Duration
	OnStoreError FailureMode
}

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	// Degraded is true when the store was unreachable and the decision
	// came from the API's configured failure mode instead of a counter.
	Degraded bool
}

// Limiter answers "is this caller over budget for this API in the current
// window". It is a fixed-window counter: simple and race-free through the
// store's atomic increment, with the known property that a caller can
// burst up to twice the limit across a window boundary. Accepted at this
// system's scale; a sliding window is the upgrade path if API costs grow.
type Limiter struct {
	store  store.Store
	limits map[string]APILimit
	logger logger.Logger
}

// New validates the per-API table and builds a Limiter. Malformed limits
// fail fast: a silently defaulted budget is a cost risk worse than a
// crashed deploy.
func New(st store.Store, limits map[string]APILimit, log logger.Logger) (*Limiter, error) {
	if st == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if log == nil {
		return nil, errors.New("ratelimit: logger is required")
	}
	if len(limits) == 0 {
		return nil, errors.New("ratelimit: at least one api limit is required")
	}
	table := make(map[string]APILimit, len(limits))
	for api, limit := range limits {
		if api == "" {
			return nil, errors.New("ratelimit: empty api name")
		}
		if limit.Limit <= 0 {
			return nil, errors.Errorf("ratelimit: limit for %q must be positive, got %d", api, limit.Limit)
		}
		if limit.Window <= 0 {
			return nil, errors.Errorf("ratelimit: window for %q must be positive, got %s", api, limit.Window)
		}
		table[api] = limit
	}
	return &Limiter{
		store:  st,
		limits: table,
		logger: log.WithPrefix("[ratelimit]"),
	}, nil
}

// CheckAndConsume consumes one unit of the caller's budget for api and
// reports whether the call is allowed. The increment and the limit check
// derive from a single atomic increment-and-read, so N concurrent callers
// against limit N get exactly N allowances.
//
// The returned error covers misuse only (unknown API, empty caller). A
// store outage is not an error to the caller: the API's failure mode
// decides, and the Decision is marked Degraded.
func (l *Limiter) CheckAndConsume(ctx context.Context, api, callerID string) (Decision, error) {
	limit, ok := l.limits[api]
	if !ok {
		return Decision{}, errors.Errorf("ratelimit: no limit configured for api %q", api)
	}
	if strings.TrimSpace(callerID) == "" {
		return Decision{}, errors.Errorf("ratelimit: empty caller id for api %q", api)
	}
	key, err := cache.BuildKey(cache.KindRateLimit, api, callerID)
	if err != nil {
		return Decision{}, err
	}
	count, err := l.store.IncrementAndExpire(ctx, key, limit.Window)
	if err != nil {
		switch limit.OnStoreError {
		case FailClosed:
			l.logger.Warn("store unreachable for %s, failing closed: %s", api, err)
			return Decision{Allowed: false, Remaining: 0, Limit: limit.Limit, Degraded: true}, nil
		default:
			l.logger.Warn("store unreachable for %s, failing open: %s", api, err)
			return Decision{Allowed: true, Remaining: 0, Limit: limit.Limit, Degraded: true}, nil
		}
	}
	if count > limit.Limit {
		return Decision{Allowed: false, Remaining: 0, Limit: limit.Limit}, nil
	}
	return Decision{Allowed: true, Remaining: limit.Limit - count, Limit: limit.Limit}, nil
}

// Limits returns the configured API names in no particular order.
func (l *Limiter) Limits() map[string]APILimit {
	out := make(map[string]APILimit, len(l.limits))
	for api, limit := range l.limits {
		out[api] = limit
	}
	return out
}
