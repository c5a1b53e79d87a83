package cache

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
)

// Policy is the static resource-kind to TTL table. It is built once at
// startup and read-only afterwards. A kind without an entry is a
// configuration error, never a silent "no cache" fallback.
type Policy struct {
	ttls map[Kind]time.Duration
}

// NewPolicy validates and builds a Policy. Every TTL must be positive, and
// the reserved rate-limit kind may not appear — counter expiry belongs to
// the limiter's window configuration.
func NewPolicy(ttls map[Kind]time.Duration) (*Policy, error) {
	if len(ttls) == 0 {
		return nil, errors.New("cache: ttl policy must not be empty")
	}
	table := make(map[Kind]time.Duration, len(ttls))
	for kind, ttl := range ttls {
		if kind == "" {
			return nil, errors.New("cache: ttl policy contains an empty kind")
		}
		if kind == KindRateLimit {
			return nil, errors.Errorf("cache: kind %q is reserved for rate-limit counters", KindRateLimit)
		}
		if ttl <= 0 {
			return nil, errors.Errorf("cache: ttl for kind %q must be positive, got %s", kind, ttl)
		}
		table[kind] = ttl
	}
	return &Policy{ttls: table}, nil
}

// TTLFor returns the TTL for kind. An unknown kind is a programmer error.
func (p *Policy) TTLFor(kind Kind) (time.Duration, error) {
	ttl, ok := p.ttls[kind]
	if !ok {
		return 0, errors.Errorf("cache: no ttl configured for kind %q", kind)
	}
	return ttl, nil
}

// Kinds returns every configured kind in sorted order.
func (p *Policy) Kinds() []Kind {
	kinds := make([]Kind, 0, len(p.ttls))
	for kind := range p.ttls {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
