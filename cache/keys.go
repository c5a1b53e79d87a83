package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// Kind names a category of cached resource ("trip", "geocode", "image").
// Every Kind used with a Cache must have a TTL entry in its Policy.
type Kind string

// KindRateLimit prefixes rate-limit counter keys. It is reserved so limiter
// counters can never collide with data-cache entries, and a Policy will
// refuse a TTL entry for it — counter expiry is the limiter's window, not a
// cache decision.
const KindRateLimit Kind = "rate"

const delimiter = ":"

// maxParamLen bounds the length a single param contributes to a key.
// Longer params (free-text search queries) are replaced by their xxhash
// digest so keys stay bounded.
const maxParamLen = 64

// BuildKey derives the cache key for a resource kind and its identifying
// params. It is pure and deterministic: equal logical requests always yield
// the same key regardless of surface formatting (whitespace, letter case).
//
// Params may be strings, integers, floats, bools, or time.Time. Free-text
// strings are trimmed and lowercased; strings containing the key delimiter
// or exceeding maxParamLen are replaced by a fixed-width digest of their
// normalized form. NaN and infinite floats are rejected.
func BuildKey(kind Kind, params ...any) (string, error) {
	if kind == "" {
		return "", errors.New("cache: key kind must not be empty")
	}
	if strings.Contains(string(kind), delimiter) {
		return "", errors.Errorf("cache: key kind %q must not contain %q", kind, delimiter)
	}
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(kind))
	for i, param := range params {
		normalized, err := normalizeParam(param)
		if err != nil {
			return "", errors.Wrapf(err, "cache: key param %d for kind %q", i, kind)
		}
		parts = append(parts, normalized)
	}
	return strings.Join(parts, delimiter), nil
}

func normalizeParam(param any) (string, error) {
	switch v := param.(type) {
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if len(s) > maxParamLen || strings.Contains(s, delimiter) {
			return strconv.FormatUint(xxhash.Sum64String(s), 16), nil
		}
		return s, nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		// Compact UTC form with no delimiter characters.
		return v.UTC().Format("20060102t150405z"), nil
	case nil:
		return "", errors.New("nil param")
	default:
		return "", errors.Errorf("unsupported param type %T", param)
	}
}

func normalizeFloat(f float64) (string, error) {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if s == "NaN" || s == "+Inf" || s == "-Inf" {
		return "", errors.Errorf("non-finite float param %s", s)
	}
	return s, nil
}
