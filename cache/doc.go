// Package cache is the cache-aside access layer shared by every TravelBlogr
// feature that fronts a slow or rate-limited origin: database queries,
// geocoding, weather, image search, and LLM completion.
//
// # Cache-aside
//
// Features never talk to the key-value store directly. They call
// [GetOrCompute] with a resource kind, the params identifying the resource,
// and a fallback that knows how to compute the value from its origin:
//
//	trip, err := cache.GetOrCompute(ctx, c, "trip", []any{tripID},
//	    func(ctx context.Context) (Trip, error) {
//	        return queries.GetTrip(ctx, tripID)
//	    },
//	)
//
// On a hit the fallback never runs. On a miss the fallback runs, its result
// is written back with the kind's TTL from the [Policy] table, and the
// value is returned. Origin errors propagate verbatim and are never cached.
// Store failures degrade to a permanent miss: the cache is an optimization,
// and its outage must only show up as latency.
//
// [GetOrComputeFound] covers origins that can report "not found" (a missing
// row, an empty image search). Absent results are returned uncached so the
// next call checks the origin again rather than serving cached emptiness.
//
// # Keys
//
// [BuildKey] derives every key in the system, including the rate limiter's
// counters (under the reserved [KindRateLimit] prefix). Params are
// normalized — trimmed, case-folded, stably stringified — so equal logical
// requests always land on the same entry, and over-long or
// delimiter-bearing params are digested to keep keys bounded and
// collision-free.
//
// # Invalidation
//
// Writes to an origin go through a [Router]: a static table mapping each
// write event to the entries it staled, in the same (kind, params) terms
// the entries were created with. Invalidate after the write commits, never
// before.
//
// # Stampedes
//
// Concurrent misses for the same key each run their fallback; the last
// write-back wins. At TravelBlogr's traffic this duplicate origin work is
// accepted. If it stops being acceptable, the fix is a short-lived
// in-flight marker so concurrent misses wait on one computation — with the
// new failure mode that a crashed computation has to time out before
// anyone retries.
package cache
