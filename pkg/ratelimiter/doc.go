// Package ratelimiter implements token bucket rate limiting with in-memory and
// Redis storage, plus an HTTP middleware.
//
// A bucket holds up to Capacity tokens and gains RefillRate tokens every
// RefillInterval. A request that finds too few tokens is denied and consumes
// nothing.
//
//	store := ratelimiter.NewRedisStore(client)
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.PerMinute(60))
//	if err != nil {
//		return err
//	}
//
//	res, err := limiter.Allow(ctx, "tenant:acme")
//	if err != nil {
//		return err
//	}
//	if !res.Allowed() {
//		// retry after res.RetryAfter()
//	}
//
// MemoryStore suits a single process. RedisStore evaluates the bucket in a
// Lua script, so every process sharing the Redis instance sees one bucket per key.
//
// # HTTP Middleware
//
//	r.With(ratelimiter.Middleware(limiter, ratelimiter.ByRemoteIP)).Get("/ws", ws.ServeHTTP)
//
// The middleware sets X-RateLimit-* headers and answers 429 with Retry-After
// when a key is exhausted.
package ratelimiter
