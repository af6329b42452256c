// Package middleware rate limits privilege-changing requests.
//
// RateLimiter keeps an in-process token bucket per key and suits a single
// replica. DistributedRateLimiter counts per fixed window in Redis and is
// used when a Redis URL is configured, so that every replica shares one
// budget per user:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, nil, "")
//	router.Use(middleware.RateLimit(limiter, middleware.UserKey, logger))
//
// Both limiters fail open: a Redis outage logs a warning and lets the
// request through.
package middleware
