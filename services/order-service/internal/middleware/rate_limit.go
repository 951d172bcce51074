package middleware

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit caps requests per client IP over a sliding window, counted
// in Redis so the limit holds across service instances. Redis being
// down fails open: the checkout path should not die with the limiter.
func RateLimit(rdb *redis.Client, log zerolog.Logger, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "rate_limit:" + r.RemoteAddr

			current, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if current == 1 {
				rdb.Expire(ctx, key, window)
			}
			if current > int64(limit) {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
