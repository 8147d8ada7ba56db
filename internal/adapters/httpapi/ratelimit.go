package httpapi

import (
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimit rejects requests beyond the limiter's budget with 429. The limiter is
// shared by every caller of the wrapped routes.
func RateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				retry := 1
				if lim := l.Limit(); lim > 0 && lim < 1 {
					retry = int(1/lim) + 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeAPIError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
