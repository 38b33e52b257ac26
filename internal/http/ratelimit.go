package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	applog "billbuddy/internal/log"
)

func newRateLimiter(limit int, window time.Duration) *limiter.Limiter {
	rate := limiter.Rate{Period: window, Limit: int64(limit)}
	return limiter.New(memory.NewStore(), rate)
}

// rateLimit rejects clients that exceed the limiter's rate with 429.
func rateLimit(l *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			logger := applog.FromContext(r.Context())

			lctx, err := l.Get(r.Context(), ip)
			if err != nil {
				logger.ErrorContext(r.Context(), "Failed to get rate limit context", "client_ip", ip, applog.FieldError, err)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				logger.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", ip, "limit", lctx.Limit)
				h.Set("Retry-After", strconv.Itoa(int(l.Rate.Period.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
