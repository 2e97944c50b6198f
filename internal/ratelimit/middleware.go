package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Middleware limits requests per client address, answering 429 when a
// client exceeds the limiter's window budget.
func Middleware(limiter *Limiter, log *slog.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}

		result, err := limiter.Check(key)
		if err != nil {
			log.Warn("request rate limited",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
			)
			retryAfter := int64(time.Until(result.ResetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
