package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Dosada05/talent-vote/ratelimit"
)

type Limiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// RateLimit ограничивает запросы по IP клиента. При недоступном Redis запрос пропускается.
func RateLimit(limiter Limiter, scope string, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := clientIP(r)
			decision, err := limiter.Allow(r.Context(), scope, subject, limit, window)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("scope", scope), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter/time.Second)))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, please retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
