package throttle

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Middleware limits requests per client IP under scope. Limiter errors
// let the request through.
func Middleware(l Limiter, scope string, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			ok, retry, err := l.Allow(r.Context(), scope+":"+ip)
			if err != nil {
				logger.Warnw("throttle check failed", "scope", scope, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				logger.Infow("throttled", "scope", scope, "remote", ip)
				secs := int(math.Ceil(retry.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many attempts. Please try again later."})
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
