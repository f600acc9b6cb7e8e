package router

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ovaphlow/neuroflow/service-core/internal/auth"
	"github.com/ovaphlow/neuroflow/service-core/internal/chatbot"
	"github.com/ovaphlow/neuroflow/service-core/internal/habit"
	"github.com/ovaphlow/neuroflow/service-core/internal/routine"
	"github.com/ovaphlow/neuroflow/service-core/internal/throttle"
	"github.com/ovaphlow/neuroflow/service-core/internal/user"
)

const (
	serviceName = "NeuroFlow Suite API"
	version     = "1.0.0"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request once it completes.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			// the web client captures faces in the browser; the API itself never needs the camera
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware turns a panic into a JSON 500.
func RecoveryMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Errorw("panic in handler", "path", r.URL.Path, "panic", rec)
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORSConfigFromEnv reads CORS_ALLOWED_ORIGINS (comma separated). Empty
// means the local web client only.
func CORSConfigFromEnv() cors.Options {
	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins = origins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

// Pinger reports database reachability for the health endpoint.
type Pinger func(ctx context.Context) bool

// Deps carries everything the router mounts.
type Deps struct {
	Logger   *zap.SugaredLogger
	Tokens   *auth.TokenService
	Users    *user.Handler
	Habits   *habit.Handler
	Routines *routine.Handler
	Chatbot  *chatbot.Handler
	// LoginLimiter throttles the login endpoints; nil disables throttling.
	LoginLimiter throttle.Limiter
	DBReady      Pinger
	CORS         cors.Options
	Started      time.Time
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	protect := auth.RequireAuth(d.Tokens)
	guarded := func(h http.HandlerFunc) http.Handler { return protect(h) }
	throttled := func(h http.HandlerFunc) http.Handler {
		if d.LoginLimiter == nil {
			return h
		}
		return throttle.Middleware(d.LoginLimiter, "login", d.Logger)(h)
	}

	mux.HandleFunc("GET /api/health", healthHandler(d))
	mux.HandleFunc("GET /{$}", rootHandler)

	// users
	mux.Handle("POST /api/signup/face", throttled(d.Users.SignupFace))
	mux.Handle("POST /api/login/face", throttled(d.Users.LoginFace))
	mux.Handle("POST /api/login", throttled(d.Users.Login))
	mux.Handle("GET /api/users/me", guarded(d.Users.Me))
	mux.Handle("PUT /api/users/me/face", guarded(d.Users.ReenrollFace))
	mux.Handle("PUT /api/users/me/preferences", guarded(d.Users.UpdatePreferences))
	mux.Handle("DELETE /api/users/me", guarded(d.Users.Delete))

	// habits
	mux.Handle("GET /api/habits", guarded(d.Habits.List))
	mux.Handle("POST /api/habits", guarded(d.Habits.Create))
	mux.Handle("GET /api/habits/streaks", guarded(d.Habits.Streaks))
	mux.Handle("POST /api/habits/{id}/complete", guarded(d.Habits.Complete))
	mux.Handle("DELETE /api/habits/{id}", guarded(d.Habits.Delete))

	// routines
	mux.Handle("GET /api/routines", guarded(d.Routines.List))
	mux.Handle("POST /api/routines", guarded(d.Routines.Create))
	mux.Handle("PUT /api/routines/{id}", guarded(d.Routines.Update))
	mux.Handle("POST /api/routines/{id}/complete", guarded(d.Routines.Complete))

	// chatbot
	mux.Handle("POST /api/chatbot/message", guarded(d.Chatbot.Message))

	var handler http.Handler = mux
	handler = SecurityHeadersMiddleware()(handler)
	handler = cors.New(d.CORS).Handler(handler)
	handler = RecoveryMiddleware(d.Logger)(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	return handler
}

type health struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Database      string    `json:"database"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

func healthHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := health{Status: "OK", Timestamp: time.Now().UTC(), Database: "Connected"}
		if !d.Started.IsZero() {
			h.UptimeSeconds = int64(time.Since(d.Started).Seconds())
		}
		status := http.StatusOK
		if d.DBReady == nil || !d.DBReady(r.Context()) {
			h.Status, h.Database = "DEGRADED", "Disconnected"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

var endpoints = map[string]string{
	"health":   "GET /api/health",
	"signup":   "POST /api/signup/face",
	"login":    "POST /api/login/face",
	"password": "POST /api/login",
	"me":       "GET|PUT|DELETE /api/users/me",
	"habits":   "GET|POST /api/habits",
	"routines": "GET|POST /api/routines",
	"chatbot":  "POST /api/chatbot/message",
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   serviceName,
		"version":   version,
		"endpoints": endpoints,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
