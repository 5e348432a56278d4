package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/toolscheap/toolscheap/internal/apperror"
	"github.com/toolscheap/toolscheap/internal/auth"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/metrics"
)

type contextKey string

const UserIDKey contextKey = "user_id"

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		log := logger.FromContext(r.Context())

		log.Debug("request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		log.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", duration.Milliseconds(),
			"size", wrapped.size,
		)
	})
}

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log := logger.FromContext(r.Context())
				log.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// HTTPMetrics records request counts, latency and in-flight gauges. Paths
// are normalized so job IDs do not explode label cardinality.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPRequestsInFlight.WithLabelValues(r.Method).Inc()
		defer metrics.HTTPRequestsInFlight.WithLabelValues(r.Method).Dec()

		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := metrics.NormalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.status)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// allowedOrigins defines the origins permitted to call the API from a
// browser.
var allowedOrigins = map[string]bool{
	"https://tools.cheap":     true,
	"https://api.tools.cheap": true,
	"https://www.tools.cheap": true,
}

// CORSWithOrigins validates origins against the allowlist. In development,
// set devMode to true to allow localhost origins.
func CORSWithOrigins(devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if origin != "" {
				if allowedOrigins[origin] {
					allowed = true
				} else if devMode && (strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")) {
					allowed = true
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				if allowed {
					w.WriteHeader(http.StatusNoContent)
				} else {
					w.WriteHeader(http.StatusForbidden)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthRequired rejects requests without a valid bearer token.
func AuthRequired(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userFromRequest(jwtSecret, r)
			if err != nil {
				apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrUnauthorized))
				return
			}
			if userID == nil {
				apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, *userID)
			ctx = logger.WithUserID(ctx, userID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthOptional attaches the user when a valid token is present and lets
// anonymous requests straight through. A present-but-invalid token is still
// an error so a client cannot silently lose its identity.
func AuthOptional(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := userFromRequest(jwtSecret, r)
			if err != nil {
				apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInvalidToken))
				return
			}
			if userID != nil {
				ctx := context.WithValue(r.Context(), UserIDKey, *userID)
				ctx = logger.WithUserID(ctx, userID.String())
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userFromRequest(jwtSecret string, r *http.Request) (*uuid.UUID, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, nil
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, nil
	}
	userID, err := auth.ParseToken(jwtSecret, tokenString)
	if err != nil {
		return nil, err
	}
	return &userID, nil
}

// GetUserID returns the authenticated user, if any.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}

func userIDPtr(ctx context.Context) *uuid.UUID {
	if id, ok := GetUserID(ctx); ok {
		return &id
	}
	return nil
}
