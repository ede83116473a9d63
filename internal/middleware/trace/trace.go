// Package trace assigns request ids and logs request start/completion.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// ContextKey type for context keys
type ContextKey string

// RequestIDKey is the context key for the request id.
const RequestIDKey ContextKey = "request_id"

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	metrics   *Metrics
}

// Metrics tracks request counts and the latest response time.
type Metrics struct {
	TotalRequests      int64
	LastResponseTimeMs int64
}

// NewMiddleware creates a new trace middleware
func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		metrics:   &Metrics{},
	}
}

// Middleware returns HTTP middleware for request tracing
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := GenerateRequestID()
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "HTTP request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"),
			"content_length", r.ContentLength)

		atomic.AddInt64(&m.metrics.TotalRequests, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		atomic.StoreInt64(&m.metrics.LastResponseTimeMs, duration.Milliseconds())

		logLevel := slog.LevelInfo
		if rw.statusCode >= 400 && rw.statusCode < 500 {
			logLevel = slog.LevelWarn
		} else if rw.statusCode >= 500 {
			logLevel = slog.LevelError
		}

		slog.Log(ctx, logLevel, "HTTP request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP,
			"success", rw.statusCode < 400)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:      atomic.LoadInt64(&m.metrics.TotalRequests),
		LastResponseTimeMs: atomic.LoadInt64(&m.metrics.LastResponseTimeMs),
	}
}
