package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(rpm int) *Limiter {
	return NewLimiter(Config{RequestsPerMinute: rpm, CleanupInterval: time.Hour})
}

func TestAllowWithinLimit(t *testing.T) {
	rl := newTestLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// Other clients are tracked independently.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestMetricsCountHits(t *testing.T) {
	rl := newTestLimiter(1)
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")

	m := rl.GetMetrics()
	assert.Equal(t, int64(2), m.TotalHits)
	assert.Equal(t, int64(1), m.ClientCount)
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestStopIsIdempotent(t *testing.T) {
	rl := newTestLimiter(1)
	rl.Stop()
	rl.Stop()
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	rl := newTestLimiter(1)
	defer rl.Stop()

	handler := rl.Middleware(func(*http.Request) string { return "10.0.0.1" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestMiddlewareCustomOnLimit(t *testing.T) {
	rl := newTestLimiter(1)
	defer rl.Stop()

	var limited bool
	handler := rl.Middleware(
		func(*http.Request) string { return "10.0.0.1" },
		func(w http.ResponseWriter, _ *http.Request) {
			limited = true
			w.WriteHeader(http.StatusServiceUnavailable)
		})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, limited)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
