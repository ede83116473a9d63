package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIPDirect(t *testing.T) {
	e := NewExtractor()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	assert.Equal(t, "203.0.113.9", e.ClientIP(req))
}

func TestClientIPHonorsForwardingFromTrustedProxy(t *testing.T) {
	e := NewExtractor()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:4321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.5")
	assert.Equal(t, "203.0.113.9", e.ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", e.ClientIP(req))
}

func TestClientIPIgnoresForwardingFromUntrustedPeer(t *testing.T) {
	e := NewExtractor()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "203.0.113.9", e.ClientIP(req))
}

func TestClientIPRejectsGarbageForwardingValue(t *testing.T) {
	e := NewExtractor()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:4321"
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	assert.Equal(t, "127.0.0.1", e.ClientIP(req))
}

func TestAddTrustedProxy(t *testing.T) {
	e := NewExtractor()
	require.NoError(t, e.AddTrustedProxy("203.0.113.0/24"))
	require.Error(t, e.AddTrustedProxy("not-a-cidr"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", e.ClientIP(req))
}

func TestHeadersMiddleware(t *testing.T) {
	mw := NewHeadersMiddleware(DefaultHeadersConfig())
	handler := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"), "no HSTS over plain HTTP")
}

func TestHeadersMiddlewareHSTSOverTLS(t *testing.T) {
	mw := NewHeadersMiddleware(DefaultHeadersConfig())
	handler := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	hsts := rec.Header().Get("Strict-Transport-Security")
	assert.Contains(t, hsts, "max-age=31536000")
	assert.Contains(t, hsts, "includeSubDomains")
}
