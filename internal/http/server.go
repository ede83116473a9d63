// Package http exposes the shopping-list API: catalog and reference lookups,
// price queries, previews and transaction submission.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"canasta/internal/cache"
	"canasta/internal/core"
	"canasta/internal/ingest"
	"canasta/internal/log"
	"canasta/internal/middleware/ratelimit"
	"canasta/internal/middleware/security"
	"canasta/internal/middleware/trace"
	"canasta/internal/pricing"
)

// TransactionAPI is the service surface the handlers call into.
type TransactionAPI interface {
	Catalog(ctx context.Context) (ingest.CatalogMap, error)
	Preview(ctx context.Context, lines []core.InputLine, date core.Date, discountPct decimal.Decimal) (pricing.Preview, error)
	Submit(ctx context.Context, meta core.SubmissionMeta, lines []core.PreviewLine) (string, error)
	Import(ctx context.Context, lines []core.InputLine, meta core.SubmissionMeta) (string, pricing.Preview, error)
}

// ReferenceStore serves the read-only lookups the API exposes directly.
type ReferenceStore interface {
	ListItems(ctx context.Context) ([]core.Item, error)
	ListAccounts(ctx context.Context) ([]core.Account, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	PricesOn(ctx context.Context, ids []string, date core.Date) (map[string]decimal.Decimal, error)
	Ping(ctx context.Context) error
}

// Config tunes the HTTP server. Zero values fall back to defaults.
type Config struct {
	Port              int
	RequestsPerMinute int
	CacheSize         int
	CacheTTL          time.Duration
}

// Server is the HTTP front of the API with rate limiting, security headers,
// request tracing and read caches wired in.
type Server struct {
	http.Server

	svc    TransactionAPI
	store  ReferenceStore
	logger *log.Logger

	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	headers   *security.HeadersMiddleware
	extractor *security.Extractor

	cacheManager    *cache.Manager
	itemsCache      *cache.LRUCache[[]core.Item]
	accountsCache   *cache.LRUCache[[]core.Account]
	categoriesCache *cache.LRUCache[[]core.Category]

	shutdownOnce sync.Once
}

func NewServer(cfg Config, svc TransactionAPI, store ReferenceStore, logger *log.Logger) *Server {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	extractor := security.NewExtractor()
	s := &Server{
		svc:       svc,
		store:     store,
		logger:    logger.WithComponent(log.ComponentHTTP),
		extractor: extractor,
		tracer:    trace.NewMiddleware(extractor.ClientIP),
		headers:   security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RequestsPerMinute,
		}),
		cacheManager:    cache.NewManager(),
		itemsCache:      cache.NewLRUCache[[]core.Item](cfg.CacheSize, cfg.CacheTTL),
		accountsCache:   cache.NewLRUCache[[]core.Account](cfg.CacheSize, cfg.CacheTTL),
		categoriesCache: cache.NewLRUCache[[]core.Category](cfg.CacheSize, cfg.CacheTTL),
	}

	s.cacheManager.Register(s.itemsCache)
	s.cacheManager.Register(s.accountsCache)
	s.cacheManager.Register(s.categoriesCache)
	s.cacheManager.StartCleanup(cfg.CacheTTL)

	s.Server = http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.buildHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /items", s.handleListItems)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("GET /item-prices/by-date", s.handlePricesByDate)

	mux.HandleFunc("POST /transactions/shopping-list/preview", s.handlePreview)
	mux.HandleFunc("POST /transactions/shopping-list", s.handleSubmit)
	mux.HandleFunc("POST /transactions/import-shopping-list", s.handleImport)

	return mux
}

// buildHandler assembles the middleware chain: security headers, tracing, a
// request-scoped logger, then rate limiting. Probe endpoints bypass the
// limiter so an aggressive orchestrator cannot mark the service unhealthy.
func (s *Server) buildHandler() http.Handler {
	mux := s.routes()

	limited := s.limiter.Middleware(s.extractor.ClientIP, s.onRateLimited)(mux)
	handler := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			mux.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	}))

	handler = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = log.Middleware(s.logger)(handler)

	return s.headers.Middleware(s.tracer.Middleware(handler))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	fields := log.NewFields().
		WithClientIP(s.extractor.ClientIP(r)).
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"))
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", fields.ToSlice()...)

	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady pings the database; readiness fails when SQLite is not
// reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.ErrorContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
		writeError(w, http.StatusServiceUnavailable, "database not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	rl := s.limiter.GetMetrics()
	tr := s.tracer.GetMetrics()

	writeJSON(w, http.StatusOK, map[string]any{
		"requests": map[string]int64{
			"total":                 tr.TotalRequests,
			"last_response_time_ms": tr.LastResponseTimeMs,
		},
		"rate_limit": map[string]int64{
			"total_hits":   rl.TotalHits,
			"client_count": rl.ClientCount,
		},
		"caches": map[string]any{
			"items":      cacheStats(s.itemsCache),
			"accounts":   cacheStats(s.accountsCache),
			"categories": cacheStats(s.categoriesCache),
		},
	})
}

func cacheStats[T any](c *cache.LRUCache[T]) map[string]any {
	hits, misses := c.Stats()
	return map[string]any{
		"hits":   hits,
		"misses": misses,
		"size":   c.Size(),
	}
}

// Shutdown drains in-flight requests and stops the background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
