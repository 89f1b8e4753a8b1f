// Package http serves the ledger JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bookkeeper/internal/auth"
	"bookkeeper/internal/log"
	"bookkeeper/internal/middleware/ratelimit"
	"bookkeeper/internal/middleware/security"
	"bookkeeper/internal/middleware/trace"
	"bookkeeper/internal/services"
)

// Options configure a Server. Zero values pick the defaults.
type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
	Headers            *security.HeadersConfig
}

type Server struct {
	http.Server

	ledger *services.LedgerService
	auth   *auth.Authenticator
	logger *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	headers  *security.HeadersMiddleware
	trace    *trace.Middleware

	appMetrics *appMetrics

	shutdownOnce sync.Once
}

// appMetrics tracks application-specific counters
type appMetrics struct {
	transactionsCreated int64
	transactionsDeleted int64
	csvExports          int64
	loginFailures       int64
	uptime              time.Time
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.LedgerService, authn *auth.Authenticator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	headersConfig := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headersConfig = *opts.Headers
	}
	if authn == nil {
		authn = auth.New(auth.Config{})
	}

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:     ledger,
		auth:       authn,
		logger:     logger,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   detector,
		headers:    security.NewHeadersMiddleware(headersConfig),
		trace:      trace.NewMiddleware(logger, detector.ExtractClientIP),
		appMetrics: &appMetrics{uptime: time.Now()},
	}

	if !authn.Enabled() {
		logger.Warn("Authentication is disabled; API routes are open")
	}

	s.Handler = s.chain(s.routes())
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /auth/login", log.Tagged(log.ComponentAuth, s.handleLogin))

	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)

	mux.HandleFunc("GET /locations", s.handleListLocations)
	mux.HandleFunc("POST /locations", s.handleCreateLocation)
	mux.HandleFunc("GET /locations/{id}", s.handleGetLocation)
	mux.HandleFunc("PUT /locations/{id}", s.handleUpdateLocation)
	mux.HandleFunc("DELETE /locations/{id}", s.handleDeleteLocation)
	mux.HandleFunc("GET /locations/{id}/summary", log.Tagged(log.ComponentReports, s.handleLocationSummary))

	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /dashboard", log.Tagged(log.ComponentDashboard, s.handleDashboard))
	mux.HandleFunc("GET /reports", log.Tagged(log.ComponentReports, s.handleReports))

	return mux
}

// chain applies the middleware, outermost first: trace, security headers,
// probe detection, write rate limiting, authentication.
func (s *Server) chain(h http.Handler) http.Handler {
	h = s.auth.Middleware(isPublicPath, func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, http.StatusUnauthorized, err.Error())
	})(h)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		writeError(w, r, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
	})(h)
	h = s.detector.Middleware(h)
	h = s.headers.Middleware(h)
	return s.trace.Middleware(h)
}

// isPublicPath lists the routes reachable without a token.
func isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/auth/login":
		return true
	}
	return false
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
