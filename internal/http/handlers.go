package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"bookkeeper/internal/auth"
	"bookkeeper/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.ledger.Ready(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}
	checks["auth"] = map[string]any{"enabled": s.auth.Enabled()}

	writeJSON(w, r, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.trace.GetMetrics()
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_responses_total HTTP responses by status code\n")
	fmt.Fprintf(w, "# TYPE http_responses_total counter\n")
	codes := make([]int, 0, len(traceMetrics.ByStatus))
	for code := range traceMetrics.ByStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "http_responses_total{code=\"%d\"} %d\n", code, traceMetrics.ByStatus[code])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP http_requests_in_flight Requests being served\n")
	fmt.Fprintf(w, "# TYPE http_requests_in_flight gauge\n")
	fmt.Fprintf(w, "http_requests_in_flight %d\n\n", traceMetrics.InFlight)

	fmt.Fprintf(w, "# HELP transactions_created_total Transactions created through the API\n")
	fmt.Fprintf(w, "# TYPE transactions_created_total counter\n")
	fmt.Fprintf(w, "transactions_created_total %d\n\n", atomic.LoadInt64(&s.appMetrics.transactionsCreated))

	fmt.Fprintf(w, "# HELP transactions_deleted_total Transactions deleted through the API\n")
	fmt.Fprintf(w, "# TYPE transactions_deleted_total counter\n")
	fmt.Fprintf(w, "transactions_deleted_total %d\n\n", atomic.LoadInt64(&s.appMetrics.transactionsDeleted))

	fmt.Fprintf(w, "# HELP report_csv_exports_total CSV reports served\n")
	fmt.Fprintf(w, "# TYPE report_csv_exports_total counter\n")
	fmt.Fprintf(w, "report_csv_exports_total %d\n\n", atomic.LoadInt64(&s.appMetrics.csvExports))

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP login_failures_total Rejected login attempts\n")
	fmt.Fprintf(w, "# TYPE login_failures_total counter\n")
	fmt.Fprintf(w, "login_failures_total %d\n\n", atomic.LoadInt64(&s.appMetrics.loginFailures))

	if cacheStats, ok := s.ledger.DashboardCacheStats(); ok {
		fmt.Fprintf(w, "# HELP dashboard_cache_hits_total Dashboard cache hits\n")
		fmt.Fprintf(w, "# TYPE dashboard_cache_hits_total counter\n")
		fmt.Fprintf(w, "dashboard_cache_hits_total %d\n\n", cacheStats.Hits)

		fmt.Fprintf(w, "# HELP dashboard_cache_misses_total Dashboard cache misses\n")
		fmt.Fprintf(w, "# TYPE dashboard_cache_misses_total counter\n")
		fmt.Fprintf(w, "dashboard_cache_misses_total %d\n\n", cacheStats.Misses)
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}

// handleLogin exchanges the operator credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username, _ := p["username"].(string)
	password, _ := p["password"].(string)
	if username == "" || password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := s.auth.Login(username, password)
	switch {
	case errors.Is(err, auth.ErrDisabled):
		writeError(w, r, http.StatusNotFound, "authentication is not enabled")
	case errors.Is(err, auth.ErrInvalidCredentials):
		atomic.AddInt64(&s.appMetrics.loginFailures, 1)
		s.logger.WithComponent(log.ComponentAuth).WarnContext(r.Context(), "Login rejected",
			log.FieldUsername, username,
			log.FieldOperation, log.OpLogin,
			log.FieldErrorType, log.ErrorTypeAuth)
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case err != nil:
		writeServiceError(w, r, err)
	default:
		s.logger.WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Login succeeded",
			log.FieldUsername, username,
			log.FieldOperation, log.OpLogin)
		writeJSON(w, r, http.StatusOK, token)
	}
}
