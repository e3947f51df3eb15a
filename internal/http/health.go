package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "caixa/internal/log"
)

// appMetrics counts ledger writes served by this process.
type appMetrics struct {
	started              time.Time
	transactionsRecorded atomic.Int64
	transactionsDeleted  atomic.Int64
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.ready == nil:
		checks["store"] = "not_checked"
	default:
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			checks["store"] = "failed"
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	checks["sessions"] = map[string]any{
		"entries": s.sessions.Cache().Size(),
		"gated":   s.sessions.Enabled(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.writeLimiter.GetMetrics().ClientCount,
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in the
// Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	security := s.detector.GetMetrics()
	writes := s.writeLimiter.GetMetrics()
	logins := s.loginLimiter.GetMetrics()
	traffic := s.tracer.GetMetrics()

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traffic.TotalRequests)
	metric("http_request_duration_avg_seconds", "gauge", "Mean request latency", traffic.AverageResponseTime.Seconds())
	metric("ledger_transactions_recorded_total", "counter", "Transactions recorded through this server", s.metrics.transactionsRecorded.Load())
	metric("ledger_transactions_deleted_total", "counter", "Transactions deleted through this server", s.metrics.transactionsDeleted.Load())
	metric("sessions_active", "gauge", "Unlocked browser sessions", s.sessions.Cache().Size())

	fmt.Fprintf(w, "# HELP rate_limit_rejected_total Requests rejected by a rate limiter\n# TYPE rate_limit_rejected_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejected_total{limiter=\"writes\"} %d\n", writes.Rejected)
	fmt.Fprintf(w, "rate_limit_rejected_total{limiter=\"login\"} %d\n\n", logins.Rejected)

	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", security.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests blocked by method", security.BlockedRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.metrics.started).Seconds()))
}
