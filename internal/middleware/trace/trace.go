package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	applog "caixa/internal/log"

	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

// RequestIDKey is the context key for request ID
const RequestIDKey ContextKey = "request_id"

// RequestIDHeader carries the request ID back to the client.
const RequestIDHeader = "X-Request-ID"

// Middleware assigns request IDs and logs request start and completion.
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.Logger
	requests  atomic.Int64
	totalUs   atomic.Int64
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	AverageResponseTime time.Duration
}

// NewMiddleware creates a new trace middleware. A nil logger logs through
// the default slog logger.
func NewMiddleware(extractIP func(*http.Request) string, logger *applog.Logger) *Middleware {
	if logger == nil {
		logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentTrace})
	}
	return &Middleware{extractIP: extractIP, logger: logger}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	sl := applog.NewStructuredLogger(m.logger)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := GenerateRequestID()
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = applog.WithLogger(ctx, m.logger.With(applog.FieldRequestID, requestID))
		r = r.WithContext(ctx)
		w.Header().Set(RequestIDHeader, requestID)

		sl.LogHTTPStart(ctx, r, requestID, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.requests.Add(1)
		m.totalUs.Add(duration.Microseconds())

		sl.LogHTTPEnd(ctx, r, requestID, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns the request count and mean latency.
func (m *Middleware) GetMetrics() Metrics {
	n := m.requests.Load()
	out := Metrics{TotalRequests: n}
	if n > 0 {
		out.AverageResponseTime = time.Duration(m.totalUs.Load()/n) * time.Microsecond
	}
	return out
}
