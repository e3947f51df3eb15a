package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	rl := NewLimiter(LoginConfig(perMinute))
	rl.now = func() time.Time { return now }
	t.Cleanup(rl.Stop)
	return rl, &now
}

func TestLimiter_WindowReset(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "attempt %d", i+1)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "other clients are independent")

	*now = now.Add(30 * time.Second)
	assert.False(t, rl.Allow("1.2.3.4"), "window is fixed, not sliding")
	assert.Equal(t, 30*time.Second, rl.RetryAfter("1.2.3.4"))

	*now = now.Add(31 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))

	m := rl.GetMetrics()
	assert.Equal(t, int64(2), m.Rejected)
	assert.Equal(t, int64(5), m.Allowed)
	assert.Equal(t, int64(2), m.ClientCount)
}

func TestLimiter_ResetAndCleanup(t *testing.T) {
	rl, now := newTestLimiter(t, 1)
	rl.Allow("a")
	assert.False(t, rl.Allow("a"))

	rl.Reset("a")
	assert.True(t, rl.Allow("a"))

	*now = now.Add(11 * time.Minute)
	rl.cleanupStaleEntries()
	assert.Equal(t, int64(0), rl.GetMetrics().ClientCount)
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, http.MethodPost)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/site-login", nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost).Code)
	rec := do(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "61", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodGet).Code, "GET is not counted")
}

func TestNewLimiter_Defaults(t *testing.T) {
	rl := NewLimiter(Config{})
	defer rl.Stop()
	assert.Equal(t, 60, rl.requestsPerMinute)
	assert.Equal(t, 5*time.Minute, rl.cleanupInterval)
	rl.Stop()
}
