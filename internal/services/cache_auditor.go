package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"caixa/internal/core"
)

// CacheAuditorConfig holds configuration for the cache auditor
type CacheAuditorConfig struct {
	// PollInterval is how often the recent window is audited (default: 1h)
	PollInterval time.Duration

	// WindowDays is how many days back from today are checked (default: 7)
	WindowDays int
}

// DefaultCacheAuditorConfig returns sensible defaults
func DefaultCacheAuditorConfig() CacheAuditorConfig {
	return CacheAuditorConfig{
		PollInterval: 1 * time.Hour,
		WindowDays:   7,
	}
}

// CacheAuditor periodically compares the cached per-kind totals of recent
// days with the live transaction sums and refreshes any day that drifted,
// e.g. after a write from another process failed halfway.
type CacheAuditor struct {
	ledger *LedgerService
	config CacheAuditorConfig
	now    func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCacheAuditor creates a new cache auditor
func NewCacheAuditor(ledger *LedgerService, config CacheAuditorConfig) *CacheAuditor {
	def := DefaultCacheAuditorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.WindowDays <= 0 {
		config.WindowDays = def.WindowDays
	}
	return &CacheAuditor{ledger: ledger, config: config, now: time.Now}
}

// Start begins the audit loop. Returns an error if already running.
func (a *CacheAuditor) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("cache auditor is already running")
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.mu.Unlock()

	go a.runLoop(ctx)

	slog.InfoContext(ctx, "Cache auditor started",
		"poll_interval", a.config.PollInterval,
		"window_days", a.config.WindowDays)

	return nil
}

// Stop gracefully stops the auditor and waits for completion.
func (a *CacheAuditor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	close(a.stopCh)

	select {
	case <-a.doneCh:
		slog.InfoContext(ctx, "Cache auditor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Cache auditor stop timed out")
		return ctx.Err()
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	return nil
}

// IsRunning returns whether the auditor is currently running
func (a *CacheAuditor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *CacheAuditor) runLoop(ctx context.Context) {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	// Audit immediately on startup
	a.auditOnce(ctx)

	for {
		select {
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.auditOnce(ctx)
		}
	}
}

func (a *CacheAuditor) auditOnce(ctx context.Context) {
	end := core.DateOf(a.now())
	start := end.AddDays(-(a.config.WindowDays - 1))
	repaired, err := a.Audit(ctx, start, end)
	if err != nil {
		slog.ErrorContext(ctx, "Cache audit failed", "error", err)
		return
	}
	if repaired > 0 {
		slog.WarnContext(ctx, "Cache audit repaired drifted days", "repaired", repaired)
	}
}

// Audit checks every stored day in [start, end] and refreshes those whose
// cached totals differ from the live sums. It returns the number repaired.
func (a *CacheAuditor) Audit(ctx context.Context, start, end core.Date) (int, error) {
	days, err := a.ledger.ListDays(ctx, start, end)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, day := range days {
		select {
		case <-ctx.Done():
			return repaired, ctx.Err()
		default:
		}

		live, err := a.ledger.store.SumByKind(ctx, day.Date)
		if err != nil {
			return repaired, fmt.Errorf("audit %s: %w", day.Date, err)
		}
		if sumsEqual(live, day.CachedSums()) {
			continue
		}

		slog.WarnContext(ctx, "Cached totals drifted from transactions",
			"date", day.Date.String(),
			"cached_card", day.CachedCardTotal.StringFixed(2),
			"live_card", live.Card.StringFixed(2),
			"cached_outflow", day.CachedOutflowTotal.StringFixed(2),
			"live_outflow", live.Outflow.StringFixed(2))

		if _, err := a.ledger.RefreshCache(ctx, day.Date); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

func sumsEqual(a, b core.KindSums) bool {
	return a.Card.Equal(b.Card) && a.Inflow.Equal(b.Inflow) && a.Outflow.Equal(b.Outflow)
}
