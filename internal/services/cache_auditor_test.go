package services

import (
	"context"
	"testing"
	"time"

	"caixa/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCacheAuditor_Defaults(t *testing.T) {
	a := NewCacheAuditor(nil, CacheAuditorConfig{})

	if a.config.PollInterval != time.Hour {
		t.Errorf("expected PollInterval 1h, got %v", a.config.PollInterval)
	}
	if a.config.WindowDays != 7 {
		t.Errorf("expected WindowDays 7, got %d", a.config.WindowDays)
	}
	if a.IsRunning() {
		t.Error("auditor should not be running initially")
	}
}

func TestCacheAuditor_RepairsDrift(t *testing.T) {
	ctx := context.Background()
	s, store, _ := newTestLedger(t, Options{})

	record(t, s, "2024-05-02", core.CardSale, "10")
	record(t, s, "2024-05-03", core.CashOutflow, "7.5")
	require.NoError(t, store.UpdateCachedTotals(ctx, mustDate("2024-05-03"), core.KindSums{Outflow: dec("1")}))

	a := NewCacheAuditor(s, CacheAuditorConfig{})
	repaired, err := a.Audit(ctx, mustDate("2024-05-01"), mustDate("2024-05-07"))
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	d, err := store.GetDay(ctx, mustDate("2024-05-03"))
	require.NoError(t, err)
	assert.Equal(t, "7.50", d.CachedOutflowTotal.StringFixed(2))

	repaired, err = a.Audit(ctx, mustDate("2024-05-01"), mustDate("2024-05-07"))
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestCacheAuditor_StartStop(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestLedger(t, Options{})
	a := NewCacheAuditor(s, CacheAuditorConfig{PollInterval: 50 * time.Millisecond})

	require.NoError(t, a.Start(ctx))
	assert.True(t, a.IsRunning())
	assert.Error(t, a.Start(ctx), "second start should fail")

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))
	assert.False(t, a.IsRunning())

	assert.NoError(t, a.Stop(stopCtx), "stopping a stopped auditor is a no-op")
}
