package worker

import (
	"context"
	"errors"
	"testing"

	"caixa/internal/amqp"
	"caixa/internal/core"
	"caixa/internal/services"
	sheetmem "caixa/internal/sheets/memory"
	"caixa/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *services.LedgerService {
	t.Helper()
	return services.NewLedgerService(memory.New(nil), nil, services.Options{})
}

func TestHandleDayUpdated(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	sheet := sheetmem.New()
	w := NewSyncWorker(ledger, sheet)

	date := core.NewDate(2024, 5, 2)
	_, err := ledger.SetClosingBalance(ctx, date.AddDays(-1), decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = ledger.RecordTransaction(ctx, core.Transaction{Date: date, Kind: core.CardSale, Amount: decimal.NewFromInt(75)})
	require.NoError(t, err)
	_, err = ledger.SetClosingBalance(ctx, date, decimal.NewFromInt(160))
	require.NoError(t, err)

	err = w.HandleDayUpdated(ctx, amqp.NewDayUpdatedMessage(date, amqp.ReasonBalance))
	require.NoError(t, err)

	row, ok, err := sheet.ReadDay(ctx, date)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "135.00", row.Totals.TotalRevenue.StringFixed(2))
	assert.Equal(t, "100.00", row.Totals.Opening.StringFixed(2))
}

func TestHandleDayUpdated_BadDate(t *testing.T) {
	w := NewSyncWorker(newLedger(t), sheetmem.New())
	err := w.HandleDayUpdated(context.Background(), &amqp.DayUpdatedMessage{Date: "02/05/2024"})
	assert.Error(t, err)
}

type failingSheet struct{}

func (failingSheet) UpsertDay(context.Context, core.DayTotals) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestHandleDayUpdated_SheetFailureIsReturned(t *testing.T) {
	w := NewSyncWorker(newLedger(t), failingSheet{})
	err := w.HandleDayUpdated(context.Background(), amqp.NewDayUpdatedMessage(core.NewDate(2024, 5, 2), amqp.ReasonTransaction))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestStartupSyncCheck(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	sheet := sheetmem.New()
	w := NewSyncWorker(ledger, sheet)

	for _, d := range []core.Date{core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 3)} {
		_, err := ledger.RecordTransaction(ctx, core.Transaction{Date: d, Kind: core.CardSale, Amount: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}

	require.NoError(t, w.StartupSyncCheck(ctx, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 31)))
	assert.Len(t, sheet.Rows(), 2)

	require.NoError(t, w.StartupSyncCheck(ctx, core.NewDate(2023, 1, 1), core.NewDate(2023, 1, 31)))

	failing := NewSyncWorker(ledger, failingSheet{})
	assert.Error(t, failing.StartupSyncCheck(ctx, core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 31)))
}
