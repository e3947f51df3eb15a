package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"caixa/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) string {
	t.Helper()
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	return filepath.Join(t.TempDir(), "caixa.db")
}

func runCaixactl(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	a := &app{now: func() time.Time { return testNow }}
	root := newRootCommand(a)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--db", db}, args...))

	err := root.Execute()
	require.NoError(t, a.close())
	return out.String(), err
}

func mustRun(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := runCaixactl(t, db, args...)
	require.NoError(t, err, "caixactl %v", args)
	return out
}

// seedDay records 50 of supplies, 30 of withdrawals, 200 on card and a
// counted closing of 120 on 2024-05-02, which leaves 100 of cash sales.
func seedDay(t *testing.T, db string) {
	t.Helper()
	mustRun(t, db, "add", "2024-05-02", "--kind", "CASH_INFLOW", "--amount", "50")
	mustRun(t, db, "add", "2024-05-02", "--kind", "cash_outflow", "--amount", "30,00", "--description", "troco")
	mustRun(t, db, "add", "2024-05-02", "--kind", "CARD_SALE", "--amount", "200")
	mustRun(t, db, "balance", "2024-05-02", "120")
}

func TestDayShowsFormula(t *testing.T) {
	db := newTestDB(t)
	seedDay(t, db)

	out := mustRun(t, db, "day", "2024-05-02")
	assert.Contains(t, out, "2024-05-02")
	assert.Contains(t, out, "R$ 100,00")
	assert.Contains(t, out, "R$ 300,00")
	assert.Contains(t, out, "troco")
	assert.NotContains(t, out, "Diferença")
}

func TestDayDefaultsToToday(t *testing.T) {
	db := newTestDB(t)
	out := mustRun(t, db, "day")
	assert.Contains(t, out, "2024-05-02")
}

func TestDayClamped(t *testing.T) {
	db := newTestDB(t)
	mustRun(t, db, "add", "2024-05-02", "--kind", "CASH_INFLOW", "--amount", "10")
	mustRun(t, db, "add", "2024-05-02", "--kind", "CASH_OUTFLOW", "--amount", "3")
	mustRun(t, db, "balance", "2024-05-02", "5")

	out := mustRun(t, db, "day", "2024-05-02")
	assert.Contains(t, out, "Diferença")
}

func TestInvalidInput(t *testing.T) {
	db := newTestDB(t)

	_, err := runCaixactl(t, db, "day", "2024-13-01")
	assert.ErrorContains(t, err, "invalid date")

	_, err = runCaixactl(t, db, "add", "2024-05-02", "--kind", "CARD_SALE", "--amount", "0")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = runCaixactl(t, db, "add", "2024-05-02", "--kind", "REFUND", "--amount", "5")
	assert.ErrorIs(t, err, core.ErrInvalidKind)

	_, err = runCaixactl(t, db, "balance", "2024-05-02", "abc")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = runCaixactl(t, db, "report", "--from", "2024-05-03", "--to", "2024-05-01")
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestReportJSON(t *testing.T) {
	db := newTestDB(t)
	seedDay(t, db)

	out := mustRun(t, db, "report", "--from", "2024-05-01", "--to", "2024-05-02", "--json")

	var report reportOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "2024-05-01", report.Start)
	assert.Equal(t, 2, report.Days)
	assert.Equal(t, 0, report.ClampedDays)
	assert.Equal(t, "200.00", report.Totals.Card)
	assert.Equal(t, "100.00", report.Totals.CashSales)
	assert.Equal(t, "300.00", report.Totals.Overall)
	assert.Equal(t, "50.00", report.Totals.Supplies)
	assert.Equal(t, "30.00", report.Totals.Withdrawals)
	require.Len(t, report.PerDay, 2)
	assert.Equal(t, "0.00", report.PerDay[0].Overall)
	assert.Equal(t, "120.00", report.PerDay[1].Closing)
}

func TestReportText(t *testing.T) {
	db := newTestDB(t)
	seedDay(t, db)

	out := mustRun(t, db, "report", "--to", "2024-05-02")
	assert.Contains(t, out, "2024-05-01 a 2024-05-02 (2 dias)")
	assert.Contains(t, out, "R$ 300,00")
}

func TestCloseCarriesBalanceThrough(t *testing.T) {
	db := newTestDB(t)
	mustRun(t, db, "balance", "2024-05-01", "80")

	out := mustRun(t, db, "close", "2024-05-02")
	assert.Contains(t, out, "closed=true opening=R$ 80,00 closing=R$ 80,00")

	out = mustRun(t, db, "day", "2024-05-03")
	assert.Contains(t, out, "R$ 80,00")

	out = mustRun(t, db, "close", "2024-05-02", "--reopen")
	assert.Contains(t, out, "closed=false")
}

func TestCategories(t *testing.T) {
	db := newTestDB(t)

	out := mustRun(t, db, "categories", "add", "Fornecedor", "--kind", "cash_outflow")
	assert.Contains(t, out, "Created category 1 Fornecedor (CASH_OUTFLOW)")

	_, err := runCaixactl(t, db, "categories", "add", "Fornecedor", "--kind", "CASH_OUTFLOW")
	assert.ErrorIs(t, err, core.ErrCategoryExists)

	out = mustRun(t, db, "categories", "list", "--kind", "CASH_OUTFLOW")
	assert.Contains(t, out, "Fornecedor")

	_, err = runCaixactl(t, db, "add", "2024-05-02", "--kind", "CARD_SALE", "--amount", "5", "--category", "1")
	assert.ErrorIs(t, err, core.ErrCategoryKindMismatch)

	mustRun(t, db, "add", "2024-05-02", "--kind", "CASH_OUTFLOW", "--amount", "5", "--category", "1")
	out = mustRun(t, db, "categories", "delete", "1")
	assert.Contains(t, out, "in use and was kept")

	mustRun(t, db, "categories", "add", "Brinde", "--kind", "CASH_OUTFLOW")
	out = mustRun(t, db, "categories", "delete", "2")
	assert.Contains(t, out, "Deleted category 2")
}

func TestExportWithoutSpreadsheetPrintsRows(t *testing.T) {
	db := newTestDB(t)
	seedDay(t, db)

	out := mustRun(t, db, "export", "--from", "2024-05-02", "--to", "2024-05-02")
	assert.Contains(t, out, "DATA")
	assert.Contains(t, out, "2024-05-02")
	assert.Contains(t, out, "300.00")
}

func TestMaintenanceCommands(t *testing.T) {
	db := newTestDB(t)
	seedDay(t, db)

	out := mustRun(t, db, "reconcile", "--from", "2024-04-28", "--to", "2024-05-02")
	assert.Contains(t, out, "Reconciled 5 days")

	out = mustRun(t, db, "refresh-cache", "--from", "2024-05-02", "--to", "2024-05-02")
	assert.Contains(t, out, "Refreshed 1 days")

	out = mustRun(t, db, "audit", "--from", "2024-04-01", "--to", "2024-05-02")
	assert.Contains(t, out, "Repaired 0 days")

	out = mustRun(t, db, "rollover")
	assert.Contains(t, out, "Rollover complete for 2024-05-02")

	out = mustRun(t, db, "schema")
	assert.Contains(t, out, "version=1 dirty=false")
}

func TestRangeFlagsDefaults(t *testing.T) {
	today := core.NewDate(2024, 5, 17)

	start, end, err := (&rangeFlags{}).resolve(today)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", start.String())
	assert.Equal(t, "2024-05-17", end.String())

	start, end, err = (&rangeFlags{to: "2024-02-10"}).resolve(today)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", start.String())
	assert.Equal(t, "2024-02-10", end.String())

	_, _, err = (&rangeFlags{from: "2024/01/01"}).resolve(today)
	assert.ErrorContains(t, err, "invalid --from")
}
