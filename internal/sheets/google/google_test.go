package google

import (
	"context"
	"strings"
	"testing"
	"time"

	"caixa/internal/core"

	"github.com/shopspring/decimal"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Errorf("expected read error, got: %v", err)
	}
}

func TestClient_UpsertDayValidation(t *testing.T) {
	c := newClient(nil, "test", "Caixa")

	_, err := c.UpsertDay(context.Background(), core.DayTotals{})
	if err == nil {
		t.Fatal("expected validation error for zero date")
	}

	_, err = c.UpsertDay(context.Background(), core.DayTotals{Date: core.NewDate(2024, 5, 2)})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got: %v", err)
	}

	_, _, err = c.ReadDay(context.Background(), core.NewDate(2024, 5, 2))
	if err == nil {
		t.Error("expected error from ReadDay without service")
	}
}

func TestClient_SheetName(t *testing.T) {
	c := newClient(nil, "test", "Caixa")
	if got := c.SheetName(core.NewDate(2024, 12, 31)); got != "2024 Caixa" {
		t.Errorf("SheetName() = %q, want %q", got, "2024 Caixa")
	}
	if got := c.SheetName(core.NewDate(2025, 1, 1)); got != "2025 Caixa" {
		t.Errorf("SheetName() = %q, want %q", got, "2025 Caixa")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Caixa", 2025, "2025 Caixa"},
		{"  Caixa ", 2024, "2024 Caixa"},
		{"", 2023, ""},
		{"Fechamento Diario", 2022, "2022 Fechamento Diario"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

func TestRowFor_UsesCachedIndex(t *testing.T) {
	c := newClient(nil, "test", "Caixa")
	sheet := "2024 Caixa"

	c.mu.Lock()
	c.loadIndexLocked(sheet, [][]any{
		toAny(header),
		{"2024-05-01", 10.0},
		{"2024-05-02", 20.0},
	})
	c.mu.Unlock()

	// svc is nil, so any call that is not served from the cache would panic
	row, err := c.rowFor(context.Background(), sheet, core.NewDate(2024, 5, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 3 {
		t.Errorf("existing day row = %d, want 3", row)
	}

	row, err = c.rowFor(context.Background(), sheet, core.NewDate(2024, 5, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 4 {
		t.Errorf("new day row = %d, want 4", row)
	}

	row, _ = c.rowFor(context.Background(), sheet, core.NewDate(2024, 5, 3))
	if row != 4 {
		t.Errorf("repeated new day row = %d, want 4", row)
	}
	if c.nextRow[sheet] != 5 {
		t.Errorf("next row = %d, want 5", c.nextRow[sheet])
	}
}

func TestRowCacheExpiration(t *testing.T) {
	c := newClient(nil, "test", "Caixa")
	c.cacheValidDuration = 50 * time.Millisecond
	sheet := "2024 Caixa"

	c.mu.Lock()
	c.loadIndexLocked(sheet, [][]any{toAny(header)})
	valid := time.Now().Before(c.cacheExpiresAt[sheet])
	c.mu.Unlock()
	if !valid {
		t.Fatal("cache should be valid right after loading")
	}

	time.Sleep(80 * time.Millisecond)

	c.mu.Lock()
	valid = time.Now().Before(c.cacheExpiresAt[sheet])
	c.mu.Unlock()
	if valid {
		t.Error("cache should have expired")
	}

	c.mu.Lock()
	c.loadIndexLocked(sheet, [][]any{toAny(header)})
	c.mu.Unlock()
	c.invalidate(sheet)
	if _, ok := c.cacheExpiresAt[sheet]; ok {
		t.Error("invalidate should drop the expiry")
	}
}

func TestFormatAndParseRow(t *testing.T) {
	totals := core.ComputeTotals(decimal.RequireFromString("100"), decimal.RequireFromString("250"), core.KindSums{
		Card:    decimal.RequireFromString("75"),
		Inflow:  decimal.RequireFromString("20"),
		Outflow: decimal.RequireFromString("30"),
	})
	in := core.DayTotals{Date: core.NewDate(2024, 5, 2), IsClosed: true, Totals: totals}

	row := formatRow(in, time.Date(2024, 5, 3, 0, 5, 0, 0, time.UTC))
	if len(row) != len(header) {
		t.Fatalf("row has %d columns, header has %d", len(row), len(header))
	}
	if row[0] != "2024-05-02" {
		t.Errorf("date cell = %v", row[0])
	}
	if row[6] != 160.0 || row[7] != 235.0 {
		t.Errorf("implied/total cells = %v/%v, want 160/235", row[6], row[7])
	}

	out, err := parseRow(row)
	if err != nil {
		t.Fatalf("parseRow: %v", err)
	}
	if !out.Date.Equal(in.Date) || !out.IsClosed {
		t.Errorf("parseRow date/closed = %s/%v", out.Date, out.IsClosed)
	}
	if !out.Totals.TotalRevenue.Equal(totals.TotalRevenue) {
		t.Errorf("total revenue = %s, want %s", out.Totals.TotalRevenue, totals.TotalRevenue)
	}
}

func TestParseRow_Errors(t *testing.T) {
	tests := []struct {
		name string
		row  []any
	}{
		{name: "too short", row: []any{"2024-05-02", 1.0}},
		{name: "bad date", row: []any{"02/05/2024", 0, 0, 0, 0, 0, 0, 0, "Não"}},
		{name: "bad amount", row: []any{"2024-05-02", "abc", 0, 0, 0, 0, 0, 0, "Não"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRow(tt.row); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0.00"},
		{"12.5", "12.50"},
		{"1234.567", "1234.57"},
		{"R$ 1.234,56", "1234.56"},
		{"45,5", "45.50"},
		{"1e+06", "1000000.00"},
	}
	for _, tt := range tests {
		got, err := parseCell(tt.in)
		if err != nil {
			t.Errorf("parseCell(%q) error: %v", tt.in, err)
			continue
		}
		if got.StringFixed(2) != tt.want {
			t.Errorf("parseCell(%q) = %s, want %s", tt.in, got.StringFixed(2), tt.want)
		}
	}

	if _, err := parseCell("dez reais"); err == nil {
		t.Error("expected error for text")
	}
}

func TestFindDateRow(t *testing.T) {
	values := [][]any{
		toAny(header),
		{},
		{"2024-05-01"},
		{" 2024-05-02 ", 3.0},
	}
	if got := findDateRow(values, core.NewDate(2024, 5, 2)); got != 3 {
		t.Errorf("findDateRow() = %d, want 3", got)
	}
	if got := findDateRow(values, core.NewDate(2024, 5, 9)); got != -1 {
		t.Errorf("findDateRow() = %d, want -1", got)
	}
}

