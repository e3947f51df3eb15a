package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"caixa/internal/core"
	ports "caixa/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultCacheValidDuration = 5 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// base name without year (e.g. "Caixa"); the year of each day is prefixed
	sheetBase string

	// date -> row number per sheet, so an upsert does not re-read column A
	mu                 sync.Mutex
	rowIndex           map[string]map[string]int
	nextRow            map[string]int
	cacheExpiresAt     map[string]time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.DaySummaryWriter = (*Client)(nil)
	_ ports.DaySummaryReader = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Auth: GOOGLE_OAUTH_TOKEN_FILE (with the OAuth client, see Authorize), or
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Caixa"), prefixed with the year.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	base := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if base == "" {
		base = "Caixa"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return newClient(svc, spreadsheetID, base), nil
}

func newClient(svc *gsheet.Service, spreadsheetID, base string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetBase:          base,
		rowIndex:           make(map[string]map[string]int),
		nextRow:            make(map[string]int),
		cacheExpiresAt:     make(map[string]time.Time),
		cacheValidDuration: defaultCacheValidDuration,
	}
}

// newSheetsService initializes a Sheets Service with a stored OAuth user
// token when GOOGLE_OAUTH_TOKEN_FILE is set, otherwise with Service Account
// credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if ts, ok, err := oauthTokenSource(ctx); ok {
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user token")
		return gsheet.NewService(ctx, goption.WithTokenSource(ts))
	}

	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// SheetName returns the sheet a day is exported to, e.g. "2024 Caixa".
func (c *Client) SheetName(date core.Date) string {
	return yearPrefixedName(c.sheetBase, date.Year())
}

// UpsertDay implements ports.DaySummaryWriter
func (c *Client) UpsertDay(ctx context.Context, d core.DayTotals) (string, error) {
	if err := d.Date.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.SheetName(d.Date)
	row, err := c.rowFor(ctx, sheet, d.Date)
	if err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, row, lastColumn, row)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(d, time.Now())}}
	// RAW keeps the date column as text so it can be matched on the next upsert
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		c.invalidate(sheet)
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	return rng, nil
}

// ReadDay implements ports.DaySummaryReader
func (c *Client) ReadDay(ctx context.Context, date core.Date) (core.DayTotals, bool, error) {
	if c.svc == nil {
		return core.DayTotals{}, false, errors.New("sheets service not initialized")
	}
	sheet := c.SheetName(date)
	rng := fmt.Sprintf("%s!A:%s", sheet, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return core.DayTotals{}, false, fmt.Errorf("read %s: %w", rng, err)
	}
	idx := findDateRow(resp.Values, date)
	if idx < 0 {
		return core.DayTotals{}, false, nil
	}
	d, err := parseRow(resp.Values[idx])
	if err != nil {
		return core.DayTotals{}, false, fmt.Errorf("parse %s row %d: %w", sheet, idx+1, err)
	}
	return d, true, nil
}

// rowFor returns the 1-based row of date in sheet, or the next free row.
// A fresh sheet gets its header written first.
func (c *Client) rowFor(ctx context.Context, sheet string, date core.Date) (int, error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt[sheet]) {
		if row, ok := c.rowIndex[sheet][date.String()]; ok {
			c.mu.Unlock()
			return row, nil
		}
		row := c.nextRow[sheet]
		c.rowIndex[sheet][date.String()] = row
		c.nextRow[sheet] = row + 1
		c.mu.Unlock()
		return row, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", rng, err)
	}

	values := resp.Values
	if len(values) == 0 {
		if err := c.writeHeader(ctx, sheet); err != nil {
			return 0, err
		}
		values = [][]any{toAny(header)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadIndexLocked(sheet, values)
	row, ok := c.rowIndex[sheet][date.String()]
	if !ok {
		row = c.nextRow[sheet]
		c.rowIndex[sheet][date.String()] = row
		c.nextRow[sheet] = row + 1
	}
	return row, nil
}

func (c *Client) loadIndexLocked(sheet string, values [][]any) {
	if c.rowIndex == nil {
		c.rowIndex = make(map[string]map[string]int)
		c.nextRow = make(map[string]int)
		c.cacheExpiresAt = make(map[string]time.Time)
	}
	idx := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if d, err := core.ParseDate(fmt.Sprint(row[0])); err == nil {
			idx[d.String()] = i + 1
		}
	}
	c.rowIndex[sheet] = idx
	c.nextRow[sheet] = len(values) + 1
	c.cacheExpiresAt[sheet] = time.Now().Add(c.cacheValidDuration)
}

func (c *Client) invalidate(sheet string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cacheExpiresAt, sheet)
}

func (c *Client) writeHeader(ctx context.Context, sheet string) error {
	rng := fmt.Sprintf("%s!A1:%s1", sheet, lastColumn)
	vr := &gsheet.ValueRange{Values: [][]any{toAny(header)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write header to %s: %w", sheet, err)
	}
	slog.InfoContext(ctx, "Wrote header to new sheet", "sheet", sheet)
	return nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
