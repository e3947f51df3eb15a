package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"caixa/internal/core"
	ports "caixa/internal/sheets"
)

// Sheet is an in-process stand-in for the exported spreadsheet. Rows are
// kept in first-written order and upserted by date.
type Sheet struct {
	mu   sync.Mutex
	rows []core.DayTotals
}

var (
	_ ports.DaySummaryWriter = (*Sheet)(nil)
	_ ports.DaySummaryReader = (*Sheet)(nil)
)

func New() *Sheet {
	return &Sheet{}
}

// UpsertDay stores the day and returns a synthetic row reference.
func (s *Sheet) UpsertDay(_ context.Context, d core.DayTotals) (string, error) {
	if err := d.Date.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.rows {
		if row.Date.Equal(d.Date) {
			s.rows[i] = d
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	s.rows = append(s.rows, d)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ReadDay returns the stored row of date.
func (s *Sheet) ReadDay(_ context.Context, date core.Date) (core.DayTotals, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Date.Equal(date) {
			return row, true, nil
		}
	}
	return core.DayTotals{}, false, nil
}

// Rows returns a copy of all rows sorted by date.
func (s *Sheet) Rows() []core.DayTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.DayTotals, len(s.rows))
	copy(out, s.rows)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
