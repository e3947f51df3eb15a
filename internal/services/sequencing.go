// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for day sequencing. Each policy
// decides which date precedes or follows a business day and which dates are
// non-operating by rule. A day explicitly flagged as closed is non-operating
// under every policy.

package services

import (
	"fmt"
	"strings"
	"time"

	"caixa/internal/core"
)

// Sequencer is the strategy interface for walking business days.
type Sequencer interface {
	// Previous returns the business day whose closing balance carries into d.
	Previous(d core.Date) core.Date
	// Next returns the business day that follows d.
	Next(d core.Date) core.Date
	// IsNonOperating reports whether d is closed by policy.
	IsNonOperating(d core.Date) bool
}

// CalendarSequencer treats every calendar day as a business day.
type CalendarSequencer struct{}

func (CalendarSequencer) Previous(d core.Date) core.Date { return d.AddDays(-1) }
func (CalendarSequencer) Next(d core.Date) core.Date { return d.AddDays(1) }
func (CalendarSequencer) IsNonOperating(core.Date) bool { return false }

// WeekdaySkipSequencer steps one day at a time but jumps over the Closed
// weekday, e.g. Monday's previous day is Saturday when Closed is Sunday.
type WeekdaySkipSequencer struct {
	Closed time.Weekday
}

func (s WeekdaySkipSequencer) Previous(d core.Date) core.Date {
	p := d.AddDays(-1)
	if p.Weekday() == s.Closed {
		p = p.AddDays(-1)
	}
	return p
}

func (s WeekdaySkipSequencer) Next(d core.Date) core.Date {
	n := d.AddDays(1)
	if n.Weekday() == s.Closed {
		n = n.AddDays(1)
	}
	return n
}

func (s WeekdaySkipSequencer) IsNonOperating(d core.Date) bool {
	return d.Weekday() == s.Closed
}

const (
	SequencingCalendar    = "calendar"
	SequencingSkipWeekday = "skip-weekday"
)

// sequencingStrategies maps policy names to constructors.
var sequencingStrategies = map[string]func(closed time.Weekday) Sequencer{
	SequencingCalendar:    func(time.Weekday) Sequencer { return CalendarSequencer{} },
	SequencingSkipWeekday: func(closed time.Weekday) Sequencer { return WeekdaySkipSequencer{Closed: closed} },
}

// NewSequencer returns the sequencing policy registered under name.
// closed is only used by policies that skip a weekday.
func NewSequencer(name string, closed time.Weekday) (Sequencer, error) {
	ctor, ok := sequencingStrategies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown sequencing policy: %s", name)
	}
	return ctor(closed), nil
}

// RegisterSequencer allows registering custom sequencing policies.
func RegisterSequencer(name string, ctor func(closed time.Weekday) Sequencer) {
	sequencingStrategies[name] = ctor
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "domingo": time.Sunday,
	"monday": time.Monday, "segunda": time.Monday,
	"tuesday": time.Tuesday, "terca": time.Tuesday, "terça": time.Tuesday,
	"wednesday": time.Wednesday, "quarta": time.Wednesday,
	"thursday": time.Thursday, "quinta": time.Thursday,
	"friday": time.Friday, "sexta": time.Friday,
	"saturday": time.Saturday, "sabado": time.Saturday, "sábado": time.Saturday,
}

// ParseWeekday accepts English or Portuguese weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return time.Sunday, fmt.Errorf("unknown weekday: %q", s)
	}
	return wd, nil
}
