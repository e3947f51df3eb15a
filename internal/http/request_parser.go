// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// path dates, report ranges, transaction forms and JSON or form bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"caixa/internal/core"
)

// maxBodyBytes bounds form and JSON bodies.
const maxBodyBytes = 64 << 10

var (
	errMalformedDate   = errors.New("data inválida, use AAAA-MM-DD")
	errUnknownCategory = errors.New("categoria inexistente")
)

// PathDate parses the {date} path segment. Malformed dates never reach the
// ledger: callers answer them with 400.
func PathDate(r *http.Request) (core.Date, error) {
	d, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		return core.Date{}, errMalformedDate
	}
	return d, nil
}

// PathID parses the {id} path segment as a positive integer.
func PathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q", core.ErrNotFound, r.PathValue("id"))
	}
	return id, nil
}

// RangeParams holds an inclusive report range.
type RangeParams struct {
	Start core.Date
	End   core.Date
}

// ParseRangeParams reads start and end from the query. A missing bound
// defaults to today (for end) or to the first day of end's month (for start).
func ParseRangeParams(query url.Values, today core.Date) (RangeParams, error) {
	p := RangeParams{End: today}
	if v := strings.TrimSpace(query.Get("end")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return RangeParams{}, errMalformedDate
		}
		p.End = d
	}
	p.Start = core.NewDate(p.End.Year(), int(p.End.Month()), 1)
	if v := strings.TrimSpace(query.Get("start")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return RangeParams{}, errMalformedDate
		}
		p.Start = d
	}
	if p.End.Before(p.Start) {
		return RangeParams{}, core.ErrInvalidRange
	}
	return p, nil
}

// TransactionForm is the raw user input behind a transaction, kept so an
// invalid form can be rendered again with what the user typed.
type TransactionForm struct {
	Kind        string
	Amount      string
	CategoryID  string
	Description string
}

// ParseTransactionForm reads the transaction fields from a parsed body.
func ParseTransactionForm(p *RequestBodyParser) TransactionForm {
	return TransactionForm{
		Kind:        p.Get("kind"),
		Amount:      p.Get("amount"),
		CategoryID:  p.Get("category_id"),
		Description: p.Get("description"),
	}
}

// Transaction validates the form and builds the transaction for date.
// Errors carry the core sentinel so callers can map them to a status.
func (f TransactionForm) Transaction(date core.Date) (core.Transaction, error) {
	kind := core.TransactionKind(strings.ToUpper(f.Kind))
	if !kind.IsValid() {
		return core.Transaction{}, core.ErrInvalidKind
	}
	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		Date:        date,
		Kind:        kind,
		Amount:      amount,
		Description: f.Description,
	}
	if f.CategoryID != "" {
		id, err := strconv.ParseInt(f.CategoryID, 10, 64)
		if err != nil || id <= 0 {
			return core.Transaction{}, errUnknownCategory
		}
		tx.CategoryID = &id
	}
	return tx, nil
}

// FormFromTransaction fills a form from a stored transaction, for the edit page.
func FormFromTransaction(tx core.Transaction) TransactionForm {
	f := TransactionForm{
		Kind:        string(tx.Kind),
		Amount:      tx.Amount.StringFixed(core.AmountPlaces),
		Description: tx.Description,
	}
	if tx.CategoryID != nil {
		f.CategoryID = strconv.FormatInt(*tx.CategoryID, 10)
	}
	return f
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, so the API and the HTML forms
// share one set of handlers.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Raw returns the value of key untouched, for secrets where whitespace counts.
func (p *RequestBodyParser) Raw(key string) string {
	if p.jsonData != nil {
		return stringValue(p.jsonData[key])
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// Has reports whether key was present in the body at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseBool accepts the values HTML checkboxes and JSON clients send.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes", "sim":
		return true
	default:
		return false
	}
}
