// Package core provides money parsing and handling utilities.
//
// Amounts are decimal.Decimal values kept at two fractional digits. Parsing
// accepts both the dot and the comma as the decimal separator, the latter
// being what Brazilian users type.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits kept for every amount.
const AmountPlaces = 2

// ParseAmount converts a user supplied decimal string into a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Zero, negative and malformed
// values are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
//	ParseAmount("12.344") -> 12.34, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseNonNegative(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseBalance is like ParseAmount but accepts zero, since an empty till is a
// legitimate physical count.
func ParseBalance(s string) (decimal.Decimal, error) {
	return parseNonNegative(s)
}

func parseNonNegative(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	// bound the integer part so stored strings stay sane
	if len(parts[0]) > 15 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return RoundAmount(d), nil
}

// RoundAmount rounds half away from zero to two places, which for the
// non-negative values handled here is half-up.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// ToCents converts an amount to integer cents, the unit amounts are stored in.
func ToCents(d decimal.Decimal) int64 {
	return RoundAmount(d).Shift(AmountPlaces).IntPart()
}

// FromCents converts stored integer cents back to an amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -AmountPlaces)
}

// FormatBRL renders an amount as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := RoundAmount(d.Abs()).StringFixed(AmountPlaces)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}
