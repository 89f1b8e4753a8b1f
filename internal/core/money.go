// Package core provides money parsing and handling utilities.
//
// Amounts travel through the system as decimal.Decimal and are persisted as
// integer cents, so every conversion rounds exactly once, on input.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MinAmount is the smallest positive amount a transaction may carry.
var MinAmount = decimal.New(1, -2)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string to a positive amount rounded half-up
// to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns an error for invalid formats, negative values, or amounts that
// round to zero.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (half-up)
//	ParseAmount("0.004")  -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return NormalizeAmount(d)
}

// ParseNumber converts a JSON number literal, exponent form included, to a
// positive amount rounded half-up to cents.
//
//	ParseNumber("1e2")    -> 100, nil
//	ParseNumber("2.5E1")  -> 25, nil
//	ParseNumber("1e-5")   -> 0, ErrInvalidAmount
func ParseNumber(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	// The value lies below 10^magnitude. Out-of-range exponents are rejected
	// here, before rounding expands them.
	magnitude := int64(d.NumDigits()) + int64(d.Exponent())
	if d.Sign() <= 0 || magnitude > 16 || magnitude < -2 {
		return decimal.Zero, ErrInvalidAmount
	}
	return NormalizeAmount(d)
}

// NormalizeAmount rounds d to cents and rejects non-positive results.
func NormalizeAmount(d decimal.Decimal) (decimal.Decimal, error) {
	d = d.Round(2)
	if d.LessThan(MinAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	// Guard the int64 cents representation.
	if d.GreaterThan(decimal.New(1, 15)) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ToCents returns d in integer cents. d must already be rounded to 2 places.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents converts integer cents back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatAmount renders d with exactly two decimals for display.
// Use decimal values for calculations; this is presentation only.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
