package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	maxNameLength        = 100
	maxTextLength        = 500
	maxTransactionNoSize = 50
)

// Payload is an untyped request body as decoded from JSON.
type Payload map[string]any

// ValidateLocation checks a location payload.
func ValidateLocation(p Payload) (LocationInput, error) {
	verr := &ValidationError{}
	in := LocationInput{
		Name:    requiredString(verr, p, "name", maxNameLength),
		Address: optionalString(verr, p, "address", maxTextLength),
	}
	return in, verr.OrNil()
}

// ValidateAccount checks an account payload.
func ValidateAccount(p Payload) (AccountInput, error) {
	verr := &ValidationError{}
	in := AccountInput{
		Name:        requiredString(verr, p, "name", maxNameLength),
		PhoneNumber: requiredString(verr, p, "phoneNumber", maxNameLength),
	}
	return in, verr.OrNil()
}

// ValidateTransaction checks a transaction payload. Timestamps in "date" are
// reduced to the calendar date in loc.
func ValidateTransaction(p Payload, loc *time.Location) (TransactionInput, error) {
	verr := &ValidationError{}
	in := TransactionInput{
		TransactionNo: requiredString(verr, p, "transactionNo", maxTransactionNoSize),
		Description:   optionalString(verr, p, "description", maxTextLength),
		AccountID:     positiveID(verr, p, "accountId"),
		LocationID:    positiveID(verr, p, "locationId"),
	}

	if raw := requiredString(verr, p, "date", 64); raw != "" {
		d, err := ParseDate(raw, loc)
		if err != nil {
			verr.Add("date", "must be a valid date")
		} else {
			in.Date = d
		}
	}

	in.Amount = positiveAmount(verr, p, "amount")

	switch v := p["type"].(type) {
	case nil:
		verr.Add("type", "is required")
	case string:
		t := TransactionType(strings.TrimSpace(v))
		if !t.Valid() {
			verr.Add("type", "must be CREDIT or DEBIT")
		}
		in.Type = t
	default:
		verr.Add("type", "must be CREDIT or DEBIT")
	}

	return in, verr.OrNil()
}

func requiredString(verr *ValidationError, p Payload, field string, max int) string {
	raw, ok := p[field]
	if !ok || raw == nil {
		verr.Add(field, "is required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		verr.Add(field, "must be a string")
		return ""
	}
	s = Sanitize(s)
	if s == "" {
		verr.Add(field, "is required")
		return ""
	}
	if utf8.RuneCountInString(s) > max {
		verr.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return s
}

func optionalString(verr *ValidationError, p Payload, field string, max int) string {
	raw, ok := p[field]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		verr.Add(field, "must be a string")
		return ""
	}
	s = Sanitize(s)
	if utf8.RuneCountInString(s) > max {
		verr.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return s
}

func positiveID(verr *ValidationError, p Payload, field string) int64 {
	raw, ok := p[field]
	if !ok || raw == nil {
		verr.Add(field, "is required")
		return 0
	}
	var id int64
	var err error
	switch v := raw.(type) {
	case json.Number:
		id, err = strconv.ParseInt(v.String(), 10, 64)
	case float64:
		if v != float64(int64(v)) {
			err = fmt.Errorf("not an integer")
		}
		id = int64(v)
	case int:
		id = int64(v)
	case int64:
		id = v
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil || id <= 0 {
		verr.Add(field, "must be a positive integer")
		return 0
	}
	return id
}

func positiveAmount(verr *ValidationError, p Payload, field string) decimal.Decimal {
	raw, ok := p[field]
	if !ok || raw == nil {
		verr.Add(field, "is required")
		return decimal.Zero
	}
	var amount decimal.Decimal
	var err error
	switch v := raw.(type) {
	case json.Number:
		amount, err = ParseNumber(v.String())
	case float64:
		amount, err = NormalizeAmount(decimal.NewFromFloat(v))
	case int:
		amount, err = NormalizeAmount(decimal.NewFromInt(int64(v)))
	case string:
		amount, err = ParseAmount(v)
	default:
		err = ErrInvalidAmount
	}
	if err != nil {
		verr.Add(field, "must be a positive number")
		return decimal.Zero
	}
	return amount
}

// Sanitize trims whitespace and drops control characters other than tab and newlines.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
