package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Credit TransactionType = "CREDIT"
	Debit  TransactionType = "DEBIT"
)

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	// Date is a calendar date without a time of day.
	Date struct {
		time.Time
	}

	Location struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		Address   string    `json:"address,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	Account struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		PhoneNumber string    `json:"phoneNumber"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	// AccountWithCount is a list row carrying how many transactions reference the account.
	AccountWithCount struct {
		Account
		TransactionCount int64 `json:"transactionCount"`
	}

	Transaction struct {
		ID            int64           `json:"id"`
		TransactionNo string          `json:"transactionNo"`
		Date          Date            `json:"date"`
		Amount        decimal.Decimal `json:"amount"`
		Type          TransactionType `json:"type"`
		Description   string          `json:"description,omitempty"`
		AccountID     int64           `json:"accountId"`
		LocationID    int64           `json:"locationId"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`

		Account  *Account  `json:"account,omitempty"`
		Location *Location `json:"location,omitempty"`
	}

	// LocationInput is a validated location payload.
	LocationInput struct {
		Name    string
		Address string
	}

	// AccountInput is a validated account payload.
	AccountInput struct {
		Name        string
		PhoneNumber string
	}

	// TransactionInput is a validated transaction payload.
	TransactionInput struct {
		TransactionNo string
		Date          Date
		Amount        decimal.Decimal
		Type          TransactionType
		Description   string
		AccountID     int64
		LocationID    int64
	}
)

func (t TransactionType) Valid() bool {
	return t == Credit || t == Debit
}

func (t TransactionType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as observed in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp. Timestamps are
// reduced to the calendar date in loc.
func ParseDate(s string, loc *time.Location) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, errors.New("date is required")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return DateOf(t.In(loc)), nil
		}
	}
	return Date{}, fmt.Errorf("unparseable date %q", s)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time.AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) After(o Date) bool { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s, time.Local)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Signed returns the amount as a ledger movement: positive for credits,
// negative for debits.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// AccountName returns the attached account's name, or "Unknown" when the
// association was not loaded.
func (t Transaction) AccountName() string {
	if t.Account == nil || t.Account.Name == "" {
		return "Unknown"
	}
	return t.Account.Name
}

// LocationName returns the attached location's name, or "Unknown".
func (t Transaction) LocationName() string {
	if t.Location == nil || t.Location.Name == "" {
		return "Unknown"
	}
	return t.Location.Name
}
