package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// TransactionFilter narrows a transaction query. Zero values mean "no constraint".
type TransactionFilter struct {
	LocationID int64
	AccountID  int64
	Type       TransactionType
	// Search matches transactionNo, description or account name as a substring.
	Search string
	// StartDate and EndDate are inclusive calendar bounds.
	StartDate *Date
	EndDate   *Date
	// MinAmount and MaxAmount are inclusive bounds.
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
}

// Page selects a slice of an ordered result. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// MaxPageNumber bounds the page a client may ask for.
const MaxPageNumber = 1_000_000

// Offset is the number of rows before the page. It saturates at math.MaxInt
// instead of overflowing.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// EmptyRange reports whether the date bounds cannot match anything.
func (f TransactionFilter) EmptyRange() bool {
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return true
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		return true
	}
	return false
}

// WithType returns a copy of f restricted to one transaction type.
func (f TransactionFilter) WithType(t TransactionType) TransactionFilter {
	f.Type = t
	return f
}

// WithDateRange returns a copy of f bounded to [start, end].
func (f TransactionFilter) WithDateRange(start, end Date) TransactionFilter {
	f.StartDate = &start
	f.EndDate = &end
	return f
}
