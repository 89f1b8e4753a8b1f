package storage

import (
	"context"

	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"

	"github.com/shopspring/decimal"
)

// Store is the persistence boundary of the ledger. Missing rows surface as
// *core.NotFoundError, refused deletes as *core.ConflictError and driver
// failures as *core.StoreError.
type Store interface {
	ListLocations(ctx context.Context) ([]core.Location, error)
	GetLocation(ctx context.Context, id int64) (core.Location, error)
	CreateLocation(ctx context.Context, in core.LocationInput) (core.Location, error)
	UpdateLocation(ctx context.Context, id int64, in core.LocationInput) (core.Location, error)
	// DeleteLocation refuses to remove a location that transactions still reference.
	DeleteLocation(ctx context.Context, id int64) error

	ListAccounts(ctx context.Context) ([]core.AccountWithCount, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error)
	UpdateAccount(ctx context.Context, id int64, in core.AccountInput) (core.Account, error)
	// DeleteAccount refuses to remove an account that transactions still reference.
	DeleteAccount(ctx context.Context, id int64) error

	// ListTransactions returns matching rows, newest first, with Account and
	// Location attached. A nil page returns every match.
	ListTransactions(ctx context.Context, f core.TransactionFilter, page *core.Page) ([]core.Transaction, error)
	CountTransactions(ctx context.Context, f core.TransactionFilter) (int64, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error

	SumByType(ctx context.Context, f core.TransactionFilter, t core.TransactionType) (decimal.Decimal, error)
	GroupByDate(ctx context.Context, f core.TransactionFilter) ([]ledger.DailyPoint, error)
	GroupByAccount(ctx context.Context, f core.TransactionFilter) ([]ledger.AccountGroup, error)

	Ping(ctx context.Context) error
	Close() error
}
