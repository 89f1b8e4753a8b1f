package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"

	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLRepository implements Store over sqlite or postgres.
type SQLRepository struct {
	db      *sql.DB
	queries *Queries
	dialect Dialect
	now     func() time.Time
}

var _ Store = (*SQLRepository)(nil)

// sqlitePragmas are applied to every connection unless the path sets them.
var sqlitePragmas = []string{"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"}

// sqliteDSN splits dbPath into the file path and a DSN carrying the default
// pragmas merged into any query string dbPath already has.
func sqliteDSN(dbPath string) (file, dsn string, err error) {
	file, query, _ := strings.Cut(dbPath, "?")
	params, err := url.ParseQuery(query)
	if err != nil {
		return "", "", fmt.Errorf("parse sqlite path parameters: %w", err)
	}
	set := make(map[string]bool)
	for _, p := range params["_pragma"] {
		name, _, _ := strings.Cut(p, "(")
		set[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for _, p := range sqlitePragmas {
		name, _, _ := strings.Cut(p, "(")
		if !set[name] {
			params.Add("_pragma", p)
		}
	}
	return file, file + "?" + params.Encode(), nil
}

func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	file, dsn, err := sqliteDSN(dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunSQLiteMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLRepository(db, DialectSQLite), nil
}

func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunPostgresMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return newSQLRepository(db, DialectPostgres), nil
}

func newSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{
		db:      db,
		queries: New(db, dialect),
		dialect: dialect,
		now:     time.Now,
	}
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return core.NewStoreError("ping", r.db.PingContext(ctx))
}

// Dialect reports which backend the repository talks to.
func (r *SQLRepository) Dialect() Dialect { return r.dialect }

func notFoundOr(op, entity string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &core.NotFoundError{Entity: entity, ID: id}
	}
	return core.NewStoreError(op, err)
}

// withTx runs fn inside a database transaction, rolling back on error.
func (r *SQLRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Locations

func (r *SQLRepository) ListLocations(ctx context.Context) ([]core.Location, error) {
	locations, err := r.queries.ListLocations(ctx)
	if err != nil {
		return nil, core.NewStoreError("list locations", err)
	}
	return locations, nil
}

func (r *SQLRepository) GetLocation(ctx context.Context, id int64) (core.Location, error) {
	l, err := r.queries.GetLocation(ctx, id)
	if err != nil {
		return core.Location{}, notFoundOr("get location", "location", id, err)
	}
	return l, nil
}

func (r *SQLRepository) CreateLocation(ctx context.Context, in core.LocationInput) (core.Location, error) {
	l, err := r.queries.CreateLocation(ctx, in, r.now())
	if err != nil {
		return core.Location{}, core.NewStoreError("create location", err)
	}
	slog.InfoContext(ctx, "Location saved", "id", l.ID, "name", l.Name)
	return l, nil
}

func (r *SQLRepository) UpdateLocation(ctx context.Context, id int64, in core.LocationInput) (core.Location, error) {
	l, err := r.queries.UpdateLocation(ctx, id, in, r.now())
	if err != nil {
		return core.Location{}, notFoundOr("update location", "location", id, err)
	}
	return l, nil
}

func (r *SQLRepository) DeleteLocation(ctx context.Context, id int64) error {
	err := r.withTx(ctx, func(q *Queries) error {
		refs, err := q.CountLocationReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return &core.ConflictError{Entity: "location", ID: id, References: refs}
		}
		n, err := q.DeleteLocation(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return &core.NotFoundError{Entity: "location", ID: id}
		}
		return nil
	})
	return core.NewStoreError("delete location", err)
}

// Accounts

func (r *SQLRepository) ListAccounts(ctx context.Context) ([]core.AccountWithCount, error) {
	accounts, err := r.queries.ListAccountsWithCount(ctx)
	if err != nil {
		return nil, core.NewStoreError("list accounts", err)
	}
	return accounts, nil
}

func (r *SQLRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	a, err := r.queries.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, notFoundOr("get account", "account", id, err)
	}
	return a, nil
}

func (r *SQLRepository) CreateAccount(ctx context.Context, in core.AccountInput) (core.Account, error) {
	a, err := r.queries.CreateAccount(ctx, in, r.now())
	if err != nil {
		return core.Account{}, core.NewStoreError("create account", err)
	}
	slog.InfoContext(ctx, "Account saved", "id", a.ID, "name", a.Name)
	return a, nil
}

func (r *SQLRepository) UpdateAccount(ctx context.Context, id int64, in core.AccountInput) (core.Account, error) {
	a, err := r.queries.UpdateAccount(ctx, id, in, r.now())
	if err != nil {
		return core.Account{}, notFoundOr("update account", "account", id, err)
	}
	return a, nil
}

func (r *SQLRepository) DeleteAccount(ctx context.Context, id int64) error {
	err := r.withTx(ctx, func(q *Queries) error {
		refs, err := q.CountAccountReferences(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return &core.ConflictError{Entity: "account", ID: id, References: refs}
		}
		n, err := q.DeleteAccount(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return &core.NotFoundError{Entity: "account", ID: id}
		}
		return nil
	})
	return core.NewStoreError("delete account", err)
}

// Transactions

func (r *SQLRepository) ListTransactions(ctx context.Context, f core.TransactionFilter, page *core.Page) ([]core.Transaction, error) {
	if f.EmptyRange() {
		return []core.Transaction{}, nil
	}
	txs, err := r.queries.ListTransactions(ctx, f, page)
	if err != nil {
		return nil, core.NewStoreError("list transactions", err)
	}
	return txs, nil
}

func (r *SQLRepository) CountTransactions(ctx context.Context, f core.TransactionFilter) (int64, error) {
	if f.EmptyRange() {
		return 0, nil
	}
	n, err := r.queries.CountTransactions(ctx, f)
	if err != nil {
		return 0, core.NewStoreError("count transactions", err)
	}
	return n, nil
}

func (r *SQLRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	tx, err := r.queries.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, notFoundOr("get transaction", "transaction", id, err)
	}
	return tx, nil
}

func (r *SQLRepository) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	id, err := r.queries.CreateTransaction(ctx, in, r.now())
	if err != nil {
		return core.Transaction{}, core.NewStoreError("create transaction", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"transaction_no", in.TransactionNo,
		"amount_cents", core.ToCents(in.Amount),
		"type", in.Type,
		"date", in.Date.String())

	return r.GetTransaction(ctx, id)
}

func (r *SQLRepository) UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	n, err := r.queries.UpdateTransaction(ctx, id, in, r.now())
	if err != nil {
		return core.Transaction{}, core.NewStoreError("update transaction", err)
	}
	if n == 0 {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	return r.GetTransaction(ctx, id)
}

func (r *SQLRepository) DeleteTransaction(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return core.NewStoreError("delete transaction", err)
	}
	if n == 0 {
		return &core.NotFoundError{Entity: "transaction", ID: id}
	}
	return nil
}

// Aggregates

func (r *SQLRepository) SumByType(ctx context.Context, f core.TransactionFilter, t core.TransactionType) (decimal.Decimal, error) {
	if f.EmptyRange() {
		return decimal.Zero, nil
	}
	cents, err := r.queries.SumCents(ctx, f.WithType(t))
	if err != nil {
		return decimal.Zero, core.NewStoreError("sum by type", err)
	}
	return core.FromCents(cents), nil
}

func (r *SQLRepository) GroupByDate(ctx context.Context, f core.TransactionFilter) ([]ledger.DailyPoint, error) {
	if f.EmptyRange() {
		return []ledger.DailyPoint{}, nil
	}
	rows, err := r.queries.GroupByDate(ctx, f)
	if err != nil {
		return nil, core.NewStoreError("group by date", err)
	}

	out := make([]ledger.DailyPoint, 0, len(rows))
	for _, row := range rows {
		d, err := core.ParseDate(row.Date, time.UTC)
		if err != nil {
			return nil, core.NewStoreError("group by date", err)
		}
		out = append(out, ledger.DailyPoint{
			Date: d,
			Totals: ledger.Totals{
				Credits: core.FromCents(row.CreditsCents),
				Debits:  core.FromCents(row.DebitsCents),
				Count:   row.Count,
			},
		})
	}
	return out, nil
}

func (r *SQLRepository) GroupByAccount(ctx context.Context, f core.TransactionFilter) ([]ledger.AccountGroup, error) {
	if f.EmptyRange() {
		return []ledger.AccountGroup{}, nil
	}
	rows, err := r.queries.GroupByAccount(ctx, f)
	if err != nil {
		return nil, core.NewStoreError("group by account", err)
	}

	out := make([]ledger.AccountGroup, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledger.AccountGroup{
			AccountID:   row.AccountID,
			AccountName: row.AccountName,
			Totals: ledger.Totals{
				Credits: core.FromCents(row.CreditsCents),
				Debits:  core.FromCents(row.DebitsCents),
				Count:   row.Count,
			},
		})
	}
	return out, nil
}
