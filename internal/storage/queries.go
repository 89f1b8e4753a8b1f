package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookkeeper/internal/core"
)

// Dialect selects placeholder and parameter conventions of a SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Rebind rewrites ? placeholders into $n for postgres.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// timeArg renders a timestamp parameter. sqlite keeps RFC 3339 text.
func (d Dialect) timeArg(t time.Time) any {
	if d == DialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries runs the ledger statements against a connection or transaction.
type Queries struct {
	db      DBTX
	dialect Dialect
}

func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.dialect.Rebind(query), args...)
}

const (
	locationColumns = `id, name, address, created_at, updated_at`
	accountColumns  = `id, name, phone_number, created_at, updated_at`

	transactionSelect = `SELECT t.id, t.transaction_no, t.date, t.amount_cents, t.type, t.description,
       t.account_id, t.location_id, t.created_at, t.updated_at,
       a.id, a.name, a.phone_number, a.created_at, a.updated_at,
       l.id, l.name, l.address, l.created_at, l.updated_at`

	transactionFrom = `
FROM transactions t
JOIN accounts a ON a.id = t.account_id
JOIN locations l ON l.id = t.location_id`
)

// Locations

func (q *Queries) ListLocations(ctx context.Context) ([]core.Location, error) {
	rows, err := q.query(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Location, 0)
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *Queries) GetLocation(ctx context.Context, id int64) (core.Location, error) {
	return scanLocation(q.queryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
}

func (q *Queries) CreateLocation(ctx context.Context, in core.LocationInput, now time.Time) (core.Location, error) {
	return scanLocation(q.queryRow(ctx,
		`INSERT INTO locations (name, address, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING `+locationColumns,
		in.Name, in.Address, q.dialect.timeArg(now), q.dialect.timeArg(now)))
}

func (q *Queries) UpdateLocation(ctx context.Context, id int64, in core.LocationInput, now time.Time) (core.Location, error) {
	return scanLocation(q.queryRow(ctx,
		`UPDATE locations SET name = ?, address = ?, updated_at = ? WHERE id = ? RETURNING `+locationColumns,
		in.Name, in.Address, q.dialect.timeArg(now), id))
}

func (q *Queries) DeleteLocation(ctx context.Context, id int64) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) CountLocationReferences(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE location_id = ?`, id).Scan(&n)
	return n, err
}

// Accounts

func (q *Queries) ListAccountsWithCount(ctx context.Context) ([]core.AccountWithCount, error) {
	rows, err := q.query(ctx, `SELECT a.id, a.name, a.phone_number, a.created_at, a.updated_at, COUNT(t.id)
FROM accounts a
LEFT JOIN transactions t ON t.account_id = a.id
GROUP BY a.id, a.name, a.phone_number, a.created_at, a.updated_at
ORDER BY a.name ASC, a.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.AccountWithCount, 0)
	for rows.Next() {
		var a core.AccountWithCount
		var created, updated timestamp
		if err := rows.Scan(&a.ID, &a.Name, &a.PhoneNumber, &created, &updated, &a.TransactionCount); err != nil {
			return nil, err
		}
		a.CreatedAt, a.UpdatedAt = created.Time, updated.Time
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	return scanAccount(q.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
}

func (q *Queries) CreateAccount(ctx context.Context, in core.AccountInput, now time.Time) (core.Account, error) {
	return scanAccount(q.queryRow(ctx,
		`INSERT INTO accounts (name, phone_number, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING `+accountColumns,
		in.Name, in.PhoneNumber, q.dialect.timeArg(now), q.dialect.timeArg(now)))
}

func (q *Queries) UpdateAccount(ctx context.Context, id int64, in core.AccountInput, now time.Time) (core.Account, error) {
	return scanAccount(q.queryRow(ctx,
		`UPDATE accounts SET name = ?, phone_number = ?, updated_at = ? WHERE id = ? RETURNING `+accountColumns,
		in.Name, in.PhoneNumber, q.dialect.timeArg(now), id))
}

func (q *Queries) DeleteAccount(ctx context.Context, id int64) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) CountAccountReferences(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = ?`, id).Scan(&n)
	return n, err
}

// Transactions

func (q *Queries) ListTransactions(ctx context.Context, f core.TransactionFilter, page *core.Page) ([]core.Transaction, error) {
	where, args := buildWhere(f, q.dialect)
	stmt := transactionSelect + transactionFrom + where + ` ORDER BY t.date DESC, t.id DESC`
	if page != nil {
		stmt += ` LIMIT ? OFFSET ?`
		args = append(args, page.Size, page.Offset())
	}

	rows, err := q.query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (q *Queries) CountTransactions(ctx context.Context, f core.TransactionFilter) (int64, error) {
	where, args := buildWhere(f, q.dialect)
	var n int64
	err := q.queryRow(ctx, `SELECT COUNT(*)`+transactionFrom+where, args...).Scan(&n)
	return n, err
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return scanTransaction(q.queryRow(ctx, transactionSelect+transactionFrom+` WHERE t.id = ?`, id))
}

func (q *Queries) CreateTransaction(ctx context.Context, in core.TransactionInput, now time.Time) (int64, error) {
	var id int64
	err := q.queryRow(ctx, `INSERT INTO transactions
    (transaction_no, date, amount_cents, type, description, account_id, location_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		in.TransactionNo, in.Date.String(), core.ToCents(in.Amount), string(in.Type), in.Description,
		in.AccountID, in.LocationID, q.dialect.timeArg(now), q.dialect.timeArg(now)).Scan(&id)
	return id, err
}

func (q *Queries) UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput, now time.Time) (int64, error) {
	res, err := q.exec(ctx, `UPDATE transactions
SET transaction_no = ?, date = ?, amount_cents = ?, type = ?, description = ?,
    account_id = ?, location_id = ?, updated_at = ?
WHERE id = ?`,
		in.TransactionNo, in.Date.String(), core.ToCents(in.Amount), string(in.Type), in.Description,
		in.AccountID, in.LocationID, q.dialect.timeArg(now), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Aggregates

const (
	creditCents = `COALESCE(SUM(CASE WHEN t.type = 'CREDIT' THEN t.amount_cents ELSE 0 END), 0)`
	debitCents  = `COALESCE(SUM(CASE WHEN t.type = 'DEBIT' THEN t.amount_cents ELSE 0 END), 0)`
)

func (q *Queries) SumCents(ctx context.Context, f core.TransactionFilter) (int64, error) {
	where, args := buildWhere(f, q.dialect)
	var cents int64
	err := q.queryRow(ctx, `SELECT COALESCE(SUM(t.amount_cents), 0)`+transactionFrom+where, args...).Scan(&cents)
	return cents, err
}

// DateRow is one GROUP BY date result in cents.
type DateRow struct {
	Date         string
	CreditsCents int64
	DebitsCents  int64
	Count        int64
}

func (q *Queries) GroupByDate(ctx context.Context, f core.TransactionFilter) ([]DateRow, error) {
	where, args := buildWhere(f, q.dialect)
	rows, err := q.query(ctx, `SELECT t.date, `+creditCents+`, `+debitCents+`, COUNT(*)`+
		transactionFrom+where+` GROUP BY t.date ORDER BY t.date ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DateRow, 0)
	for rows.Next() {
		var r DateRow
		if err := rows.Scan(&r.Date, &r.CreditsCents, &r.DebitsCents, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AccountRow is one GROUP BY account result in cents.
type AccountRow struct {
	AccountID    int64
	AccountName  string
	CreditsCents int64
	DebitsCents  int64
	Count        int64
}

func (q *Queries) GroupByAccount(ctx context.Context, f core.TransactionFilter) ([]AccountRow, error) {
	where, args := buildWhere(f, q.dialect)
	rows, err := q.query(ctx, `SELECT t.account_id, a.name, `+creditCents+`, `+debitCents+`, COUNT(*)`+
		transactionFrom+where+` GROUP BY t.account_id, a.name ORDER BY a.name ASC, t.account_id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AccountRow, 0)
	for rows.Next() {
		var r AccountRow
		if err := rows.Scan(&r.AccountID, &r.AccountName, &r.CreditsCents, &r.DebitsCents, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// buildWhere renders f as a WHERE clause over the t/a/l join.
func buildWhere(f core.TransactionFilter, d Dialect) (string, []any) {
	var conds []string
	var args []any

	if f.LocationID > 0 {
		conds = append(conds, `t.location_id = ?`)
		args = append(args, f.LocationID)
	}
	if f.AccountID > 0 {
		conds = append(conds, `t.account_id = ?`)
		args = append(args, f.AccountID)
	}
	if f.Type != "" {
		conds = append(conds, `t.type = ?`)
		args = append(args, string(f.Type))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		like := ` LIKE ? ESCAPE '\'`
		conds = append(conds, "("+d.lower("t.transaction_no")+like+" OR "+d.lower("t.description")+like+" OR "+d.lower("a.name")+like+")")
		args = append(args, pattern, pattern, pattern)
	}
	if f.StartDate != nil {
		conds = append(conds, `t.date >= ?`)
		args = append(args, f.StartDate.String())
	}
	if f.EndDate != nil {
		conds = append(conds, `t.date <= ?`)
		args = append(args, f.EndDate.String())
	}
	if f.MinAmount != nil {
		conds = append(conds, `t.amount_cents >= ?`)
		args = append(args, core.ToCents(*f.MinAmount))
	}
	if f.MaxAmount != nil {
		conds = append(conds, `t.amount_cents <= ?`)
		args = append(args, core.ToCents(*f.MaxAmount))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Scanning

type scanner interface {
	Scan(dest ...any) error
}

// timestamp accepts driver time values as well as the text sqlite returns.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		ts.Time = time.Time{}
		return nil
	case time.Time:
		ts.Time = v
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (ts *timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func scanLocation(row scanner) (core.Location, error) {
	var l core.Location
	var created, updated timestamp
	if err := row.Scan(&l.ID, &l.Name, &l.Address, &created, &updated); err != nil {
		return core.Location{}, err
	}
	l.CreatedAt, l.UpdatedAt = created.Time, updated.Time
	return l, nil
}

func scanAccount(row scanner) (core.Account, error) {
	var a core.Account
	var created, updated timestamp
	if err := row.Scan(&a.ID, &a.Name, &a.PhoneNumber, &created, &updated); err != nil {
		return core.Account{}, err
	}
	a.CreatedAt, a.UpdatedAt = created.Time, updated.Time
	return a, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		tx                     core.Transaction
		acc                    core.Account
		loc                    core.Location
		date, typ              string
		cents                  int64
		created, updated       timestamp
		accCreated, accUpdated timestamp
		locCreated, locUpdated timestamp
	)
	err := row.Scan(
		&tx.ID, &tx.TransactionNo, &date, &cents, &typ, &tx.Description,
		&tx.AccountID, &tx.LocationID, &created, &updated,
		&acc.ID, &acc.Name, &acc.PhoneNumber, &accCreated, &accUpdated,
		&loc.ID, &loc.Name, &loc.Address, &locCreated, &locUpdated,
	)
	if err != nil {
		return core.Transaction{}, err
	}

	d, err := core.ParseDate(date, time.UTC)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Date = d
	tx.Amount = core.FromCents(cents)
	tx.Type = core.TransactionType(typ)
	tx.CreatedAt, tx.UpdatedAt = created.Time, updated.Time

	acc.CreatedAt, acc.UpdatedAt = accCreated.Time, accUpdated.Time
	loc.CreatedAt, loc.UpdatedAt = locCreated.Time, locUpdated.Time
	tx.Account = &acc
	tx.Location = &loc
	return tx, nil
}
