package sheets

import (
	"context"
	"strconv"
	"time"

	"bookkeeper/internal/core"
)

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Date", "Transaction No", "Type", "Amount", "Account", "Location", "Description", "Updated At"}

// Row is one transaction in mirror column order, keyed by TransactionID.
type Row struct {
	TransactionID int64
	Date          string
	TransactionNo string
	Type          string
	Amount        string
	Account       string
	Location      string
	Description   string
	UpdatedAt     string
}

// RowFromTransaction flattens a transaction with its account and location attached.
func RowFromTransaction(tx core.Transaction) Row {
	return Row{
		TransactionID: tx.ID,
		Date:          tx.Date.String(),
		TransactionNo: tx.TransactionNo,
		Type:          tx.Type.String(),
		Amount:        core.FormatAmount(tx.Amount),
		Account:       tx.AccountName(),
		Location:      tx.LocationName(),
		Description:   tx.Description,
		UpdatedAt:     tx.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Values returns the row as sheet cells.
func (r Row) Values() []any {
	return []any{
		strconv.FormatInt(r.TransactionID, 10),
		r.Date,
		r.TransactionNo,
		r.Type,
		r.Amount,
		r.Account,
		r.Location,
		r.Description,
		r.UpdatedAt,
	}
}

// LedgerMirror keeps a spreadsheet copy of the ledger, one row per transaction.
type LedgerMirror interface {
	// Upsert replaces the row with the same TransactionID or appends a new one.
	Upsert(ctx context.Context, row Row) error
	// Delete removes the row for id. Missing rows are not an error.
	Delete(ctx context.Context, transactionID int64) error
	// ReplaceAll rewrites the whole sheet with rows.
	ReplaceAll(ctx context.Context, rows []Row) error
}
