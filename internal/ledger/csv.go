package ledger

import (
	"bufio"
	"io"
	"strings"

	"bookkeeper/internal/core"
)

var csvHeader = []string{"Date", "Transaction No", "Type", "Amount", "Account", "Location", "Description"}

// WriteCSV renders txs as a report. The header is always written. The
// description column is always quoted; other fields only when they contain a
// separator, quote or line break.
func WriteCSV(w io.Writer, txs []core.Transaction) error {
	bw := bufio.NewWriter(w)

	writeRow(bw, csvHeader, -1)
	for _, tx := range txs {
		writeRow(bw, []string{
			tx.Date.String(),
			tx.TransactionNo,
			tx.Type.String(),
			core.FormatAmount(tx.Amount),
			tx.AccountName(),
			tx.LocationName(),
			tx.Description,
		}, len(csvHeader)-1)
	}

	return bw.Flush()
}

func writeRow(w *bufio.Writer, fields []string, alwaysQuote int) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		if i == alwaysQuote || needsQuote(f) {
			w.WriteByte('"')
			w.WriteString(strings.ReplaceAll(f, `"`, `""`))
			w.WriteByte('"')
			continue
		}
		w.WriteString(f)
	}
	w.WriteByte('\n')
}

func needsQuote(s string) bool {
	return strings.ContainsAny(s, ",\"\r\n")
}
