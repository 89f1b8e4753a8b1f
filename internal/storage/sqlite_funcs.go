package storage

import (
	"database/sql/driver"
	"strings"

	"modernc.org/sqlite"
)

// sqliteFold lowercases text with Unicode case mapping. sqlite's LOWER only
// maps ASCII, which would make search disagree with the other backends.
const sqliteFold = "ledger_fold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(sqliteFold, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return v, nil
		}
	})
}

// lower wraps a column in the dialect's case-folding function.
func (d Dialect) lower(column string) string {
	if d == DialectSQLite {
		return sqliteFold + "(" + column + ")"
	}
	return "LOWER(" + column + ")"
}
