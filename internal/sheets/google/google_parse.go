package google

import (
	"fmt"
	"strconv"
	"strings"

	ports "bookkeeper/internal/sheets"
)

// lastColumn is the letter of the final mirror column.
var lastColumn = string(rune('A' + len(ports.Header) - 1))

// quoteSheet renders a sheet title for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func columnsRange(sheet string) string {
	return fmt.Sprintf("%s!A:%s", quoteSheet(sheet), lastColumn)
}

func idColumnRange(sheet string) string {
	return quoteSheet(sheet) + "!A:A"
}

func rowRange(sheet string, from, to int) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), from, lastColumn, to)
}

func headerValues() []any {
	out := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		out[i] = h
	}
	return out
}

// rowIndex finds id in a column-A values matrix and returns its 1-based row.
// Header and non-numeric cells are skipped.
func rowIndex(values [][]any, id int64) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(fmt.Sprint(row[0]))
		v, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			continue
		}
		if v == id {
			return i + 1
		}
	}
	return 0
}
