package google

import "testing"

func TestRanges(t *testing.T) {
	if got := columnsRange("Ledger"); got != "'Ledger'!A:I" {
		t.Errorf("columnsRange = %q", got)
	}
	if got := rowRange("Main Ledger", 4, 4); got != "'Main Ledger'!A4:I4" {
		t.Errorf("rowRange = %q", got)
	}
	if got := idColumnRange("Bob's"); got != "'Bob''s'!A:A" {
		t.Errorf("idColumnRange = %q", got)
	}
}

func TestRowIndex(t *testing.T) {
	values := [][]any{
		{"ID"},
		{"3"},
		{},
		{" 12 "},
		{"note"},
		{float64(40)},
	}

	tests := []struct {
		id   int64
		want int
	}{
		{3, 2},
		{12, 4},
		{40, 6},
		{99, 0},
	}
	for _, tt := range tests {
		if got := rowIndex(values, tt.id); got != tt.want {
			t.Errorf("rowIndex(%d) = %d, want %d", tt.id, got, tt.want)
		}
	}
}
