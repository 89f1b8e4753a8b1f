package memory

import (
	"context"
	"sync"

	ports "bookkeeper/internal/sheets"
)

// Mirror is an in-process LedgerMirror keeping rows in sheet order.
type Mirror struct {
	mu   sync.Mutex
	rows []ports.Row

	// Fail, when set, is consulted before every write; a non-nil result aborts it.
	Fail func(op string, id int64) error
}

var _ ports.LedgerMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{}
}

// Upsert replaces the row with the same id or appends it.
func (m *Mirror) Upsert(_ context.Context, row ports.Row) error {
	if err := m.fail("upsert", row.TransactionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].TransactionID == row.TransactionID {
			m.rows[i] = row
			return nil
		}
	}
	m.rows = append(m.rows, row)
	return nil
}

// Delete removes the row for id if present.
func (m *Mirror) Delete(_ context.Context, transactionID int64) error {
	if err := m.fail("delete", transactionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].TransactionID == transactionID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// ReplaceAll swaps the full contents.
func (m *Mirror) ReplaceAll(_ context.Context, rows []ports.Row) error {
	if err := m.fail("replace", 0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append([]ports.Row(nil), rows...)
	return nil
}

// Rows returns a copy of the current rows.
func (m *Mirror) Rows() []ports.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.Row(nil), m.rows...)
}

// Get returns the row for id.
func (m *Mirror) Get(transactionID int64) (ports.Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.TransactionID == transactionID {
			return r, true
		}
	}
	return ports.Row{}, false
}

func (m *Mirror) fail(op string, id int64) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, id)
}
