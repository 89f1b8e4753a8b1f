package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store for tests and DATA_BACKEND=memory.
type MemoryStore struct {
	mu           sync.RWMutex
	locations    map[int64]core.Location
	accounts     map[int64]core.Account
	transactions map[int64]core.Transaction
	nextID       map[string]int64
	now          func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations:    make(map[int64]core.Location),
		accounts:     make(map[int64]core.Account),
		transactions: make(map[int64]core.Transaction),
		nextID:       make(map[string]int64),
		now:          time.Now,
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) allocID(entity string) int64 {
	m.nextID[entity]++
	return m.nextID[entity]
}

// Locations

func (m *MemoryStore) ListLocations(context.Context) ([]core.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.Location, 0, len(m.locations))
	for _, l := range m.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetLocation(_ context.Context, id int64) (core.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.locations[id]
	if !ok {
		return core.Location{}, &core.NotFoundError{Entity: "location", ID: id}
	}
	return l, nil
}

func (m *MemoryStore) CreateLocation(_ context.Context, in core.LocationInput) (core.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	l := core.Location{
		ID:        m.allocID("location"),
		Name:      in.Name,
		Address:   in.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.locations[l.ID] = l
	return l, nil
}

func (m *MemoryStore) UpdateLocation(_ context.Context, id int64, in core.LocationInput) (core.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locations[id]
	if !ok {
		return core.Location{}, &core.NotFoundError{Entity: "location", ID: id}
	}
	l.Name = in.Name
	l.Address = in.Address
	l.UpdatedAt = m.now().UTC()
	m.locations[id] = l
	return l, nil
}

func (m *MemoryStore) DeleteLocation(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.locations[id]; !ok {
		return &core.NotFoundError{Entity: "location", ID: id}
	}
	if refs := m.countRefs(func(tx core.Transaction) bool { return tx.LocationID == id }); refs > 0 {
		return &core.ConflictError{Entity: "location", ID: id, References: refs}
	}
	delete(m.locations, id)
	return nil
}

// Accounts

func (m *MemoryStore) ListAccounts(context.Context) ([]core.AccountWithCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[int64]int64)
	for _, tx := range m.transactions {
		counts[tx.AccountID]++
	}

	out := make([]core.AccountWithCount, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, core.AccountWithCount{Account: a, TransactionCount: counts[a.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetAccount(_ context.Context, id int64) (core.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return core.Account{}, &core.NotFoundError{Entity: "account", ID: id}
	}
	return a, nil
}

func (m *MemoryStore) CreateAccount(_ context.Context, in core.AccountInput) (core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	a := core.Account{
		ID:          m.allocID("account"),
		Name:        in.Name,
		PhoneNumber: in.PhoneNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.accounts[a.ID] = a
	return a, nil
}

func (m *MemoryStore) UpdateAccount(_ context.Context, id int64, in core.AccountInput) (core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return core.Account{}, &core.NotFoundError{Entity: "account", ID: id}
	}
	a.Name = in.Name
	a.PhoneNumber = in.PhoneNumber
	a.UpdatedAt = m.now().UTC()
	m.accounts[id] = a
	return a, nil
}

func (m *MemoryStore) DeleteAccount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return &core.NotFoundError{Entity: "account", ID: id}
	}
	if refs := m.countRefs(func(tx core.Transaction) bool { return tx.AccountID == id }); refs > 0 {
		return &core.ConflictError{Entity: "account", ID: id, References: refs}
	}
	delete(m.accounts, id)
	return nil
}

func (m *MemoryStore) countRefs(match func(core.Transaction) bool) int64 {
	var n int64
	for _, tx := range m.transactions {
		if match(tx) {
			n++
		}
	}
	return n
}

// Transactions

func (m *MemoryStore) ListTransactions(_ context.Context, f core.TransactionFilter, page *core.Page) ([]core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.filter(f)
	if page == nil {
		return matched, nil
	}
	start := page.Offset()
	if start < 0 || start >= len(matched) {
		return []core.Transaction{}, nil
	}
	end := start + page.Size
	if end > len(matched) || end < start {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (m *MemoryStore) CountTransactions(_ context.Context, f core.TransactionFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.filter(f))), nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	return m.attach(tx), nil
}

func (m *MemoryStore) CreateTransaction(_ context.Context, in core.TransactionInput) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRefs(in); err != nil {
		return core.Transaction{}, err
	}
	now := m.now().UTC()
	tx := core.Transaction{ID: m.allocID("transaction"), CreatedAt: now}
	applyInput(&tx, in, now)
	m.transactions[tx.ID] = tx
	return m.attach(tx), nil
}

func (m *MemoryStore) UpdateTransaction(_ context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return core.Transaction{}, &core.NotFoundError{Entity: "transaction", ID: id}
	}
	if err := m.checkRefs(in); err != nil {
		return core.Transaction{}, err
	}
	applyInput(&tx, in, m.now().UTC())
	m.transactions[id] = tx
	return m.attach(tx), nil
}

func (m *MemoryStore) DeleteTransaction(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[id]; !ok {
		return &core.NotFoundError{Entity: "transaction", ID: id}
	}
	delete(m.transactions, id)
	return nil
}

// Aggregates delegate to the ledger engine over the filtered rows.

func (m *MemoryStore) SumByType(ctx context.Context, f core.TransactionFilter, t core.TransactionType) (decimal.Decimal, error) {
	txs, err := m.ListTransactions(ctx, f.WithType(t), nil)
	if err != nil {
		return decimal.Zero, err
	}
	totals := ledger.Sum(txs)
	if t == core.Debit {
		return totals.Debits, nil
	}
	return totals.Credits, nil
}

func (m *MemoryStore) GroupByDate(ctx context.Context, f core.TransactionFilter) ([]ledger.DailyPoint, error) {
	txs, err := m.ListTransactions(ctx, f, nil)
	if err != nil {
		return nil, err
	}
	return ledger.DailySeries(txs), nil
}

func (m *MemoryStore) GroupByAccount(ctx context.Context, f core.TransactionFilter) ([]ledger.AccountGroup, error) {
	txs, err := m.ListTransactions(ctx, f, nil)
	if err != nil {
		return nil, err
	}
	return ledger.GroupByAccount(txs), nil
}

// checkRefs mirrors the foreign keys of the SQL schema.
func (m *MemoryStore) checkRefs(in core.TransactionInput) error {
	if _, ok := m.accounts[in.AccountID]; !ok {
		return &core.StoreError{Op: "check references", Err: &core.NotFoundError{Entity: "account", ID: in.AccountID}}
	}
	if _, ok := m.locations[in.LocationID]; !ok {
		return &core.StoreError{Op: "check references", Err: &core.NotFoundError{Entity: "location", ID: in.LocationID}}
	}
	return nil
}

func applyInput(tx *core.Transaction, in core.TransactionInput, now time.Time) {
	tx.TransactionNo = in.TransactionNo
	tx.Date = in.Date
	tx.Amount = in.Amount
	tx.Type = in.Type
	tx.Description = in.Description
	tx.AccountID = in.AccountID
	tx.LocationID = in.LocationID
	tx.UpdatedAt = now
}

func (m *MemoryStore) attach(tx core.Transaction) core.Transaction {
	if a, ok := m.accounts[tx.AccountID]; ok {
		tx.Account = &a
	}
	if l, ok := m.locations[tx.LocationID]; ok {
		tx.Location = &l
	}
	return tx
}

// filter returns matching rows sorted by date then id, newest first.
func (m *MemoryStore) filter(f core.TransactionFilter) []core.Transaction {
	out := make([]core.Transaction, 0)
	if f.EmptyRange() {
		return out
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for _, tx := range m.transactions {
		tx = m.attach(tx)
		if !matches(f, search, tx) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func matches(f core.TransactionFilter, search string, tx core.Transaction) bool {
	if f.LocationID > 0 && tx.LocationID != f.LocationID {
		return false
	}
	if f.AccountID > 0 && tx.AccountID != f.AccountID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.StartDate != nil && tx.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && tx.Date.After(*f.EndDate) {
		return false
	}
	if f.MinAmount != nil && tx.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if search != "" {
		accountName := ""
		if tx.Account != nil {
			accountName = tx.Account.Name
		}
		if !strings.Contains(strings.ToLower(tx.TransactionNo), search) &&
			!strings.Contains(strings.ToLower(tx.Description), search) &&
			!strings.Contains(strings.ToLower(accountName), search) {
			return false
		}
	}
	return true
}
