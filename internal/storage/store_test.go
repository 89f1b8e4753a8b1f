package storage

import (
	"context"
	"errors"
	"math"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookkeeper/internal/core"

	"github.com/shopspring/decimal"
)

// backends runs fn against every Store implementation that needs no
// external service.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		fn(t, repo)
	})
}

type fixture struct {
	main, branch core.Location
	acme, beta   core.Account
}

func seed(t *testing.T, s Store) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	if f.main, err = s.CreateLocation(ctx, core.LocationInput{Name: "Main Office", Address: "123 Business St"}); err != nil {
		t.Fatal(err)
	}
	if f.branch, err = s.CreateLocation(ctx, core.LocationInput{Name: "Branch A"}); err != nil {
		t.Fatal(err)
	}
	if f.acme, err = s.CreateAccount(ctx, core.AccountInput{Name: "Acme", PhoneNumber: "+1-555-0101"}); err != nil {
		t.Fatal(err)
	}
	if f.beta, err = s.CreateAccount(ctx, core.AccountInput{Name: "Beta LLC", PhoneNumber: "+1-555-0102"}); err != nil {
		t.Fatal(err)
	}
	return f
}

func addTx(t *testing.T, s Store, no, date, amount string, typ core.TransactionType, desc string, account, location int64) core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := s.CreateTransaction(context.Background(), core.TransactionInput{
		TransactionNo: no,
		Date:          d,
		Amount:        decimal.RequireFromString(amount),
		Type:          typ,
		Description:   desc,
		AccountID:     account,
		LocationID:    location,
	})
	if err != nil {
		t.Fatalf("create transaction %s: %v", no, err)
	}
	return tx
}

func TestLocationCRUD(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := seed(t, s)

		list, err := s.ListLocations(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].Name != "Branch A" || list[1].Name != "Main Office" {
			t.Fatalf("expected locations sorted by name, got %+v", list)
		}

		updated, err := s.UpdateLocation(ctx, f.main.ID, core.LocationInput{Name: "HQ", Address: "1 Main"})
		if err != nil {
			t.Fatal(err)
		}
		if updated.Name != "HQ" || updated.ID != f.main.ID {
			t.Fatalf("unexpected update result %+v", updated)
		}

		got, err := s.GetLocation(ctx, f.main.ID)
		if err != nil || got.Address != "1 Main" {
			t.Fatalf("unexpected get result %+v, %v", got, err)
		}

		if err := s.DeleteLocation(ctx, f.branch.ID); err != nil {
			t.Fatalf("delete unreferenced location: %v", err)
		}
		if _, err := s.GetLocation(ctx, f.branch.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
	})
}

func TestMissingRowsAreNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		checks := map[string]error{}
		_, checks["get location"] = s.GetLocation(ctx, 999)
		_, checks["update location"] = s.UpdateLocation(ctx, 999, core.LocationInput{Name: "x"})
		checks["delete location"] = s.DeleteLocation(ctx, 999)
		_, checks["get account"] = s.GetAccount(ctx, 999)
		_, checks["update account"] = s.UpdateAccount(ctx, 999, core.AccountInput{Name: "x", PhoneNumber: "1"})
		checks["delete account"] = s.DeleteAccount(ctx, 999)
		_, checks["get transaction"] = s.GetTransaction(ctx, 999)
		checks["delete transaction"] = s.DeleteTransaction(ctx, 999)

		for op, err := range checks {
			var nf *core.NotFoundError
			if !errors.As(err, &nf) {
				t.Errorf("%s: expected NotFoundError, got %v", op, err)
			}
		}
	})
}

func TestDeleteIsRestrictedByReferences(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := seed(t, s)
		for i, no := range []string{"T1", "T2", "T3"} {
			addTx(t, s, no, "2024-01-0"+string(rune('1'+i)), "10", core.Credit, "", f.acme.ID, f.main.ID)
		}

		err := s.DeleteAccount(ctx, f.acme.ID)
		var conflict *core.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if conflict.References != 3 {
			t.Fatalf("expected 3 references, got %d", conflict.References)
		}
		if !errors.Is(s.DeleteLocation(ctx, f.main.ID), core.ErrConflict) {
			t.Fatalf("expected location delete to conflict")
		}

		n, err := s.CountTransactions(ctx, core.TransactionFilter{AccountID: f.acme.ID})
		if err != nil || n != 3 {
			t.Fatalf("transactions should survive a refused delete, got %d, %v", n, err)
		}
	})
}

func TestListAccountsCountsTransactions(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		f := seed(t, s)
		addTx(t, s, "T1", "2024-01-01", "10", core.Credit, "", f.beta.ID, f.main.ID)
		addTx(t, s, "T2", "2024-01-02", "10", core.Debit, "", f.beta.ID, f.branch.ID)

		accounts, err := s.ListAccounts(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(accounts) != 2 {
			t.Fatalf("expected 2 accounts, got %d", len(accounts))
		}
		if accounts[0].Name != "Acme" || accounts[0].TransactionCount != 0 {
			t.Fatalf("unexpected first account %+v", accounts[0])
		}
		if accounts[1].Name != "Beta LLC" || accounts[1].TransactionCount != 2 {
			t.Fatalf("unexpected second account %+v", accounts[1])
		}
	})
}

func TestTransactionRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := seed(t, s)
		created := addTx(t, s, "TXN000001", "2024-02-29", "1234.56", core.Debit, "Rent", f.acme.ID, f.branch.ID)

		got, err := s.GetTransaction(ctx, created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Date.String() != "2024-02-29" || got.Amount.StringFixed(2) != "1234.56" || got.Type != core.Debit {
			t.Fatalf("unexpected transaction %+v", got)
		}
		if got.AccountName() != "Acme" || got.LocationName() != "Branch A" {
			t.Fatalf("expected associations attached, got %s / %s", got.AccountName(), got.LocationName())
		}

		in := core.TransactionInput{
			TransactionNo: "TXN000001",
			Date:          core.NewDate(2024, 3, 1),
			Amount:        decimal.RequireFromString("0.01"),
			Type:          core.Credit,
			AccountID:     f.beta.ID,
			LocationID:    f.main.ID,
		}
		updated, err := s.UpdateTransaction(ctx, created.ID, in)
		if err != nil {
			t.Fatal(err)
		}
		if updated.AccountName() != "Beta LLC" || updated.Amount.StringFixed(2) != "0.01" || updated.Date.String() != "2024-03-01" {
			t.Fatalf("unexpected updated transaction %+v", updated)
		}

		if err := s.DeleteTransaction(ctx, created.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetTransaction(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
}

func TestListTransactionsFilters(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := seed(t, s)
		addTx(t, s, "INV-100", "2024-01-01", "100", core.Credit, "Payment received", f.acme.ID, f.main.ID)
		addTx(t, s, "INV-101", "2024-01-01", "40", core.Debit, "Office supplies", f.acme.ID, f.branch.ID)
		addTx(t, s, "INV-102", "2024-01-02", "25", core.Credit, "50% deposit", f.beta.ID, f.branch.ID)
		addTx(t, s, "INV-103", "2024-01-05", "7.50", core.Debit, "", f.beta.ID, f.main.ID)

		start, end := core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 2)
		min, max := decimal.NewFromInt(25), decimal.NewFromInt(100)
		cases := []struct {
			name   string
			filter core.TransactionFilter
			want   []string
		}{
			{"all newest first", core.TransactionFilter{}, []string{"INV-103", "INV-102", "INV-101", "INV-100"}},
			{"location", core.TransactionFilter{LocationID: f.branch.ID}, []string{"INV-102", "INV-101"}},
			{"account", core.TransactionFilter{AccountID: f.beta.ID}, []string{"INV-103", "INV-102"}},
			{"search description", core.TransactionFilter{Search: "SUPPLIES"}, []string{"INV-101"}},
			{"search account name", core.TransactionFilter{Search: "beta"}, []string{"INV-103", "INV-102"}},
			{"search transaction no", core.TransactionFilter{Search: "inv-100"}, []string{"INV-100"}},
			{"search literal percent", core.TransactionFilter{Search: "50%"}, []string{"INV-102"}},
			{"date range", core.TransactionFilter{StartDate: &start, EndDate: &end}, []string{"INV-102", "INV-101", "INV-100"}},
			{"open ended start", core.TransactionFilter{StartDate: &end}, []string{"INV-103", "INV-102"}},
			{"amount range", core.TransactionFilter{MinAmount: &min, MaxAmount: &max}, []string{"INV-102", "INV-101", "INV-100"}},
			{"inverted range", core.TransactionFilter{StartDate: &end, EndDate: &start}, nil},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				txs, err := s.ListTransactions(ctx, tc.filter, nil)
				if err != nil {
					t.Fatal(err)
				}
				if len(txs) != len(tc.want) {
					t.Fatalf("got %d rows, want %d", len(txs), len(tc.want))
				}
				for i, no := range tc.want {
					if txs[i].TransactionNo != no {
						t.Fatalf("row %d = %s, want %s", i, txs[i].TransactionNo, no)
					}
				}
				n, err := s.CountTransactions(ctx, tc.filter)
				if err != nil || n != int64(len(tc.want)) {
					t.Fatalf("count = %d, %v; want %d", n, err, len(tc.want))
				}
			})
		}
	})
}

func TestSearchFoldsNonASCIICase(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := seed(t, s)
		emile, err := s.CreateAccount(ctx, core.AccountInput{Name: "Émile Durand", PhoneNumber: "+33-1-0101"})
		if err != nil {
			t.Fatal(err)
		}
		addTx(t, s, "FR-1", "2024-01-01", "10", core.Credit, "Café ÉTÉ", emile.ID, f.main.ID)
		addTx(t, s, "US-1", "2024-01-01", "10", core.Credit, "Coffee", f.acme.ID, f.main.ID)

		for _, search := range []string{"émile", "ÉMILE", "café été"} {
			txs, err := s.ListTransactions(ctx, core.TransactionFilter{Search: search}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(txs) != 1 || txs[0].TransactionNo != "FR-1" {
				t.Errorf("search %q matched %d rows", search, len(txs))
			}
		}
	})
}

func TestListTransactionsPaginates(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := seed(t, s)
		for i := 1; i <= 5; i++ {
			addTx(t, s, "T"+string(rune('0'+i)), "2024-01-0"+string(rune('0'+i)), "1", core.Credit, "", f.acme.ID, f.main.ID)
		}

		page, err := s.ListTransactions(ctx, core.TransactionFilter{}, &core.Page{Number: 2, Size: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 2 || page[0].TransactionNo != "T3" || page[1].TransactionNo != "T2" {
			t.Fatalf("unexpected page %+v", page)
		}

		past, err := s.ListTransactions(ctx, core.TransactionFilter{}, &core.Page{Number: 9, Size: 2})
		if err != nil || len(past) != 0 {
			t.Fatalf("expected empty page past the end, got %d, %v", len(past), err)
		}

		huge, err := s.ListTransactions(ctx, core.TransactionFilter{}, &core.Page{Number: math.MaxInt, Size: 100})
		if err != nil || len(huge) != 0 {
			t.Fatalf("expected empty page for an enormous page number, got %d, %v", len(huge), err)
		}
	})
}

func TestAggregates(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		f := seed(t, s)
		addTx(t, s, "T1", "2024-01-01", "100", core.Credit, "", f.acme.ID, f.main.ID)
		addTx(t, s, "T2", "2024-01-01", "40", core.Debit, "", f.acme.ID, f.main.ID)
		addTx(t, s, "T3", "2024-01-02", "25", core.Credit, "", f.beta.ID, f.main.ID)
		addTx(t, s, "T4", "2024-01-02", "99", core.Credit, "", f.beta.ID, f.branch.ID)

		filter := core.TransactionFilter{LocationID: f.main.ID}
		credits, err := s.SumByType(ctx, filter, core.Credit)
		if err != nil || !credits.Equal(decimal.NewFromInt(125)) {
			t.Fatalf("credits = %s, %v; want 125", credits, err)
		}
		debits, err := s.SumByType(ctx, filter, core.Debit)
		if err != nil || !debits.Equal(decimal.NewFromInt(40)) {
			t.Fatalf("debits = %s, %v; want 40", debits, err)
		}

		days, err := s.GroupByDate(ctx, filter)
		if err != nil {
			t.Fatal(err)
		}
		if len(days) != 2 || days[0].Date.String() != "2024-01-01" || !days[0].Amount().Equal(decimal.NewFromInt(60)) {
			t.Fatalf("unexpected daily groups %+v", days)
		}
		if days[1].Count != 1 || !days[1].Amount().Equal(decimal.NewFromInt(25)) {
			t.Fatalf("unexpected second day %+v", days[1])
		}

		accounts, err := s.GroupByAccount(ctx, filter)
		if err != nil {
			t.Fatal(err)
		}
		if len(accounts) != 2 || accounts[0].AccountName != "Acme" || !accounts[0].Net().Equal(decimal.NewFromInt(60)) {
			t.Fatalf("unexpected account groups %+v", accounts)
		}
		if accounts[1].AccountID != f.beta.ID || accounts[1].Count != 1 {
			t.Fatalf("unexpected second account group %+v", accounts[1])
		}

		empty, err := s.SumByType(ctx, core.TransactionFilter{LocationID: 999}, core.Credit)
		if err != nil || !empty.IsZero() {
			t.Fatalf("expected zero sum for no rows, got %s, %v", empty, err)
		}
	})
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b IN (?, ?)`
	if got := DialectSQLite.Rebind(q); got != q {
		t.Fatalf("sqlite should keep placeholders, got %s", got)
	}
	if got := DialectPostgres.Rebind(q); got != `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)` {
		t.Fatalf("unexpected postgres rebind %s", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path     string
		wantFile string
		want     []string
		notWant  []string
	}{
		{
			path:     "./data/ledger.db",
			wantFile: "./data/ledger.db",
			want:     []string{"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(WAL)"},
		},
		{
			path:     "./data/ledger.db?_pragma=journal_mode(DELETE)&cache=shared",
			wantFile: "./data/ledger.db",
			want:     []string{"foreign_keys(1)", "busy_timeout(5000)", "journal_mode(DELETE)"},
			notWant:  []string{"journal_mode(WAL)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			file, dsn, err := sqliteDSN(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			if file != tt.wantFile {
				t.Errorf("file = %q, want %q", file, tt.wantFile)
			}
			base, query, ok := strings.Cut(dsn, "?")
			if !ok || base != tt.wantFile || strings.Count(dsn, "?") != 1 {
				t.Fatalf("malformed dsn %q", dsn)
			}
			params, err := url.ParseQuery(query)
			if err != nil {
				t.Fatal(err)
			}
			pragmas := strings.Join(params["_pragma"], " ")
			for _, w := range tt.want {
				if !strings.Contains(pragmas, w) {
					t.Errorf("missing pragma %s in %q", w, pragmas)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(pragmas, w) {
					t.Errorf("unexpected pragma %s in %q", w, pragmas)
				}
			}
		})
	}
}

func TestSQLiteRepositoryAcceptsPathParameters(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=synchronous(NORMAL)")
	if err != nil {
		t.Fatalf("open sqlite with parameters: %v", err)
	}
	defer repo.Close()
	if _, err := repo.CreateLocation(context.Background(), core.LocationInput{Name: "Main Office"}); err != nil {
		t.Fatal(err)
	}
}

func TestBuildWhereEscapesSearch(t *testing.T) {
	where, args := buildWhere(core.TransactionFilter{Search: "10%_off"}, DialectSQLite)
	if where == "" || len(args) != 3 {
		t.Fatalf("unexpected where %q args %v", where, args)
	}
	if !strings.Contains(where, "ledger_fold(a.name) LIKE ?") {
		t.Fatalf("sqlite search should fold with ledger_fold: %s", where)
	}
	if pg, _ := buildWhere(core.TransactionFilter{Search: "x"}, DialectPostgres); !strings.Contains(pg, "LOWER(a.name) LIKE ?") {
		t.Fatalf("postgres search should use LOWER: %s", pg)
	}
	if args[0] != `%10\%\_off%` {
		t.Fatalf("unexpected pattern %v", args[0])
	}
}
