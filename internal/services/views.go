package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"
	"bookkeeper/internal/log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// dashboardDays is the width of the dashboard chart window, today included.
const dashboardDays = 7

// AccountDetail is an account with its full history.
type AccountDetail struct {
	core.Account
	Transactions    []core.Transaction    `json:"transactions"`
	Totals          ledger.Totals         `json:"totals"`
	LocationSummary []ledger.GroupSummary `json:"locationSummary"`
}

// AccountDetail loads an account and every transaction that references it.
func (s *LedgerService) AccountDetail(ctx context.Context, id int64) (AccountDetail, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return AccountDetail{}, err
	}
	txs, err := s.store.ListTransactions(ctx, core.TransactionFilter{AccountID: id}, nil)
	if err != nil {
		return AccountDetail{}, err
	}
	return AccountDetail{
		Account:         acc,
		Transactions:    nonNil(txs),
		Totals:          ledger.Sum(txs),
		LocationSummary: ledger.SummarizeBy(txs, ledger.ByLocationName),
	}, nil
}

// LocationSummary is the balance of one location over an optional date range.
type LocationSummary struct {
	Location core.Location         `json:"location"`
	Totals   ledger.Totals         `json:"totals"`
	Daily    []ledger.DailyPoint   `json:"daily"`
	Accounts []ledger.AccountGroup `json:"accounts"`
}

// LocationSummary aggregates one location. start and end may be nil.
func (s *LedgerService) LocationSummary(ctx context.Context, id int64, start, end *core.Date) (LocationSummary, error) {
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return LocationSummary{}, err
	}
	f := core.TransactionFilter{LocationID: id, StartDate: start, EndDate: end}
	out := LocationSummary{
		Location: loc,
		Daily:    []ledger.DailyPoint{},
		Accounts: []ledger.AccountGroup{},
	}
	if f.EmptyRange() {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		daily, err := s.store.GroupByDate(gctx, f)
		out.Daily = nonNil(daily)
		return err
	})
	g.Go(func() error {
		accounts, err := s.store.GroupByAccount(gctx, f)
		out.Accounts = nonNil(accounts)
		return err
	})
	if err := g.Wait(); err != nil {
		return LocationSummary{}, s.logFailure(ctx, "Failed to summarize location", err, log.OpAggregate, "location", id)
	}
	for _, p := range out.Daily {
		out.Totals.Credits = out.Totals.Credits.Add(p.Credits)
		out.Totals.Debits = out.Totals.Debits.Add(p.Debits)
		out.Totals.Count += p.Count
	}
	return out, nil
}

// Metrics are today's headline figures.
type Metrics struct {
	TotalCredits     decimal.Decimal
	TotalDebits      decimal.Decimal
	TransactionCount int64
}

func (m Metrics) NetBalance() decimal.Decimal {
	return m.TotalCredits.Sub(m.TotalDebits)
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TotalCredits     string `json:"totalCredits"`
		TotalDebits      string `json:"totalDebits"`
		NetBalance       string `json:"netBalance"`
		TransactionCount int64  `json:"transactionCount"`
	}{
		TotalCredits:     core.FormatAmount(m.TotalCredits),
		TotalDebits:      core.FormatAmount(m.TotalDebits),
		NetBalance:       core.FormatAmount(m.NetBalance()),
		TransactionCount: m.TransactionCount,
	})
}

type Dashboard struct {
	Metrics     Metrics               `json:"metrics"`
	ChartData   []ledger.DailyPoint   `json:"chartData"`
	AccountData []ledger.AccountGroup `json:"accountData"`
}

// Dashboard builds today's metrics and the trailing seven-day breakdown,
// optionally restricted to one location (0 means every location).
//
// A failing metric query is logged and reported as zero, and such a
// dashboard is not cached. The seven-day listing is required.
func (s *LedgerService) Dashboard(ctx context.Context, locationID int64) (Dashboard, error) {
	now := s.now().In(s.loc)
	key := fmt.Sprintf("%d@%s", locationID, now.Format(core.DateLayout))
	if s.dashboards != nil {
		if d, ok := s.dashboards.Get(key); ok {
			return d, nil
		}
	}
	today := ledger.DayWindow(now)
	todayFilter := core.TransactionFilter{LocationID: locationID}.WithDateRange(today, today)
	logger := log.FromContext(ctx).WithComponent(log.ComponentDashboard)

	// Each metric falls back to zero on its own; none of them fails the dashboard.
	var m Metrics
	var degraded atomic.Bool
	var wg sync.WaitGroup
	metric := func(name string, load func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := load(); err != nil {
				logger.WarnContext(ctx, "Dashboard metric unavailable", "metric", name, log.FieldError, err)
				degraded.Store(true)
			}
		}()
	}
	metric("total_credits", func() error {
		v, err := s.store.SumByType(ctx, todayFilter, core.Credit)
		if err == nil {
			m.TotalCredits = v
		}
		return err
	})
	metric("total_debits", func() error {
		v, err := s.store.SumByType(ctx, todayFilter, core.Debit)
		if err == nil {
			m.TotalDebits = v
		}
		return err
	})
	metric("transaction_count", func() error {
		v, err := s.store.CountTransactions(ctx, todayFilter)
		if err == nil {
			m.TransactionCount = v
		}
		return err
	})
	wg.Wait()

	start, end := ledger.LastNDays(now, dashboardDays)
	week, err := s.store.ListTransactions(ctx, core.TransactionFilter{LocationID: locationID}.WithDateRange(start, end), nil)
	if err != nil {
		return Dashboard{}, s.logFailure(ctx, "Failed to load dashboard window", err, log.OpAggregate, "location", locationID)
	}

	d := Dashboard{
		Metrics:     m,
		ChartData:   ledger.DailySeries(week),
		AccountData: ledger.GroupByAccount(week),
	}
	if s.dashboards != nil && !degraded.Load() {
		s.dashboards.Set(key, d)
	}
	return d, nil
}

type Report struct {
	Transactions    []core.Transaction    `json:"transactions"`
	DailySummary    []ledger.DailyPoint   `json:"dailySummary"`
	AccountSummary  []ledger.GroupSummary `json:"accountSummary"`
	LocationSummary []ledger.GroupSummary `json:"locationSummary"`
	Totals          ledger.Totals         `json:"totals"`
}

// Report lists every transaction matching f with its summaries.
func (s *LedgerService) Report(ctx context.Context, f core.TransactionFilter) (Report, error) {
	txs, err := s.reportRows(ctx, f)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Transactions:    txs,
		DailySummary:    ledger.DailySeries(txs),
		AccountSummary:  ledger.SummarizeBy(txs, ledger.ByAccountName),
		LocationSummary: ledger.SummarizeBy(txs, ledger.ByLocationName),
		Totals:          ledger.Sum(txs),
	}, nil
}

// ReportCSV writes the transactions matching f as CSV.
func (s *LedgerService) ReportCSV(ctx context.Context, w io.Writer, f core.TransactionFilter) error {
	txs, err := s.reportRows(ctx, f)
	if err != nil {
		return err
	}
	return ledger.WriteCSV(w, txs)
}

func (s *LedgerService) reportRows(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	if f.EmptyRange() {
		return []core.Transaction{}, nil
	}
	started := time.Now()
	txs, err := s.store.ListTransactions(ctx, f, nil)
	if err != nil {
		return nil, s.logFailure(ctx, "Failed to load report", err, log.OpExport, "transaction", 0)
	}
	log.FromContext(ctx).DebugContext(ctx, "Report rows loaded",
		log.FieldComponent, log.ComponentReports,
		"rows", len(txs),
		log.FieldDuration, time.Since(started).Milliseconds())
	return nonNil(txs), nil
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type TransactionPage struct {
	Transactions []core.Transaction `json:"transactions"`
	Pagination   Pagination         `json:"pagination"`
}

// ListTransactions returns one page of matches plus the total match count.
// A page number below 1 becomes 1; a size outside [1, max] becomes the default
// or the maximum.
func (s *LedgerService) ListTransactions(ctx context.Context, f core.TransactionFilter, page core.Page) (TransactionPage, error) {
	page = s.clampPage(page)
	out := TransactionPage{
		Transactions: []core.Transaction{},
		Pagination:   Pagination{Page: page.Number, Limit: page.Size},
	}
	if f.EmptyRange() {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.store.ListTransactions(gctx, f, &page)
		out.Transactions = nonNil(txs)
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountTransactions(gctx, f)
		out.Pagination.Total = n
		return err
	})
	if err := g.Wait(); err != nil {
		return TransactionPage{}, s.logFailure(ctx, "Failed to list transactions", err, log.OpList, "transaction", 0)
	}
	size := int64(page.Size)
	out.Pagination.Pages = (out.Pagination.Total + size - 1) / size
	return out, nil
}

func (s *LedgerService) clampPage(p core.Page) core.Page {
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size < 1:
		p.Size = s.defaultPageSize
	case p.Size > s.maxPageSize:
		p.Size = s.maxPageSize
	}
	return p
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
