// Package ledger aggregates transactions in memory: totals, per-day series,
// per-name summaries and CSV export. Nothing here touches storage.
package ledger

import (
	"encoding/json"
	"sort"
	"time"

	"bookkeeper/internal/core"

	"github.com/shopspring/decimal"
)

// Totals is the credit/debit balance of a set of transactions.
type Totals struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
	Count   int64
}

func (t Totals) Net() decimal.Decimal {
	return t.Credits.Sub(t.Debits)
}

// Add folds a single transaction into t.
func (t *Totals) Add(tx core.Transaction) {
	switch tx.Type {
	case core.Credit:
		t.Credits = t.Credits.Add(tx.Amount)
	case core.Debit:
		t.Debits = t.Debits.Add(tx.Amount)
	}
	t.Count++
}

func (t Totals) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Credits string `json:"credits"`
		Debits  string `json:"debits"`
		Net     string `json:"net"`
		Count   int64  `json:"count"`
	}{
		Credits: core.FormatAmount(t.Credits),
		Debits:  core.FormatAmount(t.Debits),
		Net:     core.FormatAmount(t.Net()),
		Count:   t.Count,
	})
}

// DailyPoint is one calendar day of a series. Amount is the net movement of
// the day.
type DailyPoint struct {
	Date core.Date
	Totals
}

func (p DailyPoint) Amount() decimal.Decimal { return p.Net() }

func (p DailyPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date    string `json:"date"`
		Amount  string `json:"amount"`
		Credits string `json:"credits"`
		Debits  string `json:"debits"`
		Count   int64  `json:"count"`
	}{
		Date:    p.Date.String(),
		Amount:  core.FormatAmount(p.Amount()),
		Credits: core.FormatAmount(p.Credits),
		Debits:  core.FormatAmount(p.Debits),
		Count:   p.Count,
	})
}

// GroupSummary is the balance of every transaction sharing a display name.
type GroupSummary struct {
	Name string
	Totals
}

func (g GroupSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name    string `json:"name"`
		Credits string `json:"credits"`
		Debits  string `json:"debits"`
		Net     string `json:"net"`
		Count   int64  `json:"count"`
	}{
		Name:    g.Name,
		Credits: core.FormatAmount(g.Credits),
		Debits:  core.FormatAmount(g.Debits),
		Net:     core.FormatAmount(g.Net()),
		Count:   g.Count,
	})
}

// KeyFunc selects the grouping name of a transaction.
type KeyFunc func(core.Transaction) string

// ByAccountName groups by the attached account name. Distinct accounts that
// share a name are merged.
func ByAccountName(tx core.Transaction) string { return tx.AccountName() }

// ByLocationName groups by the attached location name.
func ByLocationName(tx core.Transaction) string { return tx.LocationName() }

// Sum totals every transaction in txs.
func Sum(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		t.Add(tx)
	}
	return t
}

// DailySeries groups txs by calendar date in ascending order. Days without
// transactions are absent.
func DailySeries(txs []core.Transaction) []DailyPoint {
	byDay := make(map[string]*DailyPoint)
	for _, tx := range txs {
		key := tx.Date.String()
		p, ok := byDay[key]
		if !ok {
			p = &DailyPoint{Date: tx.Date}
			byDay[key] = p
		}
		p.Add(tx)
	}

	out := make([]DailyPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// SummarizeBy groups txs by key, sorted by name ascending.
func SummarizeBy(txs []core.Transaction, key KeyFunc) []GroupSummary {
	groups := make(map[string]*GroupSummary)
	for _, tx := range txs {
		name := key(tx)
		g, ok := groups[name]
		if !ok {
			g = &GroupSummary{Name: name}
			groups[name] = g
		}
		g.Add(tx)
	}

	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DayWindow returns the calendar date of now in now's location.
func DayWindow(now time.Time) core.Date {
	return core.DateOf(now)
}

// LastNDays returns the inclusive range ending today that spans n calendar days.
func LastNDays(now time.Time, n int) (start, end core.Date) {
	if n < 1 {
		n = 1
	}
	end = core.DateOf(now)
	return end.AddDays(-(n - 1)), end
}

// AccountGroup is the balance of one account, keyed by id.
type AccountGroup struct {
	AccountID   int64
	AccountName string
	Totals
}

func (g AccountGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AccountID   int64  `json:"accountId"`
		AccountName string `json:"accountName"`
		Credits     string `json:"credits"`
		Debits      string `json:"debits"`
		Net         string `json:"net"`
		Count       int64  `json:"count"`
	}{
		AccountID:   g.AccountID,
		AccountName: g.AccountName,
		Credits:     core.FormatAmount(g.Credits),
		Debits:      core.FormatAmount(g.Debits),
		Net:         core.FormatAmount(g.Net()),
		Count:       g.Count,
	})
}

// GroupByAccount groups txs by account id, sorted by name then id.
func GroupByAccount(txs []core.Transaction) []AccountGroup {
	groups := make(map[int64]*AccountGroup)
	for _, tx := range txs {
		g, ok := groups[tx.AccountID]
		if !ok {
			g = &AccountGroup{AccountID: tx.AccountID, AccountName: tx.AccountName()}
			groups[tx.AccountID] = g
		}
		g.Add(tx)
	}

	out := make([]AccountGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountName != out[j].AccountName {
			return out[i].AccountName < out[j].AccountName
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out
}
