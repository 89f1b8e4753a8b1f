package cli

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"bookkeeper/internal/core"
	"bookkeeper/internal/services"
)

var seedLocations = []core.Payload{
	{"name": "Main Office", "address": "123 Business St, City Center, State 12345"},
	{"name": "Branch A", "address": "456 Commerce Ave, Downtown, State 12346"},
	{"name": "Branch B", "address": "789 Market Rd, Uptown, State 12347"},
}

var seedAccounts = []core.Payload{
	{"name": "John Smith Enterprises", "phoneNumber": "+1-555-0101"},
	{"name": "Sarah Johnson LLC", "phoneNumber": "+1-555-0102"},
	{"name": "Tech Solutions Inc", "phoneNumber": "+1-555-0103"},
	{"name": "Global Trading Co", "phoneNumber": "+1-555-0104"},
	{"name": "Creative Studios", "phoneNumber": "+1-555-0105"},
	{"name": "Retail Partners", "phoneNumber": "+1-555-0106"},
}

var seedDescriptions = []string{
	"Payment received",
	"Service fee",
	"Product purchase",
	"Consultation fee",
	"Monthly subscription",
	"Equipment lease",
	"Software license",
	"Training session",
	"Marketing services",
	"Office supplies",
}

// SeedOptions control the demo data set.
type SeedOptions struct {
	Transactions int
	Days         int
	// Reset deletes every existing row first.
	Reset bool
	Now   time.Time
	Rand  *rand.Rand
}

// SeedResult counts the rows created.
type SeedResult struct {
	Locations    int
	Accounts     int
	Transactions int
}

// Seed fills the ledger with demo locations, accounts and random transactions
// spread over the last opts.Days days.
func Seed(ctx context.Context, svc *services.LedgerService, opts SeedOptions) (SeedResult, error) {
	if opts.Transactions <= 0 {
		opts.Transactions = 120
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(opts.Now.UnixNano()))
	}
	rng := opts.Rand

	if opts.Reset {
		if err := reset(ctx, svc); err != nil {
			return SeedResult{}, fmt.Errorf("reset ledger: %w", err)
		}
	}

	var res SeedResult
	locations := make([]core.Location, 0, len(seedLocations))
	for _, p := range seedLocations {
		loc, err := svc.CreateLocation(ctx, p)
		if err != nil {
			return res, fmt.Errorf("create location %v: %w", p["name"], err)
		}
		locations = append(locations, loc)
	}
	res.Locations = len(locations)

	accounts := make([]core.Account, 0, len(seedAccounts))
	for _, p := range seedAccounts {
		acc, err := svc.CreateAccount(ctx, p)
		if err != nil {
			return res, fmt.Errorf("create account %v: %w", p["name"], err)
		}
		accounts = append(accounts, acc)
	}
	res.Accounts = len(accounts)

	now := opts.Now.In(svc.Location())
	for i := 0; i < opts.Transactions; i++ {
		txType := core.Debit
		if rng.Float64() > 0.6 {
			txType = core.Credit
		}
		p := core.Payload{
			"transactionNo": fmt.Sprintf("TXN%06d", i+1),
			"date":          now.AddDate(0, 0, -rng.Intn(opts.Days)).Format(core.DateLayout),
			"amount":        rng.Intn(4990) + 10,
			"type":          string(txType),
			"accountId":     accounts[rng.Intn(len(accounts))].ID,
			"locationId":    locations[rng.Intn(len(locations))].ID,
		}
		if rng.Float64() > 0.3 {
			p["description"] = seedDescriptions[rng.Intn(len(seedDescriptions))]
		}
		if _, err := svc.CreateTransaction(ctx, p); err != nil {
			return res, fmt.Errorf("create transaction %d: %w", i+1, err)
		}
		res.Transactions++
	}
	return res, nil
}

// reset removes transactions first so the restrict policy lets accounts and
// locations go.
func reset(ctx context.Context, svc *services.LedgerService) error {
	page, err := svc.Report(ctx, core.TransactionFilter{})
	if err != nil {
		return err
	}
	for _, tx := range page.Transactions {
		if err := svc.DeleteTransaction(ctx, tx.ID); err != nil {
			return err
		}
	}
	accounts, err := svc.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if err := svc.DeleteAccount(ctx, acc.ID); err != nil {
			return err
		}
	}
	locations, err := svc.ListLocations(ctx)
	if err != nil {
		return err
	}
	for _, loc := range locations {
		if err := svc.DeleteLocation(ctx, loc.ID); err != nil {
			return err
		}
	}
	return nil
}
