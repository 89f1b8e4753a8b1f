// Package services orchestrates the ledger: validation, referential checks,
// storage, aggregation and change events.
package services

import (
	"context"
	"errors"
	"time"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
	"bookkeeper/internal/storage"
)

// EventPublisher sends transaction change events. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev amqp.TransactionEvent) error
}

// Options tune a LedgerService. Zero values pick the defaults.
type Options struct {
	// Location is the server calendar zone used for "today" and date parsing.
	Location        *time.Location
	Now             func() time.Time
	DefaultPageSize int
	MaxPageSize     int
	// DashboardCacheTTL keeps computed dashboards for this long. Any write
	// through the service drops them. Zero disables caching.
	DashboardCacheTTL time.Duration
}

const dashboardCacheSize = 64

type LedgerService struct {
	store      storage.Store
	events     EventPublisher
	logger     *log.Logger
	structured *log.StructuredLogger

	loc             *time.Location
	now             func() time.Time
	defaultPageSize int
	maxPageSize     int

	dashboards *cache.LRUCache[Dashboard]
}

// NewLedgerService wires the service. events may be nil, in which case
// change events are skipped.
func NewLedgerService(store storage.Store, events EventPublisher, logger *log.Logger, opts Options) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = min(20, opts.MaxPageSize)
	}
	logger = logger.WithComponent(log.ComponentLedger)
	var dashboards *cache.LRUCache[Dashboard]
	if opts.DashboardCacheTTL > 0 {
		dashboards = cache.NewLRUCache[Dashboard](dashboardCacheSize, opts.DashboardCacheTTL)
	}
	return &LedgerService{
		dashboards:      dashboards,
		store:           store,
		events:          events,
		logger:          logger,
		structured:      log.NewStructuredLogger(logger),
		loc:             opts.Location,
		now:             opts.Now,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
	}
}

// Location is the calendar zone of the service.
func (s *LedgerService) Location() *time.Location { return s.loc }

// Ready reports whether the store answers.
func (s *LedgerService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Locations

func (s *LedgerService) ListLocations(ctx context.Context) ([]core.Location, error) {
	return s.store.ListLocations(ctx)
}

func (s *LedgerService) GetLocation(ctx context.Context, id int64) (core.Location, error) {
	return s.store.GetLocation(ctx, id)
}

func (s *LedgerService) CreateLocation(ctx context.Context, p core.Payload) (core.Location, error) {
	in, err := core.ValidateLocation(p)
	if err != nil {
		return core.Location{}, err
	}
	loc, err := s.store.CreateLocation(ctx, in)
	if err != nil {
		return core.Location{}, s.logFailure(ctx, "Failed to create location", err, log.OpCreate, "location", 0)
	}
	s.invalidate()
	s.logger.InfoContext(ctx, "Location created", log.FieldEntityID, loc.ID, log.FieldOperation, log.OpCreate)
	return loc, nil
}

func (s *LedgerService) UpdateLocation(ctx context.Context, id int64, p core.Payload) (core.Location, error) {
	in, err := core.ValidateLocation(p)
	if err != nil {
		return core.Location{}, err
	}
	loc, err := s.store.UpdateLocation(ctx, id, in)
	if err != nil {
		return core.Location{}, s.logFailure(ctx, "Failed to update location", err, log.OpUpdate, "location", id)
	}
	s.invalidate()
	return loc, nil
}

// DeleteLocation refuses while transactions reference the location.
func (s *LedgerService) DeleteLocation(ctx context.Context, id int64) error {
	if err := s.store.DeleteLocation(ctx, id); err != nil {
		return s.logFailure(ctx, "Failed to delete location", err, log.OpDelete, "location", id)
	}
	s.invalidate()
	s.logger.InfoContext(ctx, "Location deleted", log.FieldEntityID, id, log.FieldOperation, log.OpDelete)
	return nil
}

// Accounts

func (s *LedgerService) ListAccounts(ctx context.Context) ([]core.AccountWithCount, error) {
	return s.store.ListAccounts(ctx)
}

func (s *LedgerService) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *LedgerService) CreateAccount(ctx context.Context, p core.Payload) (core.Account, error) {
	in, err := core.ValidateAccount(p)
	if err != nil {
		return core.Account{}, err
	}
	acc, err := s.store.CreateAccount(ctx, in)
	if err != nil {
		return core.Account{}, s.logFailure(ctx, "Failed to create account", err, log.OpCreate, "account", 0)
	}
	s.invalidate()
	s.logger.InfoContext(ctx, "Account created", log.FieldEntityID, acc.ID, log.FieldOperation, log.OpCreate)
	return acc, nil
}

func (s *LedgerService) UpdateAccount(ctx context.Context, id int64, p core.Payload) (core.Account, error) {
	in, err := core.ValidateAccount(p)
	if err != nil {
		return core.Account{}, err
	}
	acc, err := s.store.UpdateAccount(ctx, id, in)
	if err != nil {
		return core.Account{}, s.logFailure(ctx, "Failed to update account", err, log.OpUpdate, "account", id)
	}
	s.invalidate()
	return acc, nil
}

// DeleteAccount refuses while transactions reference the account.
func (s *LedgerService) DeleteAccount(ctx context.Context, id int64) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return s.logFailure(ctx, "Failed to delete account", err, log.OpDelete, "account", id)
	}
	s.invalidate()
	s.logger.InfoContext(ctx, "Account deleted", log.FieldEntityID, id, log.FieldOperation, log.OpDelete)
	return nil
}

// Transactions

func (s *LedgerService) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *LedgerService) CreateTransaction(ctx context.Context, p core.Payload) (core.Transaction, error) {
	in, err := s.validateTransaction(ctx, p)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.store.CreateTransaction(ctx, in)
	if err != nil {
		return core.Transaction{}, s.logFailure(ctx, "Failed to create transaction", err, log.OpCreate, "transaction", 0)
	}
	s.invalidate()
	s.logChange(ctx, log.OpCreate, tx)
	s.publish(ctx, amqp.EventTransactionCreated, tx)
	return tx, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, id int64, p core.Payload) (core.Transaction, error) {
	if _, err := s.store.GetTransaction(ctx, id); err != nil {
		return core.Transaction{}, err
	}
	in, err := s.validateTransaction(ctx, p)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.store.UpdateTransaction(ctx, id, in)
	if err != nil {
		return core.Transaction{}, s.logFailure(ctx, "Failed to update transaction", err, log.OpUpdate, "transaction", id)
	}
	s.invalidate()
	s.logChange(ctx, log.OpUpdate, tx)
	s.publish(ctx, amqp.EventTransactionUpdated, tx)
	return tx, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return s.logFailure(ctx, "Failed to delete transaction", err, log.OpDelete, "transaction", id)
	}
	s.invalidate()
	s.logChange(ctx, log.OpDelete, tx)
	s.publish(ctx, amqp.EventTransactionDeleted, tx)
	return nil
}

// validateTransaction checks the payload, then that both referenced rows exist.
func (s *LedgerService) validateTransaction(ctx context.Context, p core.Payload) (core.TransactionInput, error) {
	in, err := core.ValidateTransaction(p, s.loc)
	if err != nil {
		return core.TransactionInput{}, err
	}

	verr := &core.ValidationError{}
	if _, err := s.store.GetAccount(ctx, in.AccountID); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return core.TransactionInput{}, err
		}
		verr.Add("accountId", "account does not exist")
	}
	if _, err := s.store.GetLocation(ctx, in.LocationID); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return core.TransactionInput{}, err
		}
		verr.Add("locationId", "location does not exist")
	}
	if err := verr.OrNil(); err != nil {
		return core.TransactionInput{}, err
	}
	return in, nil
}

// invalidate drops cached dashboards after a write.
func (s *LedgerService) invalidate() {
	if s.dashboards != nil {
		s.dashboards.Clear()
	}
}

// DashboardCacheStats reports cache counters; ok is false when caching is off.
func (s *LedgerService) DashboardCacheStats() (stats cache.Stats, ok bool) {
	if s.dashboards == nil {
		return cache.Stats{}, false
	}
	return s.dashboards.Stats(), true
}

// publish sends a change event. Failures are logged and never reach the caller.
func (s *LedgerService) publish(ctx context.Context, eventType amqp.EventType, tx core.Transaction) {
	if s.events == nil {
		return
	}
	ev := amqp.NewTransactionEvent(eventType, tx)
	if err := s.events.PublishTransactionEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish transaction event",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldOperation, log.OpPublish,
			log.FieldEventID, ev.ID.String(),
			log.FieldEntityID, tx.ID,
			log.FieldError, err)
	}
}

func (s *LedgerService) logChange(ctx context.Context, op string, tx core.Transaction) {
	s.structured.LogTransactionChange(ctx, op, tx.ID, tx.TransactionNo, tx.Type.String(),
		core.FormatAmount(tx.Amount), tx.AccountID, tx.LocationID)
}

// logFailure logs store failures and conflicts with their category and returns err unchanged.
func (s *LedgerService) logFailure(ctx context.Context, msg string, err error, op, entity string, id int64) error {
	fields := log.NewFields().WithEntity(entity, id)
	var conflict *core.ConflictError
	switch {
	case errors.As(err, &conflict):
		s.logger.WarnContext(ctx, msg, fields.WithErrorType(log.ErrorTypeConflict).WithError(err).WithOperation(op).ToSlice()...)
		return err
	case errors.Is(err, core.ErrNotFound):
		return err
	}
	s.structured.LogError(ctx, msg, err, log.ComponentStorage, op, fields.WithErrorType(log.ErrorTypeDatabase))
	return err
}
