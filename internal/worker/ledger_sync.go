// Package worker keeps the spreadsheet mirror of the ledger in step with the
// store, driven by transaction events and a periodic full resync.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
	"bookkeeper/internal/sheets"
)

// TransactionSource is the read side of the store the worker needs.
type TransactionSource interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, f core.TransactionFilter, page *core.Page) ([]core.Transaction, error)
}

// EventConsumer delivers transaction events until ctx ends.
type EventConsumer interface {
	Consume(ctx context.Context, handler func(context.Context, amqp.TransactionEvent) error) error
}

// Stats summarizes worker activity.
type Stats struct {
	EventsProcessed int64
	EventsFailed    int64
	Resyncs         int64
	LastResync      time.Time
	LastResyncRows  int
}

type LedgerSync struct {
	source   TransactionSource
	mirror   sheets.LedgerMirror
	interval time.Duration
	logger   *log.Logger

	processed int64
	failed    int64
	resyncs   int64

	mu             sync.Mutex
	lastResync     time.Time
	lastResyncRows int
}

func NewLedgerSync(source TransactionSource, mirror sheets.LedgerMirror, interval time.Duration, logger *log.Logger) *LedgerSync {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LedgerSync{
		source:   source,
		mirror:   mirror,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent applies one event to the mirror. Created and updated events
// reload the row from the store so the mirror always reflects committed state.
func (w *LedgerSync) HandleEvent(ctx context.Context, ev amqp.TransactionEvent) error {
	err := w.apply(ctx, ev)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		return err
	}
	atomic.AddInt64(&w.processed, 1)
	return nil
}

func (w *LedgerSync) apply(ctx context.Context, ev amqp.TransactionEvent) error {
	switch ev.Type {
	case amqp.EventTransactionDeleted:
		if err := w.mirror.Delete(ctx, ev.TransactionID); err != nil {
			return fmt.Errorf("delete mirror row %d: %w", ev.TransactionID, err)
		}
		w.logger.InfoContext(ctx, "Removed transaction from mirror",
			log.FieldEventID, ev.ID.String(),
			log.FieldEntityID, ev.TransactionID)
		return nil

	case amqp.EventTransactionCreated, amqp.EventTransactionUpdated:
		tx, err := w.source.GetTransaction(ctx, ev.TransactionID)
		if errors.Is(err, core.ErrNotFound) {
			// deleted before we got here; the delete event may follow or may be lost
			if err := w.mirror.Delete(ctx, ev.TransactionID); err != nil {
				return fmt.Errorf("delete mirror row %d: %w", ev.TransactionID, err)
			}
			w.logger.InfoContext(ctx, "Transaction vanished before sync",
				log.FieldEventID, ev.ID.String(),
				log.FieldEntityID, ev.TransactionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load transaction %d: %w", ev.TransactionID, err)
		}
		if err := w.mirror.Upsert(ctx, sheets.RowFromTransaction(tx)); err != nil {
			return fmt.Errorf("upsert mirror row %d: %w", tx.ID, err)
		}
		w.logger.InfoContext(ctx, "Mirrored transaction",
			log.FieldEventID, ev.ID.String(),
			log.FieldEntityID, tx.ID,
			log.FieldTransactionNo, tx.TransactionNo)
		return nil
	}
	return fmt.Errorf("unsupported event type %q", ev.Type)
}

// Resync rewrites the mirror from every stored transaction, oldest first.
func (w *LedgerSync) Resync(ctx context.Context) error {
	start := time.Now()
	txs, err := w.source.ListTransactions(ctx, core.TransactionFilter{}, nil)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
	rows := make([]sheets.Row, len(txs))
	for i, tx := range txs {
		rows[i] = sheets.RowFromTransaction(tx)
	}

	if err := w.mirror.ReplaceAll(ctx, rows); err != nil {
		return fmt.Errorf("replace mirror: %w", err)
	}

	atomic.AddInt64(&w.resyncs, 1)
	w.mu.Lock()
	w.lastResync = time.Now()
	w.lastResyncRows = len(rows)
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Ledger mirror resynced",
		"rows", len(rows),
		log.FieldDurationHuman, time.Since(start).String())
	return nil
}

// Run resyncs once, then consumes events and resyncs on every interval
// until ctx is cancelled. A failed resync is logged and retried next tick.
func (w *LedgerSync) Run(ctx context.Context, consumer EventConsumer) error {
	if err := w.Resync(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup resync failed", log.FieldError, err, log.FieldOperation, log.OpSync)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Consume(ctx, w.HandleEvent)
	})
	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.Resync(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Periodic resync failed", log.FieldError, err, log.FieldOperation, log.OpSync)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats returns a snapshot of worker counters.
func (w *LedgerSync) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		EventsProcessed: atomic.LoadInt64(&w.processed),
		EventsFailed:    atomic.LoadInt64(&w.failed),
		Resyncs:         atomic.LoadInt64(&w.resyncs),
		LastResync:      w.lastResync,
		LastResyncRows:  w.lastResyncRows,
	}
}
