package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"bookkeeper/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{64, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"amqp closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{"other error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}

	if client.isCircuitOpen() {
		t.Fatal("circuit breaker should be closed initially")
	}

	for i := 0; i < maxFailures-1; i++ {
		client.recordFailure()
	}
	if client.isCircuitOpen() {
		t.Fatal("circuit should stay closed below the failure threshold")
	}
	client.recordFailure()
	if !client.isCircuitOpen() {
		t.Fatal("circuit should open at the failure threshold")
	}

	client.failureMu.Lock()
	client.lastFailure = time.Now().Add(-openTimeout - time.Second)
	client.failureMu.Unlock()
	if client.isCircuitOpen() {
		t.Fatal("circuit should go half-open after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatalf("state = %d, want half-open", client.state)
	}

	client.recordFailure()
	if !client.isCircuitOpen() {
		t.Fatal("a failure while half-open should reopen the circuit")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset failures")
	}
}

func TestClient_PublishShortCircuits(t *testing.T) {
	client := &Client{exchangeName: "test_exchange", queueName: "test_queue"}
	ev := NewTransactionEvent(EventTransactionCreated, core.Transaction{ID: 1})

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure = time.Now()
	err := client.PublishTransactionEvent(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected circuit breaker error, got %v", err)
	}

	client.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.PublishTransactionEvent(ctx, ev); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewTransactionEvent(t *testing.T) {
	tx := core.Transaction{
		ID:            42,
		TransactionNo: "TXN-0042",
		Date:          core.NewDate(2024, 3, 1),
		Amount:        decimal.RequireFromString("19.99"),
		Type:          core.Debit,
		AccountID:     3,
		LocationID:    1,
	}

	created := NewTransactionEvent(EventTransactionCreated, tx)
	if created.Transaction == nil || created.Transaction.TransactionNo != "TXN-0042" {
		t.Fatalf("created event should carry a snapshot: %+v", created)
	}
	deleted := NewTransactionEvent(EventTransactionDeleted, tx)
	if deleted.Transaction != nil || deleted.TransactionID != 42 {
		t.Fatalf("deleted event should only carry the id: %+v", deleted)
	}
	if created.ID == deleted.ID {
		t.Fatal("events must get distinct message ids")
	}

	body, err := created.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := TransactionEventFromJSON(body)
	if err != nil {
		t.Fatalf("TransactionEventFromJSON: %v", err)
	}
	if parsed.ID != created.ID || parsed.Type != EventTransactionCreated || !parsed.Transaction.Amount.Equal(tx.Amount) {
		t.Fatalf("unexpected decoded event %+v", parsed)
	}
}

func TestTransactionEventFromJSONRejectsBadEvents(t *testing.T) {
	tests := map[string]string{
		"not json":      `{`,
		"unknown type":  `{"id":"7b0b3f0e-8c51-4d7e-9f0b-0d7f1a2b3c4d","type":"account.created","transactionId":1}`,
		"missing tx id": `{"id":"7b0b3f0e-8c51-4d7e-9f0b-0d7f1a2b3c4d","type":"transaction.deleted"}`,
		"string tx id":  `{"id":"7b0b3f0e-8c51-4d7e-9f0b-0d7f1a2b3c4d","type":"transaction.deleted","transactionId":"x"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := TransactionEventFromJSON([]byte(body)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
