package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bookkeeper/internal/core"
)

// EventType names a change to a transaction.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTransactionCreated, EventTransactionUpdated, EventTransactionDeleted:
		return true
	}
	return false
}

// TransactionEvent is published after a transaction write commits.
// Consumers treat Transaction as a hint and reload the row by TransactionID.
type TransactionEvent struct {
	ID            uuid.UUID         `json:"id"`
	Type          EventType         `json:"type"`
	TransactionID int64             `json:"transactionId"`
	TransactionNo string            `json:"transactionNo,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
	Transaction   *core.Transaction `json:"transaction,omitempty"`
}

// NewTransactionEvent stamps a fresh message id. Deleted events carry no snapshot.
func NewTransactionEvent(eventType EventType, tx core.Transaction) TransactionEvent {
	ev := TransactionEvent{
		ID:            uuid.New(),
		Type:          eventType,
		TransactionID: tx.ID,
		TransactionNo: tx.TransactionNo,
		OccurredAt:    time.Now().UTC(),
	}
	if eventType != EventTransactionDeleted {
		snapshot := tx
		ev.Transaction = &snapshot
	}
	return ev
}

// ToJSON converts the event to JSON bytes
func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and sanity-checks an event body.
func TransactionEventFromJSON(data []byte) (TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TransactionEvent{}, err
	}
	if !ev.Type.Valid() {
		return TransactionEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.TransactionID <= 0 {
		return TransactionEvent{}, fmt.Errorf("event %s has no transaction id", ev.ID)
	}
	return ev, nil
}
