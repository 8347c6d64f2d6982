package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const EventTypeTransactionCreated = "transaction.created"

type OutboxEvent struct {
	ID          uuid.UUID       `json:"outbox_event_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// TransactionEvent is the payload of a transaction.created event.
type TransactionEvent struct {
	TransactionID        uuid.UUID         `json:"transaction_id"`
	ReferenceID          uuid.UUID         `json:"reference_id"`
	Operation            Operation         `json:"operation"`
	Amount               string            `json:"amount"`
	Currency             string            `json:"currency"`
	Status               TransactionStatus `json:"status"`
	Timestamp            time.Time         `json:"timestamp"`
	SourceAccountID      uuid.UUID         `json:"source_account_id"`
	DestinationAccountID *uuid.UUID        `json:"destination_account_id,omitempty"`
}

func NewOutboxEvent(eventType string, payload any) (*OutboxEvent, error) {
	if eventType == "" {
		return nil, fmt.Errorf("outbox event type is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}

	return &OutboxEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewTransactionCreatedEvent builds the event emitted alongside a successful transaction.
func NewTransactionCreatedEvent(tx *Transaction) (*OutboxEvent, error) {
	return NewOutboxEvent(EventTypeTransactionCreated, TransactionEvent{
		TransactionID:        tx.ID,
		ReferenceID:          tx.ReferenceID,
		Operation:            tx.Operation,
		Amount:               tx.Amount.StringFixed(2),
		Currency:             tx.Currency,
		Status:               tx.Status,
		Timestamp:            tx.UpdatedAt,
		SourceAccountID:      tx.AccountID,
		DestinationAccountID: tx.DestinationAccountID,
	})
}

func (e *OutboxEvent) IsProcessed() bool {
	return e.ProcessedAt != nil
}

// MarkProcessed records the first processing time only. A clock reading
// earlier than CreatedAt is clamped to CreatedAt.
func (e *OutboxEvent) MarkProcessed(at time.Time) {
	if e.ProcessedAt != nil {
		return
	}
	if at.Before(e.CreatedAt) {
		at = e.CreatedAt
	}
	e.ProcessedAt = &at
}

type OutboxRepository interface {
	CreateEvent(ctx context.Context, event *OutboxEvent) error
	// ListUnprocessed returns at most limit events without a processed
	// timestamp, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	CountUnprocessed(ctx context.Context) (int64, error)
}
