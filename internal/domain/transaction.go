package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-engine/internal/errors"
)

// DefaultCurrency is applied when a command does not name one.
const DefaultCurrency = "BRL"

type Operation string

const (
	OperationCredit   Operation = "credit"
	OperationDebit    Operation = "debit"
	OperationReserve  Operation = "reserve"
	OperationCapture  Operation = "capture"
	OperationReversal Operation = "reversal"
	OperationTransfer Operation = "transfer"
)

// NormalizeOperation lower-cases and trims a caller supplied name. It does not
// validate it: unknown names are rejected where operations are applied.
func NormalizeOperation(name string) Operation {
	return Operation(strings.ToLower(strings.TrimSpace(name)))
}

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

type Transaction struct {
	ID                   uuid.UUID         `json:"transaction_id"`
	ReferenceID          uuid.UUID         `json:"reference_id"`
	AccountID            uuid.UUID         `json:"account_id"`
	DestinationAccountID *uuid.UUID        `json:"destination_account_id,omitempty"`
	Operation            Operation         `json:"operation"`
	Amount               decimal.Decimal   `json:"amount"`
	Currency             string            `json:"currency"`
	Status               TransactionStatus `json:"status"`
	ErrorMessage         *string           `json:"error_message,omitempty"`
	Description          *string           `json:"description,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func NewPendingTransaction(
	referenceID, accountID uuid.UUID,
	destinationAccountID *uuid.UUID,
	operation Operation,
	amount decimal.Decimal,
	currency string,
	description *string,
) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:                   uuid.New(),
		ReferenceID:          referenceID,
		AccountID:            accountID,
		DestinationAccountID: destinationAccountID,
		Operation:            operation,
		Amount:               amount,
		Currency:             currency,
		Status:               TransactionStatusPending,
		Description:          description,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (t *Transaction) IsTerminal() bool {
	return t.Status != TransactionStatusPending
}

func (t *Transaction) MarkSuccess() error {
	if t.IsTerminal() {
		return errors.ErrTransactionFinalized
	}
	t.Status = TransactionStatusSuccess
	t.ErrorMessage = nil
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *Transaction) MarkFailed(reason string) error {
	if t.IsTerminal() {
		return errors.ErrTransactionFinalized
	}
	t.Status = TransactionStatusFailed
	t.ErrorMessage = &reason
	t.UpdatedAt = time.Now().UTC()
	return nil
}

type TransactionRepository interface {
	// CreateTransaction returns errors.ErrDuplicateTransaction when the
	// reference id is already taken.
	CreateTransaction(ctx context.Context, tx *Transaction) error
	// GetTransactionByReferenceID returns nil, nil when nothing matches.
	GetTransactionByReferenceID(ctx context.Context, referenceID uuid.UUID) (*Transaction, error)
	// FinalizeTransaction persists a terminal status. It only applies to a
	// row that is still pending and returns errors.ErrTransactionFinalized otherwise.
	FinalizeTransaction(ctx context.Context, tx *Transaction) error
}
