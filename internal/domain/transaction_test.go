package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-engine/internal/errors"
)

func TestNormalizeOperation(t *testing.T) {
	assert.Equal(t, OperationTransfer, NormalizeOperation("  Transfer "))
	assert.Equal(t, OperationCapture, NormalizeOperation("CAPTURE"))
	assert.Equal(t, Operation("refund"), NormalizeOperation("refund"))
}

func TestTransactionLeavesPendingOnce(t *testing.T) {
	tx := NewPendingTransaction(uuid.New(), uuid.New(), nil, OperationCredit, dec("10"), DefaultCurrency, nil)
	require.Equal(t, TransactionStatusPending, tx.Status)

	require.NoError(t, tx.MarkSuccess())
	assert.True(t, tx.IsTerminal())

	assert.True(t, errors.Is(tx.MarkFailed("late"), errors.ErrTransactionFinalized))
	assert.True(t, errors.Is(tx.MarkSuccess(), errors.ErrTransactionFinalized))
	assert.Equal(t, TransactionStatusSuccess, tx.Status)
	assert.Nil(t, tx.ErrorMessage)
}

func TestTransactionMarkFailed(t *testing.T) {
	tx := NewPendingTransaction(uuid.New(), uuid.New(), nil, OperationDebit, dec("10"), DefaultCurrency, nil)

	require.NoError(t, tx.MarkFailed("insufficient funds for debit"))

	assert.Equal(t, TransactionStatusFailed, tx.Status)
	require.NotNil(t, tx.ErrorMessage)
	assert.Equal(t, "insufficient funds for debit", *tx.ErrorMessage)
}

func TestTransactionCreatedEventPayload(t *testing.T) {
	dst := uuid.New()
	tx := NewPendingTransaction(uuid.New(), uuid.New(), &dst, OperationTransfer, dec("12.5"), DefaultCurrency, nil)
	require.NoError(t, tx.MarkSuccess())

	event, err := NewTransactionCreatedEvent(tx)
	require.NoError(t, err)

	assert.Equal(t, EventTypeTransactionCreated, event.Type)
	assert.False(t, event.IsProcessed())

	var payload TransactionEvent
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, tx.ID, payload.TransactionID)
	assert.Equal(t, tx.ReferenceID, payload.ReferenceID)
	assert.Equal(t, "12.50", payload.Amount)
	assert.Equal(t, TransactionStatusSuccess, payload.Status)
	assert.Equal(t, tx.AccountID, payload.SourceAccountID)
	require.NotNil(t, payload.DestinationAccountID)
	assert.Equal(t, dst, *payload.DestinationAccountID)
}

func TestOutboxEventMarkProcessed(t *testing.T) {
	event, err := NewOutboxEvent("test", map[string]string{"k": "v"})
	require.NoError(t, err)

	event.MarkProcessed(event.CreatedAt.Add(-time.Minute))
	require.NotNil(t, event.ProcessedAt)
	assert.Equal(t, event.CreatedAt, *event.ProcessedAt)

	first := *event.ProcessedAt
	event.MarkProcessed(time.Now().Add(time.Hour))
	assert.Equal(t, first, *event.ProcessedAt)

	_, err = NewOutboxEvent("", nil)
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(" Ana ", " Ana@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "Ana", client.Name)
	assert.Equal(t, "ana@example.com", client.Email)

	_, err = NewClient("", "a@b.com")
	assert.Error(t, err)

	_, err = NewClient("Ana", "not-an-email")
	assert.Error(t, err)
}
