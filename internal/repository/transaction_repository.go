package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

const (
	transactionColumns = `transaction_id, reference_id, account_id, destination_account_id, operation, amount,
		currency, status, error_message, description, created_at, updated_at`

	referenceIDConstraint = "idx_transactions_reference_id"
)

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewTransactionRepository(db SQLExecutor, logger *slog.Logger) domain.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.ReferenceID,
		tx.AccountID,
		uuidOrNil(tx.DestinationAccountID),
		string(tx.Operation),
		tx.Amount.String(),
		tx.Currency,
		string(tx.Status),
		tx.ErrorMessage,
		tx.Description,
		tx.CreatedAt,
		tx.UpdatedAt,
	)

	if err != nil {
		if code, constraint, ok := pqErrorCode(err); ok {
			if code == pgUniqueViolation && constraint == referenceIDConstraint {
				r.logger.Warn("Duplicate reference id", "reference_id", tx.ReferenceID)
				return errors.ErrDuplicateTransaction
			}
			if code == pgForeignKeyViolation {
				r.logger.Warn("Transaction references unknown account", "account_id", tx.AccountID)
				return errors.ErrAccountNotFound
			}
		}
		r.logger.Error("Failed to create transaction",
			"reference_id", tx.ReferenceID,
			"account_id", tx.AccountID,
			"amount", tx.Amount,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	r.logger.Info("Transaction created", "transaction_id", tx.ID, "reference_id", tx.ReferenceID, "operation", tx.Operation)
	return nil
}

func (r *transactionRepository) GetTransactionByReferenceID(ctx context.Context, referenceID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference_id = $1`

	var transaction domain.Transaction
	var destination uuid.NullUUID
	var operation, status string
	var errorMessage, description sql.NullString

	err := r.db.QueryRowContext(ctx, query, referenceID).Scan(
		&transaction.ID,
		&transaction.ReferenceID,
		&transaction.AccountID,
		&destination,
		&operation,
		&transaction.Amount,
		&transaction.Currency,
		&status,
		&errorMessage,
		&description,
		&transaction.CreatedAt,
		&transaction.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction", "reference_id", referenceID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}

	transaction.Operation = domain.Operation(operation)
	transaction.Status = domain.TransactionStatus(status)
	if destination.Valid {
		id := destination.UUID
		transaction.DestinationAccountID = &id
	}
	if errorMessage.Valid {
		transaction.ErrorMessage = &errorMessage.String
	}
	if description.Valid {
		transaction.Description = &description.String
	}

	return &transaction, nil
}

func (r *transactionRepository) FinalizeTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1, error_message = $2, updated_at = $3
		WHERE transaction_id = $4 AND status = 'pending'
	`

	updatedAt := tx.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query, string(tx.Status), tx.ErrorMessage, updatedAt, tx.ID)
	if err != nil {
		r.logger.Error("Failed to update transaction status",
			"transaction_id", tx.ID, "status", tx.Status, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update transaction status").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}
	if rowsAffected == 0 {
		r.logger.Warn("Transaction is not pending", "transaction_id", tx.ID, "status", tx.Status)
		return errors.ErrTransactionFinalized
	}

	r.logger.Info("Transaction status updated", "transaction_id", tx.ID, "status", tx.Status)
	return nil
}

func uuidOrNil(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
