package service

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

const defaultFinalizeTimeout = 5 * time.Second

var maxAmount = decimal.New(1, 18)

type TransactionCommand struct {
	Operation            domain.Operation
	AccountID            uuid.UUID
	Amount               decimal.Decimal
	Currency             string
	ReferenceID          uuid.UUID
	DestinationAccountID *uuid.UUID
	Description          *string
}

// Validate normalizes the currency and rejects malformed commands before
// anything is persisted. The operation name is checked later, when it is applied.
func (c *TransactionCommand) Validate() error {
	if c.AccountID == uuid.Nil {
		return errors.NewAppError(errors.InvalidAccountID, "account_id is required")
	}
	if c.DestinationAccountID != nil {
		if *c.DestinationAccountID == uuid.Nil {
			return errors.NewAppError(errors.InvalidAccountID, "destination_account_id is invalid")
		}
		if c.Operation != domain.OperationTransfer {
			return errors.NewAppErrorf(errors.InvalidInput, "destination_account_id is only accepted for %s", domain.OperationTransfer)
		}
	}
	if c.ReferenceID == uuid.Nil {
		return errors.NewAppError(errors.InvalidInput, "reference_id is required")
	}
	if !c.Amount.IsPositive() || !c.Amount.Equal(c.Amount.Round(2)) || !c.Amount.LessThan(maxAmount) {
		return errors.ErrInvalidAmount
	}

	currency := strings.ToUpper(strings.TrimSpace(c.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if len(currency) != 3 || strings.IndexFunc(currency, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
		return errors.NewAppErrorf(errors.InvalidCurrency, "currency %q is not a 3-letter code", c.Currency)
	}
	c.Currency = currency

	if c.Description != nil && len(*c.Description) > 255 {
		return errors.NewAppError(errors.InvalidInput, "description must have at most 255 characters")
	}
	return nil
}

type TransactionResult struct {
	TransactionID    uuid.UUID
	ReferenceID      uuid.UUID
	Operation        domain.Operation
	Status           domain.TransactionStatus
	AccountID        uuid.UUID
	AvailableBalance decimal.Decimal
	ReservedBalance  decimal.Decimal
	CreditLimit      decimal.Decimal
	Timestamp        time.Time
	ErrorMessage     *string
}

func newTransactionResult(tx *domain.Transaction, account *domain.Account) *TransactionResult {
	return &TransactionResult{
		TransactionID:    tx.ID,
		ReferenceID:      tx.ReferenceID,
		Operation:        tx.Operation,
		Status:           tx.Status,
		AccountID:        tx.AccountID,
		AvailableBalance: account.AvailableBalance,
		ReservedBalance:  account.ReservedBalance,
		CreditLimit:      account.CreditLimit,
		Timestamp:        tx.UpdatedAt,
		ErrorMessage:     tx.ErrorMessage,
	}
}

// TransactionProcessor applies a command and reports its outcome. Business
// rule violations come back as a Failed result; only validation, unknown
// accounts and infrastructure faults are returned as errors.
type TransactionProcessor interface {
	Process(ctx context.Context, cmd *TransactionCommand) (*TransactionResult, error)
}

type TransactionService struct {
	store           domain.Store
	logger          *slog.Logger
	finalizeTimeout time.Duration
}

var _ TransactionProcessor = (*TransactionService)(nil)

func NewTransactionService(store domain.Store, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		store:           store,
		logger:          logger,
		finalizeTimeout: defaultFinalizeTimeout,
	}
}

func (s *TransactionService) Process(ctx context.Context, cmd *TransactionCommand) (*TransactionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s.logger.Info("Processing transaction",
		"reference_id", cmd.ReferenceID,
		"operation", cmd.Operation,
		"account_id", cmd.AccountID,
		"amount", cmd.Amount,
	)

	existing, err := s.store.Transaction().GetTransactionByReferenceID(ctx, cmd.ReferenceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.replay(ctx, existing)
	}

	if err := s.ensureAccountsExist(ctx, cmd); err != nil {
		return nil, err
	}

	tx := domain.NewPendingTransaction(
		cmd.ReferenceID,
		cmd.AccountID,
		cmd.DestinationAccountID,
		cmd.Operation,
		cmd.Amount,
		cmd.Currency,
		cmd.Description,
	)

	if err := s.store.Transaction().CreateTransaction(ctx, tx); err != nil {
		if !errors.Is(err, errors.ErrDuplicateTransaction) {
			return nil, err
		}
		// Lost the race against a concurrent submission with the same reference id.
		winner, err := s.store.Transaction().GetTransactionByReferenceID(ctx, cmd.ReferenceID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, errors.NewAppError(errors.InternalError, "duplicate reference id but no transaction found")
		}
		return s.replay(ctx, winner)
	}

	completed := *tx
	var source *domain.Account

	err = s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		accounts, locked, err := lockAccounts(ctx, repos.Account(), involvedAccounts(&completed)...)
		if err != nil {
			return err
		}

		src := accounts[completed.AccountID]
		var dst *domain.Account
		if completed.Operation == domain.OperationTransfer && completed.DestinationAccountID != nil {
			dst = accounts[*completed.DestinationAccountID]
		}

		if err := applyOperation(completed.Operation, src, dst, completed.Amount); err != nil {
			return err
		}

		for _, id := range locked {
			if err := repos.Account().UpdateAccount(ctx, accounts[id]); err != nil {
				return err
			}
		}

		if err := completed.MarkSuccess(); err != nil {
			return err
		}
		if err := repos.Transaction().FinalizeTransaction(ctx, &completed); err != nil {
			return err
		}

		event, err := domain.NewTransactionCreatedEvent(&completed)
		if err != nil {
			return errors.NewAppError(errors.InternalError, "failed to build outbox event").WithDetails(err.Error())
		}
		if err := repos.Outbox().CreateEvent(ctx, event); err != nil {
			return err
		}

		source = src
		return nil
	})
	if err != nil {
		return s.fail(ctx, tx, err)
	}

	s.logger.Info("Transaction succeeded",
		"transaction_id", completed.ID,
		"reference_id", completed.ReferenceID,
		"operation", completed.Operation,
	)
	return newTransactionResult(&completed, source), nil
}

// applyOperation is the single place where an operation name turns into
// account mutations.
func applyOperation(op domain.Operation, source, destination *domain.Account, amount decimal.Decimal) error {
	switch op {
	case domain.OperationCredit:
		return source.Credit(amount)
	case domain.OperationDebit:
		return source.Debit(amount)
	case domain.OperationReserve:
		return source.Reserve(amount)
	case domain.OperationCapture:
		return source.Capture(amount)
	case domain.OperationReversal:
		// Not matched against the original transaction.
		return source.Credit(amount)
	case domain.OperationTransfer:
		if destination == nil {
			return errors.ErrDestinationRequired
		}
		if destination.ID == source.ID {
			return errors.ErrSameAccountTransfer
		}
		if err := source.Debit(amount); err != nil {
			return err
		}
		return destination.Credit(amount)
	default:
		return errors.ErrInvalidOperation.WithDetails(string(op))
	}
}

func involvedAccounts(tx *domain.Transaction) []uuid.UUID {
	ids := []uuid.UUID{tx.AccountID}
	if tx.Operation == domain.OperationTransfer && tx.DestinationAccountID != nil {
		ids = append(ids, *tx.DestinationAccountID)
	}
	return ids
}

// canonicalLockOrder deduplicates ids and sorts them so every unit of work
// acquires row locks in the same order, whichever side is source or destination.
func canonicalLockOrder(ids []uuid.UUID) []uuid.UUID {
	ordered := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(ordered, id) {
			ordered = append(ordered, id)
		}
	}
	slices.SortFunc(ordered, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ordered
}

func lockAccounts(ctx context.Context, repo domain.AccountRepository, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, []uuid.UUID, error) {
	ordered := canonicalLockOrder(ids)
	accounts := make(map[uuid.UUID]*domain.Account, len(ordered))
	for _, id := range ordered {
		account, err := repo.GetAccountForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		accounts[id] = account
	}
	return accounts, ordered, nil
}

func (s *TransactionService) ensureAccountsExist(ctx context.Context, cmd *TransactionCommand) error {
	if _, err := s.store.Account().GetAccount(ctx, cmd.AccountID); err != nil {
		return err
	}
	if cmd.DestinationAccountID != nil && *cmd.DestinationAccountID != cmd.AccountID {
		if _, err := s.store.Account().GetAccount(ctx, *cmd.DestinationAccountID); err != nil {
			return err
		}
	}
	return nil
}

// replay returns the stored outcome of an already submitted reference id
// without touching any account.
func (s *TransactionService) replay(ctx context.Context, tx *domain.Transaction) (*TransactionResult, error) {
	s.logger.Info("Returning existing transaction for reference id",
		"reference_id", tx.ReferenceID,
		"transaction_id", tx.ID,
		"status", tx.Status,
	)

	account, err := s.store.Account().GetAccount(ctx, tx.AccountID)
	if err != nil {
		return nil, err
	}
	return newTransactionResult(tx, account), nil
}

// fail records the failure on the pending transaction after the unit of
// work rolled back. It runs detached from ctx cancellation so an aborted
// request still leaves a terminal row behind.
func (s *TransactionService) fail(ctx context.Context, tx *domain.Transaction, cause error) (*TransactionResult, error) {
	businessRule := errors.IsBusinessRule(cause)
	if businessRule {
		s.logger.Warn("Transaction rejected", "transaction_id", tx.ID, "reference_id", tx.ReferenceID, "reason", cause)
	} else {
		s.logger.Error("Transaction failed", "transaction_id", tx.ID, "reference_id", tx.ReferenceID, "error", cause)
	}

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.finalizeTimeout)
	defer cancel()

	failed := *tx
	if err := failed.MarkFailed(failureReason(cause)); err != nil {
		return nil, err
	}
	if err := s.store.Transaction().FinalizeTransaction(finalizeCtx, &failed); err != nil {
		s.logger.Error("Failed to mark transaction as failed", "transaction_id", tx.ID, "error", err)
		if businessRule {
			return nil, err
		}
		return nil, cause
	}

	if !businessRule {
		return nil, cause
	}

	account, err := s.store.Account().GetAccount(finalizeCtx, failed.AccountID)
	if err != nil {
		return nil, err
	}
	return newTransactionResult(&failed, account), nil
}

func failureReason(err error) string {
	if errors.IsBusinessRule(err) {
		return errors.From(err).Message
	}
	return err.Error()
}
