package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

const (
	beginMaxRetries   = 3
	beginInitialDelay = 50 * time.Millisecond
)

// Store provides a unified interface for all repository operations with transaction support
type Store struct {
	db       DB
	executor SQLExecutor
	logger   *slog.Logger
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a new Store instance
func NewStore(db DB, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		executor: db,
		logger:   logger,
	}
}

func (s *Store) Account() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

func (s *Store) Transaction() domain.TransactionRepository {
	return NewTransactionRepository(s.executor, s.logger)
}

func (s *Store) Outbox() domain.OutboxRepository {
	return NewOutboxRepository(s.executor, s.logger)
}

func (s *Store) Client() domain.ClientRepository {
	return NewClientRepository(s.executor, s.logger)
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.NewAppError(errors.InternalError, "store is bound to a transaction")
	}
	return s.db.PingContext(ctx)
}

// WithTransaction executes fn within a database transaction. The transaction
// is rolled back when fn returns an error, panics, or ctx is cancelled.
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Repositories) error) error {
	// Only the pool-bound store can begin transactions
	if s.db == nil {
		return errors.NewAppError(errors.InternalError, "cannot begin a transaction inside a transaction")
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	txStore := &Store{
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return errors.NewAppError(errors.InternalError, "failed to commit transaction").WithDetails(err.Error())
	}
	return nil
}

// begin retries opening a transaction on transient connection errors.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = beginInitialDelay
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	var tx *sql.Tx
	operation := func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		s.logger.Warn("Begin transaction failed, retrying", "delay", delay, "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, beginMaxRetries), ctx), notify)
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to begin transaction").WithDetails(err.Error())
	}
	return tx, nil
}
