package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

type AccountService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewAccountService(store domain.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

func (s *AccountService) CreateAccount(ctx context.Context, clientID uuid.UUID, initialBalance, creditLimit decimal.Decimal) (*domain.Account, error) {
	s.logger.Info("Creating account", "client_id", clientID, "initial_balance", initialBalance, "credit_limit", creditLimit)

	if clientID == uuid.Nil {
		return nil, errors.NewAppError(errors.InvalidClientID, "client_id is required")
	}
	for _, amount := range []decimal.Decimal{initialBalance, creditLimit} {
		if !amount.Equal(amount.Round(2)) || !amount.LessThan(maxAmount) {
			return nil, errors.NewAppError(errors.InvalidAmount, "amounts must have at most 2 decimal places")
		}
	}

	account, err := domain.NewAccount(clientID, initialBalance, creditLimit)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Client().GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	if err := s.store.Account().CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.store.Account().GetAccount(ctx, accountID)
}

// BlockAccount blocks the account under a row lock. Blocking is one-way.
func (s *AccountService) BlockAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var blocked *domain.Account

	err := s.store.WithTransaction(ctx, func(repos domain.Repositories) error {
		account, err := repos.Account().GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == domain.AccountStatusBlocked {
			blocked = account
			return nil
		}

		account.Block()
		if err := repos.Account().UpdateAccount(ctx, account); err != nil {
			return err
		}
		blocked = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account blocked", "account_id", accountID)
	return blocked, nil
}
