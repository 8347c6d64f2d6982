package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-engine/internal/errors"
)

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusBlocked  AccountStatus = "blocked"
)

// Account holds the balances of a single client account. All mutations go
// through the methods below so that reserved >= 0 and available + credit
// limit >= 0 hold after every call; a failed call leaves the account as it was.
type Account struct {
	ID               uuid.UUID       `json:"account_id"`
	ClientID         uuid.UUID       `json:"client_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	ReservedBalance  decimal.Decimal `json:"reserved_balance"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	Status           AccountStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func NewAccount(clientID uuid.UUID, initialBalance, creditLimit decimal.Decimal) (*Account, error) {
	if initialBalance.IsNegative() {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance cannot be negative")
	}
	if creditLimit.IsNegative() {
		return nil, errors.NewAppError(errors.InvalidAmount, "credit limit cannot be negative")
	}

	now := time.Now().UTC()
	return &Account{
		ID:               uuid.New(),
		ClientID:         clientID,
		AvailableBalance: initialBalance,
		ReservedBalance:  decimal.Zero,
		CreditLimit:      creditLimit,
		Status:           AccountStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// SpendableBalance is what a debit may consume: available funds plus credit.
func (a *Account) SpendableBalance() decimal.Decimal {
	return a.AvailableBalance.Add(a.CreditLimit)
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

func (a *Account) Credit(amount decimal.Decimal) error {
	if err := a.ensureActive(); err != nil {
		return err
	}
	a.AvailableBalance = a.AvailableBalance.Add(amount)
	a.touch()
	return nil
}

func (a *Account) Debit(amount decimal.Decimal) error {
	if err := a.ensureActive(); err != nil {
		return err
	}
	if a.SpendableBalance().LessThan(amount) {
		return errors.ErrInsufficientFunds
	}
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	a.touch()
	return nil
}

func (a *Account) Reserve(amount decimal.Decimal) error {
	if err := a.ensureActive(); err != nil {
		return err
	}
	if a.AvailableBalance.LessThan(amount) {
		return errors.ErrInsufficientAvailableBalance
	}
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	a.ReservedBalance = a.ReservedBalance.Add(amount)
	a.touch()
	return nil
}

// Capture settles previously reserved funds. The amount already left the
// available balance at reservation time, so only the reservation shrinks.
func (a *Account) Capture(amount decimal.Decimal) error {
	if err := a.ensureActive(); err != nil {
		return err
	}
	if a.ReservedBalance.LessThan(amount) {
		return errors.ErrInsufficientReservedBalance
	}
	a.ReservedBalance = a.ReservedBalance.Sub(amount)
	a.touch()
	return nil
}

func (a *Account) RevertReserve(amount decimal.Decimal) error {
	if err := a.ensureActive(); err != nil {
		return err
	}
	if a.ReservedBalance.LessThan(amount) {
		return errors.ErrInsufficientReservedBalance
	}
	a.ReservedBalance = a.ReservedBalance.Sub(amount)
	a.AvailableBalance = a.AvailableBalance.Add(amount)
	a.touch()
	return nil
}

// Block is one-way. Blocking an already blocked account is a no-op.
func (a *Account) Block() {
	if a.Status == AccountStatusBlocked {
		return
	}
	a.Status = AccountStatusBlocked
	a.touch()
}

func (a *Account) ensureActive() error {
	if !a.IsActive() {
		return errors.ErrAccountInactive
	}
	return nil
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now().UTC()
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetAccountForUpdate reads the account holding an exclusive row lock
	// until the surrounding unit of work ends.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error
	ListAccountsByClient(ctx context.Context, clientID uuid.UUID) ([]*Account, error)
}
