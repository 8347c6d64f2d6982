package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

type AccountService interface {
	CreateAccount(ctx context.Context, clientID uuid.UUID, initialBalance, creditLimit decimal.Decimal) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	BlockAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
}

type AccountHandler struct {
	accountService AccountService
}

func NewAccountHandler(accountService AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type CreateAccountRequest struct {
	ClientID       string `json:"client_id"`
	InitialBalance string `json:"initial_balance"`
	CreditLimit    string `json:"credit_limit"`
}

type AccountResponse struct {
	AccountID        string `json:"account_id"`
	ClientID         string `json:"client_id"`
	AvailableBalance string `json:"available_balance"`
	ReservedBalance  string `json:"reserved_balance"`
	CreditLimit      string `json:"credit_limit"`
	SpendableBalance string `json:"spendable_balance"`
	Status           string `json:"status"`
}

func newAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID:        account.ID.String(),
		ClientID:         account.ClientID.String(),
		AvailableBalance: account.AvailableBalance.StringFixed(2),
		ReservedBalance:  account.ReservedBalance.StringFixed(2),
		CreditLimit:      account.CreditLimit.StringFixed(2),
		SpendableBalance: account.SpendableBalance().StringFixed(2),
		Status:           string(account.Status),
	}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidClientID, "invalid client_id"))
		return
	}

	initialBalance, err := parseOptionalAmount(req.InitialBalance)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid initial_balance format").WithDetails(err.Error()))
		return
	}

	creditLimit, err := parseOptionalAmount(req.CreditLimit)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid credit_limit format").WithDetails(err.Error()))
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), clientID, initialBalance, creditLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUUID(r, "account_id", errors.InvalidAccountID)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

func (h *AccountHandler) BlockAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathUUID(r, "account_id", errors.InvalidAccountID)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := h.accountService.BlockAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

func parseOptionalAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
