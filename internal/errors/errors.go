package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	// Validation
	InvalidInput     ErrorCode = "invalid_input"
	InvalidAmount    ErrorCode = "invalid_amount"
	InvalidAccountID ErrorCode = "invalid_account_id"
	InvalidClientID  ErrorCode = "invalid_client_id"
	InvalidCurrency  ErrorCode = "invalid_currency"

	// Lookups
	AccountNotFound ErrorCode = "account_not_found"
	ClientNotFound  ErrorCode = "client_not_found"

	// Conflicts
	DuplicateClient      ErrorCode = "duplicate_client"
	DuplicateTransaction ErrorCode = "duplicate_transaction"

	// Business rules, recorded on failed transactions
	AccountInactive              ErrorCode = "account_inactive"
	InsufficientFunds            ErrorCode = "insufficient_funds"
	InsufficientAvailableBalance ErrorCode = "insufficient_available_balance"
	InsufficientReservedBalance  ErrorCode = "insufficient_reserved_balance"
	DestinationRequired          ErrorCode = "destination_required"
	SameAccountTransfer          ErrorCode = "same_account_transfer"
	InvalidOperation             ErrorCode = "invalid_operation"
	TransactionFinalized         ErrorCode = "transaction_finalized"

	InternalError ErrorCode = "internal_error"
)

var businessRuleCodes = map[ErrorCode]struct{}{
	AccountInactive:              {},
	InsufficientFunds:            {},
	InsufficientAvailableBalance: {},
	InsufficientReservedBalance:  {},
	DestinationRequired:          {},
	SameAccountTransfer:          {},
	InvalidOperation:             {},
}

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an AppError carrying the same code, so that
// copies made by WithDetails still match the predefined values.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy of e with details attached. The receiver is left
// untouched so predefined errors can be decorated safely.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount, InvalidAccountID, InvalidClientID, InvalidCurrency:
		return http.StatusBadRequest
	case AccountNotFound, ClientNotFound:
		return http.StatusNotFound
	case DuplicateClient, DuplicateTransaction, TransactionFinalized:
		return http.StatusConflict
	case AccountInactive, InsufficientFunds, InsufficientAvailableBalance, InsufficientReservedBalance,
		DestinationRequired, SameAccountTransfer, InvalidOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Predefined errors for common cases
var (
	ErrAccountNotFound      = NewAppError(AccountNotFound, "account not found")
	ErrClientNotFound       = NewAppError(ClientNotFound, "client not found")
	ErrDuplicateClient      = NewAppError(DuplicateClient, "a client with this email already exists")
	ErrDuplicateTransaction = NewAppError(DuplicateTransaction, "transaction already processed")

	ErrAccountInactive              = NewAppError(AccountInactive, "account is not active")
	ErrInsufficientFunds            = NewAppError(InsufficientFunds, "insufficient funds for debit")
	ErrInsufficientAvailableBalance = NewAppError(InsufficientAvailableBalance, "insufficient available balance for reserve")
	ErrInsufficientReservedBalance  = NewAppError(InsufficientReservedBalance, "insufficient reserved balance")
	ErrDestinationRequired          = NewAppError(DestinationRequired, "destination account is required for transfer")
	ErrSameAccountTransfer          = NewAppError(SameAccountTransfer, "cannot transfer to the same account")
	ErrInvalidOperation             = NewAppError(InvalidOperation, "invalid operation")
	ErrTransactionFinalized         = NewAppError(TransactionFinalized, "transaction is no longer pending")

	ErrInvalidAmount = NewAppError(InvalidAmount, "amount must be positive with at most 2 decimal places")
)

// Is and As forward to the standard library so callers importing this
// package as "errors" keep both.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// From extracts an AppError from err, wrapping anything else as an internal error.
func From(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}

func IsBusinessRule(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	_, ok := businessRuleCodes[appErr.Code]
	return ok
}
