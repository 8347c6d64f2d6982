package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
	"ledger-engine/internal/service"
)

type TransactionHandler struct {
	processor service.TransactionProcessor
}

func NewTransactionHandler(processor service.TransactionProcessor) *TransactionHandler {
	return &TransactionHandler{
		processor: processor,
	}
}

type TransactionRequest struct {
	Operation            string    `json:"operation"`
	AccountID            string    `json:"account_id"`
	Amount               string    `json:"amount"`
	Currency             string    `json:"currency"`
	ReferenceID          string    `json:"reference_id"`
	DestinationAccountID *string   `json:"destination_account_id,omitempty"`
	Metadata             *Metadata `json:"metadata,omitempty"`
}

type Metadata struct {
	Description string `json:"description"`
}

type TransactionResponse struct {
	TransactionID    string    `json:"transaction_id"`
	ReferenceID      string    `json:"reference_id"`
	Operation        string    `json:"operation"`
	Status           string    `json:"status"`
	AccountID        string    `json:"account_id"`
	AvailableBalance string    `json:"available_balance"`
	ReservedBalance  string    `json:"reserved_balance"`
	CreditLimit      string    `json:"credit_limit"`
	Timestamp        time.Time `json:"timestamp"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
}

func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cmd, err := req.toCommand()
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.processor.Process(r.Context(), cmd)
	if err != nil {
		writeError(w, err)
		return
	}

	// Failed transactions are a processed outcome, not a request error.
	writeJSON(w, http.StatusOK, TransactionResponse{
		TransactionID:    result.TransactionID.String(),
		ReferenceID:      result.ReferenceID.String(),
		Operation:        string(result.Operation),
		Status:           string(result.Status),
		AccountID:        result.AccountID.String(),
		AvailableBalance: result.AvailableBalance.StringFixed(2),
		ReservedBalance:  result.ReservedBalance.StringFixed(2),
		CreditLimit:      result.CreditLimit.StringFixed(2),
		Timestamp:        result.Timestamp,
		ErrorMessage:     result.ErrorMessage,
	})
}

func (req *TransactionRequest) toCommand() (*service.TransactionCommand, error) {
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidAccountID, "invalid account_id")
	}

	referenceID, err := uuid.Parse(req.ReferenceID)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid reference_id format")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error())
	}

	cmd := &service.TransactionCommand{
		Operation:   domain.NormalizeOperation(req.Operation),
		AccountID:   accountID,
		Amount:      amount,
		Currency:    req.Currency,
		ReferenceID: referenceID,
	}

	if req.DestinationAccountID != nil && *req.DestinationAccountID != "" {
		destinationID, err := uuid.Parse(*req.DestinationAccountID)
		if err != nil {
			return nil, errors.NewAppError(errors.InvalidAccountID, "invalid destination_account_id")
		}
		cmd.DestinationAccountID = &destinationID
	}

	if req.Metadata != nil && req.Metadata.Description != "" {
		description := req.Metadata.Description
		cmd.Description = &description
	}

	return cmd, nil
}
