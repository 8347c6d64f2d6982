package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
	"ledger-engine/internal/service"
)

type ClientService interface {
	CreateClient(ctx context.Context, name, email string) (*domain.Client, error)
	GetClient(ctx context.Context, clientID uuid.UUID) (*service.ClientDetails, error)
}

type ClientHandler struct {
	clientService ClientService
}

func NewClientHandler(clientService ClientService) *ClientHandler {
	return &ClientHandler{clientService: clientService}
}

type CreateClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ClientResponse struct {
	ClientID  string            `json:"client_id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	CreatedAt time.Time         `json:"created_at"`
	Accounts  []AccountResponse `json:"accounts"`
}

func (h *ClientHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	client, err := h.clientService.CreateClient(r.Context(), req.Name, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ClientResponse{
		ClientID:  client.ID.String(),
		Name:      client.Name,
		Email:     client.Email,
		CreatedAt: client.CreatedAt,
		Accounts:  []AccountResponse{},
	})
}

func (h *ClientHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathUUID(r, "client_id", errors.InvalidClientID)
	if err != nil {
		writeError(w, err)
		return
	}

	details, err := h.clientService.GetClient(r.Context(), clientID)
	if err != nil {
		writeError(w, err)
		return
	}

	accounts := make([]AccountResponse, 0, len(details.Accounts))
	for _, account := range details.Accounts {
		accounts = append(accounts, newAccountResponse(account))
	}

	writeJSON(w, http.StatusOK, ClientResponse{
		ClientID:  details.Client.ID.String(),
		Name:      details.Client.Name,
		Email:     details.Client.Email,
		CreatedAt: details.Client.CreatedAt,
		Accounts:  accounts,
	})
}
