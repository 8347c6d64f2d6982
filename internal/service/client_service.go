package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"ledger-engine/internal/domain"
)

type ClientService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewClientService(store domain.Store, logger *slog.Logger) *ClientService {
	return &ClientService{
		store:  store,
		logger: logger,
	}
}

// ClientDetails is a client together with the accounts it owns.
type ClientDetails struct {
	Client   *domain.Client
	Accounts []*domain.Account
}

func (s *ClientService) CreateClient(ctx context.Context, name, email string) (*domain.Client, error) {
	client, err := domain.NewClient(name, email)
	if err != nil {
		return nil, err
	}

	if err := s.store.Client().CreateClient(ctx, client); err != nil {
		return nil, err
	}

	s.logger.Info("Client registered", "client_id", client.ID)
	return client, nil
}

func (s *ClientService) GetClient(ctx context.Context, clientID uuid.UUID) (*ClientDetails, error) {
	client, err := s.store.Client().GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.store.Account().ListAccountsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	return &ClientDetails{Client: client, Accounts: accounts}, nil
}
