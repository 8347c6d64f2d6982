package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

type clientRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewClientRepository(db SQLExecutor, logger *slog.Logger) domain.ClientRepository {
	return &clientRepository{
		db:     db,
		logger: logger,
	}
}

func (r *clientRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	query := `
		INSERT INTO clients (client_id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, client.ID, client.Name, client.Email, client.CreatedAt)
	if err != nil {
		if code, _, ok := pqErrorCode(err); ok && code == pgUniqueViolation {
			r.logger.Warn("Duplicate client email", "email", client.Email)
			return errors.ErrDuplicateClient
		}
		r.logger.Error("Failed to create client", "client_id", client.ID, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create client").WithDetails(err.Error())
	}

	r.logger.Info("Client created", "client_id", client.ID)
	return nil
}

func (r *clientRepository) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	query := `SELECT client_id, name, email, created_at FROM clients WHERE client_id = $1`

	var client domain.Client
	err := r.db.QueryRowContext(ctx, query, id).Scan(&client.ID, &client.Name, &client.Email, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrClientNotFound
		}
		r.logger.Error("Failed to get client", "client_id", id, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get client").WithDetails(err.Error())
	}

	return &client, nil
}
