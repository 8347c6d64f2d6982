package domain

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledger-engine/internal/errors"
)

type Client struct {
	ID        uuid.UUID `json:"client_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func NewClient(name, email string) (*Client, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	if name == "" {
		return nil, errors.NewAppError(errors.InvalidInput, "name is required")
	}
	if len(name) > 100 {
		return nil, errors.NewAppError(errors.InvalidInput, "name must have at most 100 characters")
	}
	if _, err := mail.ParseAddress(email); err != nil || len(email) > 100 {
		return nil, errors.NewAppError(errors.InvalidInput, "email is invalid")
	}

	return &Client{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type ClientRepository interface {
	// CreateClient returns errors.ErrDuplicateClient on an email conflict.
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)
}
