package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledger-engine/internal/domain"
	"ledger-engine/internal/errors"
)

type outboxRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewOutboxRepository(db SQLExecutor, logger *slog.Logger) domain.OutboxRepository {
	return &outboxRepository{
		db:     db,
		logger: logger,
	}
}

func (r *outboxRepository) CreateEvent(ctx context.Context, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (outbox_event_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, event.ID, event.Type, string(event.Payload), event.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create outbox event", "outbox_event_id", event.ID, "type", event.Type, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create outbox event").WithDetails(err.Error())
	}

	return nil
}

func (r *outboxRepository) ListUnprocessed(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `
		SELECT outbox_event_id, type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list outbox events", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list outbox events").WithDetails(err.Error())
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0, limit)
	for rows.Next() {
		var event domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.ID, &event.Type, &payload, &event.CreatedAt); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to scan outbox event").WithDetails(err.Error())
		}
		event.Payload = payload
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list outbox events").WithDetails(err.Error())
	}

	return events, nil
}

// MarkProcessed sets processed_at once; later calls for the same event are no-ops.
func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE outbox_events
		SET processed_at = GREATEST($2, created_at)
		WHERE outbox_event_id = $1 AND processed_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		r.logger.Error("Failed to mark outbox event processed", "outbox_event_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to mark outbox event processed").WithDetails(err.Error())
	}

	return nil
}

func (r *outboxRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE processed_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, errors.NewAppError(errors.InternalError, "failed to count outbox events").WithDetails(err.Error())
	}
	return count, nil
}
