package outbox

import (
	"context"
	"log/slog"

	"ledger-engine/internal/domain"
)

// LogBus writes events to the log instead of a broker. It is the default
// bus when nothing else is configured.
type LogBus struct {
	logger *slog.Logger
}

func NewLogBus(logger *slog.Logger) *LogBus {
	return &LogBus{logger: logger}
}

func (b *LogBus) Publish(_ context.Context, event *domain.OutboxEvent) error {
	b.logger.Info("Outbox event published",
		"outbox_event_id", event.ID,
		"type", event.Type,
		"payload", string(event.Payload),
	)
	return nil
}
