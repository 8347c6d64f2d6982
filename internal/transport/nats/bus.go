package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"ledger-engine/internal/domain"
)

const flushTimeout = 5 * time.Second

// Bus publishes outbox events on "<prefix>.<event type>" with core NATS, so
// delivery ends at the server and nothing acknowledges storage. The event id
// rides in the Nats-Msg-Id header; a JetStream stream bound to the subject
// uses it to deduplicate redeliveries, plain subscribers can do the same.
type Bus struct {
	nc            *nats.Conn
	subjectPrefix string
}

func NewBus(nc *nats.Conn, subjectPrefix string) *Bus {
	return &Bus{nc: nc, subjectPrefix: strings.TrimSuffix(subjectPrefix, ".")}
}

func (b *Bus) Subject(eventType string) string {
	if b.subjectPrefix == "" {
		return eventType
	}
	return b.subjectPrefix + "." + eventType
}

func (b *Bus) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg := nats.NewMsg(b.Subject(event.Type))
	msg.Data = event.Payload
	msg.Header.Set(nats.MsgIdHdr, event.ID.String())
	msg.Header.Set("Event-Type", event.Type)

	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
	}

	// Flush so a dead connection surfaces as a delivery failure.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("ledger-engine"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
