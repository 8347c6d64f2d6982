package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ledger-engine/internal/domain"
)

// StreamBus appends outbox events to a Redis stream. Consumers deduplicate
// on the event_id field.
type StreamBus struct {
	client *goredis.Client
	stream string
	maxLen int64
}

// NewStreamBus returns a bus writing to stream. A positive maxLen caps the
// stream length approximately.
func NewStreamBus(client *goredis.Client, stream string, maxLen int64) *StreamBus {
	return &StreamBus{client: client, stream: stream, maxLen: maxLen}
}

func (b *StreamBus) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	args := &goredis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{
			"event_id":   event.ID.String(),
			"type":       event.Type,
			"payload":    string(event.Payload),
			"created_at": event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}

	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", b.stream, err)
	}
	return nil
}

func Connect(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
