package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"ledger-engine/internal/domain"
)

// Bus POSTs each outbox event payload to a fixed URL. Any non-2xx reply is
// a failed delivery.
type Bus struct {
	url    string
	client *http.Client
}

func NewBus(url string, timeout time.Duration) *Bus {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bus{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *Bus) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(event.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ledger-engine-webhook/1.0")
	req.Header.Set("X-Event-Id", event.ID.String())
	req.Header.Set("X-Event-Type", event.Type)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook %s returned status %d", b.url, resp.StatusCode)
}
