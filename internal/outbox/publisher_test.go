package outbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-engine/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memOutbox struct {
	mu      sync.Mutex
	events  []*domain.OutboxEvent
	markErr error
}

func (m *memOutbox) add(t *testing.T, n int) []*domain.OutboxEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	created := make([]*domain.OutboxEvent, 0, n)
	for i := 0; i < n; i++ {
		event, err := domain.NewOutboxEvent(domain.EventTypeTransactionCreated, map[string]int{"seq": len(m.events)})
		require.NoError(t, err)
		event.CreatedAt = time.Unix(int64(len(m.events)), 0).UTC()
		m.events = append(m.events, event)
		created = append(created, event)
	}
	return created
}

func (m *memOutbox) CreateEvent(_ context.Context, event *domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memOutbox) ListUnprocessed(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OutboxEvent
	for _, e := range m.events {
		if e.ProcessedAt == nil && len(out) < limit {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOutbox) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	for _, e := range m.events {
		if e.ID == id {
			e.MarkProcessed(at)
		}
	}
	return nil
}

func (m *memOutbox) CountUnprocessed(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.events {
		if e.ProcessedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memOutbox) processed(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			return e.ProcessedAt != nil
		}
	}
	return false
}

type fakeBus struct {
	mu        sync.Mutex
	calls     int
	delivered []uuid.UUID
	failFor   map[uuid.UUID]bool
	failAll   bool
}

func (b *fakeBus) Publish(_ context.Context, event *domain.OutboxEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failAll || b.failFor[event.ID] {
		return errors.New("broker unavailable")
	}
	b.delivered = append(b.delivered, event.ID)
	return nil
}

func (b *fakeBus) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func fastConfig() Config {
	return Config{
		BatchSize:    20,
		PollInterval: 10 * time.Millisecond,
		Policy: PolicyConfig{
			MaxRetries:      3,
			BaseDelay:       time.Millisecond,
			BreakerFailures: 5,
			BreakerCooldown: time.Hour,
		},
	}
}

func TestSweepDeliversOldestFirst(t *testing.T) {
	repo := &memOutbox{}
	events := repo.add(t, 3)
	bus := &fakeBus{}
	publisher := NewPublisher(repo, bus, fastConfig(), discardLogger())

	result := publisher.Sweep(context.Background())

	assert.Equal(t, SweepResult{Fetched: 3, Published: 3}, result)
	assert.Equal(t, []uuid.UUID{events[0].ID, events[1].ID, events[2].ID}, bus.delivered)
	for _, e := range events {
		assert.True(t, repo.processed(e.ID))
	}

	pending, err := publisher.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	repo := &memOutbox{}
	repo.add(t, 25)
	cfg := fastConfig()
	publisher := NewPublisher(repo, &fakeBus{}, cfg, discardLogger())

	first := publisher.Sweep(context.Background())
	second := publisher.Sweep(context.Background())

	assert.Equal(t, 20, first.Published)
	assert.Equal(t, 5, second.Published)
}

func TestSweepContinuesPastFailedEvent(t *testing.T) {
	repo := &memOutbox{}
	events := repo.add(t, 3)
	bus := &fakeBus{failFor: map[uuid.UUID]bool{events[0].ID: true}}
	publisher := NewPublisher(repo, bus, fastConfig(), discardLogger())

	result := publisher.Sweep(context.Background())

	assert.Equal(t, SweepResult{Fetched: 3, Published: 2, Failed: 1}, result)
	// first attempt plus three retries for the failing event
	assert.Equal(t, 4+2, bus.callCount())
	assert.False(t, repo.processed(events[0].ID))
	assert.True(t, repo.processed(events[1].ID))
	assert.True(t, repo.processed(events[2].ID))
}

func TestSweepStopsWhenBreakerOpens(t *testing.T) {
	repo := &memOutbox{}
	events := repo.add(t, 4)
	bus := &fakeBus{failAll: true}
	publisher := NewPublisher(repo, bus, fastConfig(), discardLogger())

	result := publisher.Sweep(context.Background())

	// event 1: four failed attempts; event 2: the fifth failure trips the breaker
	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 5, bus.callCount())
	assert.Equal(t, "open", publisher.policy.State())
	for _, e := range events {
		assert.False(t, repo.processed(e.ID))
	}

	// while open, no delivery is attempted at all
	again := publisher.Sweep(context.Background())
	assert.True(t, again.Aborted)
	assert.Equal(t, 5, bus.callCount())
}

func TestBreakerHalfOpensAfterCooldown(t *testing.T) {
	repo := &memOutbox{}
	events := repo.add(t, 2)
	bus := &fakeBus{failAll: true}
	cfg := fastConfig()
	cfg.Policy.BreakerCooldown = 50 * time.Millisecond
	publisher := NewPublisher(repo, bus, cfg, discardLogger())

	require.True(t, publisher.Sweep(context.Background()).Aborted)

	bus.mu.Lock()
	bus.failAll = false
	bus.mu.Unlock()
	time.Sleep(80 * time.Millisecond)

	result := publisher.Sweep(context.Background())
	assert.False(t, result.Aborted)
	assert.Equal(t, 2, result.Published)
	assert.Equal(t, "closed", publisher.policy.State())
	assert.True(t, repo.processed(events[0].ID))
}

func TestSweepMarkFailureLeavesEventPending(t *testing.T) {
	repo := &memOutbox{markErr: errors.New("db down")}
	events := repo.add(t, 1)
	publisher := NewPublisher(repo, &fakeBus{}, fastConfig(), discardLogger())

	result := publisher.Sweep(context.Background())

	assert.Equal(t, 1, result.Failed)
	assert.False(t, repo.processed(events[0].ID))
}

func TestRunStopsOnStop(t *testing.T) {
	repo := &memOutbox{}
	repo.add(t, 2)
	var buf bytes.Buffer
	publisher := NewPublisher(repo, NewLogBus(slog.New(slog.NewJSONHandler(&buf, nil))), fastConfig(), discardLogger())

	done := make(chan error, 1)
	go func() { done <- publisher.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		n, _ := repo.CountUnprocessed(context.Background())
		return n == 0
	}, time.Second, 5*time.Millisecond)

	publisher.Stop()
	publisher.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
	assert.Contains(t, buf.String(), domain.EventTypeTransactionCreated)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var sweeps atomic.Int32
	repo := &countingOutbox{memOutbox: &memOutbox{}, lists: &sweeps}
	publisher := NewPublisher(repo, &fakeBus{}, fastConfig(), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- publisher.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

type countingOutbox struct {
	*memOutbox
	lists *atomic.Int32
}

func (c *countingOutbox) ListUnprocessed(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	c.lists.Add(1)
	return c.memOutbox.ListUnprocessed(ctx, limit)
}
