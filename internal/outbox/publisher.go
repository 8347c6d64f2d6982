package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ledger-engine/internal/domain"
)

// EventBus delivers one outbox event to the outside world. Implementations
// must be safe to call again for an event that was already delivered.
type EventBus interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

type Config struct {
	BatchSize    int
	PollInterval time.Duration
	Policy       PolicyConfig
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    20,
		PollInterval: 10 * time.Second,
		Policy:       DefaultPolicyConfig(),
	}
}

// SweepResult summarizes one publisher cycle.
type SweepResult struct {
	Fetched   int
	Published int
	Failed    int
	// Aborted is set when an open breaker cut the batch short.
	Aborted bool
}

// Publisher drains unprocessed outbox events in FIFO order. A single Run
// loop keeps at most one sweep in flight.
type Publisher struct {
	repo   domain.OutboxRepository
	bus    EventBus
	policy *DeliveryPolicy
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewPublisher(repo domain.OutboxRepository, bus EventBus, cfg Config, logger *slog.Logger) *Publisher {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	return &Publisher{
		repo:   repo,
		bus:    bus,
		policy: NewDeliveryPolicy(cfg.Policy, logger),
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		stop:   make(chan struct{}),
	}
}

// Run sweeps until ctx is cancelled or Stop is called, sleeping the poll
// interval between cycles.
func (p *Publisher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.logger.Info("Outbox publisher started", "batch_size", p.cfg.BatchSize, "poll_interval", p.cfg.PollInterval)
	defer p.logger.Info("Outbox publisher stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		p.Sweep(ctx)
		timer.Reset(p.cfg.PollInterval)
	}
}

// Stop ends Run. It is safe to call more than once.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Publisher) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	events, err := p.repo.ListUnprocessed(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("Failed to load outbox events", "error", err)
		return result
	}
	result.Fetched = len(events)

	for _, event := range events {
		if ctx.Err() != nil {
			return result
		}

		err := p.policy.Execute(ctx, func(ctx context.Context) error {
			return p.bus.Publish(ctx, event)
		})
		if errors.Is(err, ErrCircuitOpen) {
			p.logger.Warn("Circuit breaker open, deferring remaining outbox events",
				"outbox_event_id", event.ID,
				"remaining", len(events)-result.Published-result.Failed,
			)
			result.Aborted = true
			break
		}
		if err != nil {
			p.logger.Error("Failed to deliver outbox event", "outbox_event_id", event.ID, "type", event.Type, "error", err)
			result.Failed++
			continue
		}

		// A failure here means the event will be delivered again next cycle.
		if err := p.repo.MarkProcessed(ctx, event.ID, p.now()); err != nil {
			p.logger.Error("Failed to mark outbox event processed", "outbox_event_id", event.ID, "error", err)
			result.Failed++
			continue
		}
		result.Published++
	}

	if result.Fetched > 0 {
		p.logger.Info("Outbox sweep finished",
			"fetched", result.Fetched,
			"published", result.Published,
			"failed", result.Failed,
			"aborted", result.Aborted,
			"breaker", p.policy.State(),
		)
	}
	if pending, err := p.PendingCount(ctx); err == nil && pending > 0 {
		p.logger.Debug("Outbox backlog", "pending", pending)
	}

	return result
}

func (p *Publisher) PendingCount(ctx context.Context) (int64, error) {
	return p.repo.CountUnprocessed(ctx)
}
