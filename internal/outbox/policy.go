package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by DeliveryPolicy.Execute when the breaker
// rejects the call without invoking it.
var ErrCircuitOpen = errors.New("delivery circuit breaker is open")

type PolicyConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// BaseDelay is the wait before the first retry; it doubles on every retry.
	BaseDelay time.Duration
	// BreakerFailures is the number of consecutive failed attempts that opens the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before a half-open probe.
	BreakerCooldown time.Duration
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxRetries:      3,
		BaseDelay:       2 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

func (c PolicyConfig) normalize() PolicyConfig {
	def := DefaultPolicyConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	return c
}

// DeliveryPolicy retries a delivery with exponential backoff. Every attempt
// passes through a circuit breaker; once it opens, retrying stops at once.
type DeliveryPolicy struct {
	cfg     PolicyConfig
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewDeliveryPolicy(cfg PolicyConfig, logger *slog.Logger) *DeliveryPolicy {
	cfg = cfg.normalize()

	p := &DeliveryPolicy{cfg: cfg, logger: logger}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-delivery",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Our own shutdown is not a delivery failure. gobreaker v1 cannot
			// leave the counts alone, so an attempt cancelled mid-flight resets
			// the consecutive failure streak.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return p
}

// State reports the breaker state: closed, half-open or open.
func (p *DeliveryPolicy) State() string {
	return p.breaker.State().String()
}

func (p *DeliveryPolicy) Execute(ctx context.Context, deliver func(context.Context) error) error {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = p.cfg.BaseDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxInterval = p.cfg.BaseDelay << p.cfg.MaxRetries
	schedule.MaxElapsedTime = 0

	attempt := func() error {
		// A cancelled attempt never reaches the breaker, see IsSuccessful.
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, deliver(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("%w: %w", ErrCircuitOpen, err))
		}
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		p.logger.Warn("Delivery attempt failed, retrying", "delay", delay, "error", err)
	}

	return backoff.RetryNotify(attempt, backoff.WithContext(backoff.WithMaxRetries(schedule, p.cfg.MaxRetries), ctx), notify)
}
