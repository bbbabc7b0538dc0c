package decorator

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker"

	"relay/internal/adapter"
	"relay/internal/logger"
	"relay/pkg/circuitbreaker"
	"relay/pkg/errors"
	"relay/pkg/metrics"
	"relay/pkg/models"
	"relay/pkg/retry"
)

// RetryBreaker retries failed dispatch calls under an exponential backoff
// policy, with every attempt passing through a per-adapter circuit
// breaker. An open circuit fails fast with ErrCircuitOpen and is never
// retried; a fatal classification from the adapter stops retries
// immediately.
type RetryBreaker struct {
	inner   adapter.Adapter
	policy  retry.Policy
	breaker *circuitbreaker.Wrapper
	logger  logger.Logger
}

// NewRetryBreaker wraps inner. breaker may be nil, leaving retry-only
// behaviour.
func NewRetryBreaker(inner adapter.Adapter, policy retry.Policy, breaker *circuitbreaker.Wrapper, log logger.Logger) *RetryBreaker {
	return &RetryBreaker{
		inner:   inner,
		policy:  policy,
		breaker: breaker,
		logger:  log,
	}
}

func (d *RetryBreaker) Name() string {
	return d.inner.Name()
}

func (d *RetryBreaker) Initialize(ctx context.Context) error {
	return d.inner.Initialize(ctx)
}

func (d *RetryBreaker) Track(ctx context.Context, event models.Event) error {
	return d.execute(ctx, "track", func() error {
		return d.inner.Track(ctx, event)
	})
}

func (d *RetryBreaker) Identify(ctx context.Context, payload models.IdentifyPayload) error {
	return d.execute(ctx, "identify", func() error {
		return d.inner.Identify(ctx, payload)
	})
}

func (d *RetryBreaker) Group(ctx context.Context, payload models.GroupPayload) error {
	return d.execute(ctx, "group", func() error {
		return d.inner.Group(ctx, payload)
	})
}

func (d *RetryBreaker) Page(ctx context.Context, payload models.PagePayload) error {
	return d.execute(ctx, "page", func() error {
		return d.inner.Page(ctx, payload)
	})
}

func (d *RetryBreaker) Flush(ctx context.Context) error {
	return d.inner.Flush(ctx)
}

func (d *RetryBreaker) Destroy(ctx context.Context) error {
	return d.inner.Destroy(ctx)
}

func (d *RetryBreaker) execute(ctx context.Context, operation string, fn func() error) error {
	attempt := func() error {
		if d.breaker == nil {
			return fn()
		}
		_, err := d.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
			return nil, fn()
		})
		d.breaker.RecordRequest(err == nil)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return errors.ErrCircuitOpen.WithDetail("provider", d.inner.Name())
		}
		return err
	}

	onRetry := func(attemptNum int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(d.inner.Name(), operation).Inc()
		d.logger.DebugwCtx(ctx, "Retrying dispatch",
			"provider", d.inner.Name(),
			"operation", operation,
			"attempt", attemptNum,
			"next_delay", nextDelay,
			"error", err,
		)
	}

	err := retry.RetryWithCallback(ctx, d.policy, attempt, onRetry)
	if err == nil {
		return nil
	}
	if errors.IsCircuitOpen(err) {
		return err
	}

	var fatal retry.FatalError
	if stderrors.As(err, &fatal) && fatal.IsFatal() {
		return err
	}
	var retryable retry.RetryableError
	if stderrors.As(err, &retryable) && !retryable.IsRetryable() {
		return err
	}

	return errors.ErrRetryExhausted.
		WithCause(err).
		WithDetail("provider", d.inner.Name()).
		WithDetail("operation", operation)
}
