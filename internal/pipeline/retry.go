package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"constellation/internal/logging"
	"constellation/internal/services"
)

// RetryPolicy bounds attempts per adapter call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// CallTimeout is the deadline for a single adapter call. Zero disables it.
	CallTimeout time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// delay returns base * 2^(attempt-1), capped at MaxDelay. A provider hint
// replaces the computed delay but is still capped.
func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	if hint, ok := services.RetryAfter(err); ok {
		return p.capDelay(hint)
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return p.capDelay(d)
}

func (p RetryPolicy) capDelay(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry runs call until it succeeds, fails permanently or attempts run
// out. runCtx gates new attempts and backoff sleeps; each attempt runs on
// callCtx (detached from run cancellation) bounded by the per-call timeout,
// so an attempt already in flight is allowed to finish.
func (o *Orchestrator) withRetry(runCtx, callCtx context.Context, logger *slog.Logger, call func(context.Context) ([]byte, error)) ([]byte, error) {
	policy := o.opts.Retry
	attempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := runCtx.Err(); err != nil {
			return nil, err
		}
		payload, err := o.attempt(callCtx, policy.CallTimeout, call)
		if err == nil {
			if attempt > 1 {
				logger.Info("stage recovered after retry", logging.Int("attempt", attempt))
			}
			return payload, nil
		}
		lastErr = err
		if !services.IsTransient(err) || attempt == attempts {
			break
		}
		delay := policy.delay(attempt, err)
		logger.Warn("stage attempt failed; retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("backoff", delay),
			logging.String("reason", services.Kind(err)),
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String(logging.FieldErrorHint, "provider reported a transient failure"),
			logging.String(logging.FieldImpact, "stage delayed"),
			logging.Error(err),
		)
		if err := o.sleep(runCtx, delay); err != nil {
			return nil, err
		}
	}
	if attempts > 1 && services.IsTransient(lastErr) {
		return nil, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
	}
	return nil, lastErr
}

func (o *Orchestrator) attempt(ctx context.Context, timeout time.Duration, call func(context.Context) ([]byte, error)) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	payload, err := call(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded && !services.IsTransient(err) {
		// Adapters that surface the deadline as a plain error still count as timeouts.
		err = services.Wrap(services.ErrTimeout, "pipeline", "call", fmt.Sprintf("exceeded %s", timeout), err)
	}
	return payload, err
}
