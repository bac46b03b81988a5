package calibration

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/dealerai/backend/internal/contracts"
)

// RetryPolicy bounds exponential backoff for upstream I/O
type RetryPolicy struct {
	MaxAttempts  int // total attempts, ≥ 1
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 1s doubling up to 10s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
	}
}

// Do calls fn until it succeeds, the attempts run out, or ctx ends.
// Data-sufficiency and validation errors are returned at once.
func (p RetryPolicy) Do(ctx context.Context, log zerolog.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.InitialDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			break
		}

		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, contracts.ErrInsufficientData) {
		return false
	}
	var ve contracts.ValidationError
	return !errors.As(err, &ve)
}
