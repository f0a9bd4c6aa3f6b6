package infra

import (
	"context"
	"log/slog"
	"time"

	"hedge_go/internal/domain"

	"github.com/cenkalti/backoff/v5"
)

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given retry count:
// 1s, 2s, 4s ... capped at 30s.
func CalculateBackoff(retry int) time.Duration {
	if retry <= 0 {
		return baseBackoff
	}
	if retry > 5 {
		return maxBackoff
	}
	d := baseBackoff << uint(retry)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Retry calls fn up to attempts times, sleeping with exponential backoff
// starting at base between calls. Non-retriable errors stop immediately.
func Retry(ctx context.Context, attempts int, base time.Duration, op string, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn(ctx)
		if err != nil && !domain.IsRetriable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Warn("Attempt failed, retrying", slog.String("op", op), slog.Duration("delay", delay), slog.Any("error", err))
		}),
	)
	return err
}
