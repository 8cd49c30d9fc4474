package retry

import (
	"context"
	"time"
)

type Operation func() error

// Do runs op up to attempts times, doubling the delay after each failure.
func Do(ctx context.Context, attempts int, baseDelay time.Duration, op Operation) error {
	delay := baseDelay
	var lastErr error

	for i := 0; i < attempts; i++ {
		if err := op(); err != nil {
			lastErr = err

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if i == attempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			continue
		}
		return nil
	}
	return lastErr
}
