package graphstore

import (
	"context"
	"time"

	"github.com/superagent/legalengine/internal/models"
)

// withRetry retries fn while it returns a TransientBackendError, up to
// maxAttempts times, with exponential backoff starting at baseDelay. Any
// other error kind, including NotFound, is returned immediately.
func withRetry[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	delay := baseDelay
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !models.IsTransient(err) {
			return zero, err
		}
		select {
		case <-ctx.Done():
			return zero, models.NewError(models.KindDeadline, "graph store call cancelled during retry", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, lastErr
}
