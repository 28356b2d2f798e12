package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/konsultti/kokoro-tts/internal/platform/logger"
)

// Retry knobs for transient store errors. SQLite reports a busy writer as
// a transient condition; a few short retries ride out another worker's
// write transaction.
const (
	retryInitialInterval = 25 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
	retryMaxAttempts     = 6
)

// WithRetry runs op, retrying with exponential backoff while it fails with
// a transient error (see IsTransient). Non-transient errors and retry
// exhaustion are returned to the caller. Transient store errors are never
// surfaced to the job itself.
func WithRetry(ctx context.Context, op func() error) error {
	log := logger.FromContext(ctx)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		log.Debug("retrying transient store error",
			"attempt", attempt,
			"error", err)
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(policy, retryMaxAttempts), ctx))
}
