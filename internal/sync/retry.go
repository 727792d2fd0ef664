package sync

import (
	"context"
	"errors"
	"time"

	"github.com/tazhate/calsync/internal/clients/caldav"
)

const (
	retryAttempts = 3
	retryBase     = 2 * time.Second
)

// withRetry runs fn, retrying transient failures with doubling backoff.
// Authentication, malformed-feed, and protocol errors surface immediately,
// as do partial-sync results: events already applied stay applied and the
// next scheduled run picks up the remainder.
func withRetry(ctx context.Context, fn func() error) error {
	delay := retryBase
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		err = fn()
		var partial *PartialSyncError
		if err == nil || errors.As(err, &partial) || !caldav.IsTransient(err) {
			return err
		}
	}
	return err
}
