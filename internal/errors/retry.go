package errors

import (
	"context"
	"time"
)

// RetryIO retries fn up to maxAttempts times with exponential backoff,
// matching spec.md §7's "IOError ... retry with backoff up to three
// attempts" policy. The last error is wrapped as KindIOError if all
// attempts fail.
func RetryIO(ctx context.Context, maxAttempts int, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	var lastErr error
	backoff := 20 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Wrap(KindIOError, "retry cancelled", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
	}
	return Wrap(KindIOError, "operation failed after retries", lastErr)
}
