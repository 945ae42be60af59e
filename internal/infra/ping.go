package infra

import (
	"context"
	"fmt"
	"time"
)

const (
	pingAttempts = 3
	pingTimeout  = 3 * time.Second
	pingBackoff  = 500 * time.Millisecond
)

// ping retries a connectivity check a few times so the portal tolerates a
// store that comes up moments after it.
func ping(ctx context.Context, name string, check func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = check(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == pingAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping %s: %w", name, ctx.Err())
		case <-time.After(pingBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("ping %s after %d attempts: %w", name, pingAttempts, err)
}
