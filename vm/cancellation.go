package vm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Cancellation: per-thread stop flag backed by a context
// ---------------------------------------------------------------------------

// ErrCancelled is returned by a Thread that was stopped before it finished.
var ErrCancelled = errors.New("thread cancelled")

// cancellation is checked once per instruction. The flag caches a done
// context so later checks skip the channel select.
type cancellation struct {
	cancelled atomic.Bool
	cause     atomic.Pointer[error]
}

// Cancel stops the thread at its next instruction boundary.
func (c *cancellation) Cancel() {
	c.cancelled.Store(true)
}

// IsCancelled reports whether the flag is set or ctx is done.
func (c *cancellation) IsCancelled(ctx context.Context) bool {
	if c.cancelled.Load() {
		return true
	}
	select {
	case <-ctx.Done():
		err := ctx.Err()
		c.cause.Store(&err)
		c.cancelled.Store(true)
		return true
	default:
		return false
	}
}

// Err describes why the thread stopped.
func (c *cancellation) Err() error {
	if p := c.cause.Load(); p != nil && *p != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, *p)
	}
	return ErrCancelled
}
