package media

import (
	"context"
	"time"
)

// Pacer decides how long to wait before the next retrieval.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedPacer waits the same interval every time.
type FixedPacer struct {
	Interval time.Duration
}

// Wait blocks for the interval or until ctx is done.
func (p FixedPacer) Wait(ctx context.Context) error {
	if p.Interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoPacer never waits.
type NoPacer struct{}

// Wait implements Pacer.
func (NoPacer) Wait(ctx context.Context) error { return ctx.Err() }

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context) error

// Wait implements Pacer.
func (f PacerFunc) Wait(ctx context.Context) error { return f(ctx) }
