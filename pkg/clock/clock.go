// Package clock provides an injectable clock so time-dependent behavior can
// be made deterministic in tests.
package clock

import (
	"context"
	"time"

	"go.uber.org/fx"
)

// Module provides the real clock
var Module = fx.Module("clock",
	fx.Provide(New),
)

// Clock abstracts wall-clock reads and sleeping
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled
	Sleep(ctx context.Context, d time.Duration) error
}

// New returns the real clock
func New() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
