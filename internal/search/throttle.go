package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSearchDelay is the minimum spacing between consecutive search calls.
const DefaultSearchDelay = 100 * time.Millisecond

// Throttle paces outgoing calls. Wait blocks until the next call may be made
// or ctx is done. *rate.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context) error
}

// NewIntervalThrottle returns a limiter with a burst of one: the first Wait
// returns at once, each following Wait is spaced interval after the previous.
func NewIntervalThrottle(interval time.Duration) Throttle {
	return rate.NewLimiter(rate.Every(interval), 1)
}

// NoopThrottle never waits.
type NoopThrottle struct{}

func (NoopThrottle) Wait(ctx context.Context) error {
	return ctx.Err()
}
