package pubsub

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/architeacher/svc-pubsub-harness/internal/domain"
)

const (
	DefaultPublishRate = 100
	DefaultConsumeRate = 20
)

// intervalFor converts a per-second rate into the delay between iterations.
// Rates whose interval does not fit a time.Duration, or rounds below one
// nanosecond, are rejected.
func intervalFor(rate float64) (time.Duration, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidRate, rate)
	}

	interval := float64(time.Second) / rate
	if interval >= math.MaxInt64 || interval < 1 {
		return 0, fmt.Errorf("%w: %v out of range", domain.ErrInvalidRate, rate)
	}

	return time.Duration(interval), nil
}

// pause blocks for d or until ctx is done, whichever comes first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pacer spaces iterations interval apart, measured from the start of each iteration,
// so the time spent working counts towards the delay. It never lets more than
// elapsed/interval+1 iterations start.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{
		interval: interval,
		next:     time.Now().Add(interval),
	}
}

func (p *pacer) wait(ctx context.Context) error {
	err := pause(ctx, time.Until(p.next))

	// A schedule missed by more than one interval restarts from now instead of
	// bursting to catch up.
	if now := time.Now(); now.Sub(p.next) > p.interval {
		p.next = now
	}

	p.next = p.next.Add(p.interval)

	return err
}
