// Package delay runs the countdown before a capture.
package delay

import (
	"context"
	"math"
	"time"
)

// DefaultInterval is the tick of the countdown loop.
const DefaultInterval = 10 * time.Millisecond

// StatusFunc receives the whole seconds left, rounded up.
type StatusFunc func(remainingSeconds int)

// Scheduler counts down in short ticks and reports whole-second changes.
type Scheduler struct {
	Interval time.Duration
	Now      func() time.Time
	Sleep    func(time.Duration)
}

// New creates a scheduler on the wall clock.
func New() *Scheduler {
	return &Scheduler{
		Interval: DefaultInterval,
		Now:      time.Now,
		Sleep:    time.Sleep,
	}
}

// Countdown blocks for total, calling status once at the start and again
// every time the rounded-up remaining seconds drop. It never reports 0. A
// non-positive total returns at once without a callback. ctx is checked on
// every tick.
func (s *Scheduler) Countdown(ctx context.Context, total time.Duration, status StatusFunc) error {
	if total <= 0 {
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := s.Now()
	last := 0
	for {
		remaining := total - s.Now().Sub(start)
		if remaining <= 0 {
			return nil
		}
		if secs := Seconds(remaining); secs != last {
			last = secs
			if status != nil {
				status(secs)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.Sleep(min(interval, remaining))
	}
}

// Seconds rounds a remaining duration up to whole seconds.
func Seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
