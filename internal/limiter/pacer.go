package limiter

import (
	"context"
	"time"
)

// SleepFunc matches Sleep; tests substitute a recorder.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer spaces PIN attempts: a fixed delay before every attempt plus a
// longer pause once every RecurringEvery attempts.
type Pacer struct {
	Delay          time.Duration
	RecurringEvery int
	RecurringDelay time.Duration
	Sleep          SleepFunc

	count int
}

// Before is called ahead of each attempt. It reports whether the recurring
// pause was taken.
func (p *Pacer) Before(ctx context.Context) (recurring bool, err error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	if err := sleep(ctx, p.Delay); err != nil {
		return false, err
	}
	if p.RecurringEvery <= 0 || p.RecurringDelay <= 0 {
		return false, nil
	}
	p.count++
	if p.count < p.RecurringEvery {
		return false, nil
	}
	p.count = 0
	return true, sleep(ctx, p.RecurringDelay)
}
