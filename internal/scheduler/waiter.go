package scheduler

import (
	"context"
	"time"
)

const (
	// DefaultStepSize bounds how long the loop goes without looking at
	// cancellation or settings changes
	DefaultStepSize = 5 * time.Second
)

// ChangeFunc reports whether the watched state changed since the wait began
type ChangeFunc func(ctx context.Context) bool

// Wait sleeps for total in increments of step. After every increment it
// checks ctx and then calls changed, if set. It returns true when changed
// ended the wait early and false when the full duration elapsed or ctx was
// cancelled. A step in progress is never interrupted and the final step is
// shortened so the total is never exceeded.
func Wait(ctx context.Context, total, step time.Duration, changed ChangeFunc) bool {
	if step <= 0 {
		step = DefaultStepSize
	}

	for elapsed := time.Duration(0); elapsed < total; {
		if ctx.Err() != nil {
			return false
		}

		d := min(step, total-elapsed)
		sleep(d)
		elapsed += d

		if ctx.Err() != nil {
			return false
		}
		if changed != nil && changed(ctx) {
			return true
		}
	}
	return false
}

func sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	<-t.C
}
