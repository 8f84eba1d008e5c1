package pool

import (
	"context"
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a stopped-and-drained timer from the pool reset to d,
// or a new timer when the pool is empty.
//
// Return the timer with PutTimer once it is no longer needed.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer) // only *time.Timer is ever put into the pool
	if t.Reset(d) {
		// the timer was still active, drop a stale tick
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Sleep pauses for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := GetTimer(d)
	defer PutTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
