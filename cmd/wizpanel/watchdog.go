package main

import (
	"context"
	"sync/atomic"
	"time"
)

// watchdog fails the process when the poll loop stops kicking it.
//
// Kick is called from the poll loop every tick. Run checks the age of the
// last kick and calls onStall once if it exceeds the timeout.
type watchdog struct {
	timeout  time.Duration
	lastKick atomic.Int64 // unix nanos
	now      func() time.Time
}

func newWatchdog(timeout time.Duration) *watchdog {
	w := &watchdog{timeout: timeout, now: time.Now}
	w.Kick()
	return w
}

// Kick records that the loop is alive.
func (w *watchdog) Kick() {
	w.lastKick.Store(w.now().UnixNano())
}

// Stalled reports how long the loop has been silent, and whether that
// exceeds the timeout.
func (w *watchdog) Stalled() (time.Duration, bool) {
	since := w.now().Sub(time.Unix(0, w.lastKick.Load()))
	return since, since > w.timeout
}

// Run checks the kick age every timeout/4 until ctx is canceled or a stall
// is detected.
func (w *watchdog) Run(ctx context.Context, onStall func(since time.Duration)) {
	interval := w.timeout / 4
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if since, stalled := w.Stalled(); stalled {
				onStall(since)
				return
			}
		}
	}
}
