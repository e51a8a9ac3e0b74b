package player

import (
	"sync/atomic"
	"time"
)

// wakeReason records why a background goroutine was woken.
type wakeReason uint32

const (
	reasonDataNeeded wakeReason = 1 << iota
	reasonTrackQueued
	reasonSeekRequested
	reasonStopRequested
	reasonCollect
	reasonShutdown
)

func (r wakeReason) has(o wakeReason) bool { return r&o != 0 }

// wakeup is a non-blocking, coalescing signal. Signal never blocks, so it is
// safe to call from the render goroutine; reasons accumulate until the waiter
// picks them up.
type wakeup struct {
	ch      chan struct{}
	reasons atomic.Uint32
	timer   *time.Timer
}

func newWakeup() *wakeup {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &wakeup{
		ch:    make(chan struct{}, 1),
		timer: t,
	}
}

func (w *wakeup) Signal(r wakeReason) {
	w.reasons.Or(uint32(r))
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until signalled or until timeout passes and returns the reasons
// collected since the last Wait. Only one goroutine may Wait.
func (w *wakeup) Wait(timeout time.Duration) wakeReason {
	w.timer.Reset(timeout)
	select {
	case <-w.ch:
		w.timer.Stop()
	case <-w.timer.C:
	}
	return wakeReason(w.reasons.Swap(0))
}
