// Package dispatch drives the two periodic tick sources: a fast tick for
// sampling and debounce and a slow tick for blinking.
//
// Both handlers run on the dispatcher's single goroutine, so they never run
// concurrently or preempt each other. Each timer is re-armed before its
// handler runs; the slow timer is re-armed with whatever period is selected
// at that moment.
package dispatch

import (
	"context"
	"time"
)

// Timer is the subset of *time.Timer the dispatcher re-arms.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

// TimerFunc creates a started Timer.
type TimerFunc func(d time.Duration) Timer

// Handler is invoked with the 1-based tick number.
type Handler func(tick uint64)

// Config configures a Dispatcher.
type Config struct {
	Fast     time.Duration
	Slow     func() time.Duration // read at every slow re-arm
	OnFast   Handler
	OnSlow   Handler
	NewTimer TimerFunc // nil uses real timers
}

// Dispatcher owns the fast and slow timers.
type Dispatcher struct {
	cfg       Config
	fastTicks uint64
	slowTicks uint64
}

// New creates a Dispatcher. Nil handlers are no-ops.
func New(cfg Config) *Dispatcher {
	if cfg.NewTimer == nil {
		cfg.NewTimer = NewRealTimer
	}
	if cfg.OnFast == nil {
		cfg.OnFast = func(uint64) {}
	}
	if cfg.OnSlow == nil {
		cfg.OnSlow = func(uint64) {}
	}
	return &Dispatcher{cfg: cfg}
}

// Run arms both timers and dispatches ticks until ctx is cancelled.
// It always returns nil; a broken timer has no recovery path.
func (d *Dispatcher) Run(ctx context.Context) error {
	fast := d.cfg.NewTimer(d.cfg.Fast)
	defer fast.Stop()
	slow := d.cfg.NewTimer(d.cfg.Slow())
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-fast.C():
			d.fastTicks++
			fast.Reset(d.cfg.Fast)
			d.cfg.OnFast(d.fastTicks)

		case <-slow.C():
			d.slowTicks++
			slow.Reset(d.cfg.Slow())
			d.cfg.OnSlow(d.slowTicks)
		}
	}
}

type realTimer struct {
	t *time.Timer
}

// NewRealTimer wraps time.NewTimer.
func NewRealTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

func (r realTimer) C() <-chan time.Time { return r.t.C }

// Reset is only called after the channel has been drained by Run.
func (r realTimer) Reset(d time.Duration) { r.t.Reset(d) }

func (r realTimer) Stop() { r.t.Stop() }
