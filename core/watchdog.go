package core

import (
	"math"
	"sync/atomic"
)

// Watchdog tracks the time of the last qualifying CAN traffic (heartbeat or
// parameter write). Feed runs in task context, Expired in the position tick.
type Watchdog struct {
	enabled  uint32 // atomic bool
	timeout  uint32 // atomic, ms
	lastFeed uint32 // atomic, timer ticks
}

// NewWatchdog creates a watchdog with the given timeout.
func NewWatchdog(enabled bool, timeoutMS uint32) *Watchdog {
	w := &Watchdog{}
	w.SetEnabled(enabled)
	w.SetTimeout(timeoutMS)
	return w
}

func (w *Watchdog) SetEnabled(enabled bool) {
	if enabled {
		atomic.StoreUint32(&w.enabled, 1)
	} else {
		atomic.StoreUint32(&w.enabled, 0)
	}
}

func (w *Watchdog) Enabled() bool {
	return atomic.LoadUint32(&w.enabled) != 0
}

// MaxWatchdogTimeoutMS is the longest timeout the tick counter can measure
// before it wraps.
const MaxWatchdogTimeoutMS = math.MaxUint32 / ticksPerMS

// SetTimeout changes the timeout. Zero disables the check. Timeouts above
// MaxWatchdogTimeoutMS are refused and leave the old value in place.
func (w *Watchdog) SetTimeout(ms uint32) bool {
	if ms > MaxWatchdogTimeoutMS {
		return false
	}
	atomic.StoreUint32(&w.timeout, ms)
	return true
}

func (w *Watchdog) Timeout() uint32 {
	return atomic.LoadUint32(&w.timeout)
}

// Feed records traffic at now (timer ticks).
func (w *Watchdog) Feed(now uint32) {
	atomic.StoreUint32(&w.lastFeed, now)
}

// Expired reports whether more than the timeout has passed since the last
// feed. Tick arithmetic wraps.
func (w *Watchdog) Expired(now uint32) bool {
	if !w.Enabled() {
		return false
	}
	timeout := w.Timeout()
	if timeout == 0 {
		return false
	}
	elapsed := now - atomic.LoadUint32(&w.lastFeed)
	return elapsed > TimerFromMS(timeout)
}
