package core

import "sync/atomic"

// TimerFreq is the rate of the system tick counter.
const (
	TimerFreq = 12000000 // 12MHz

	ticksPerMS = TimerFreq / 1000
	ticksPerUS = TimerFreq / 1000000
)

var systemTicks uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime sets the current system time. Targets call it from their tick
// interrupt; tests drive it directly.
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// AdvanceTime moves the clock forward; used by host simulations.
func AdvanceTime(ticks uint32) {
	atomic.AddUint32(&systemTicks, ticks)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return us * ticksPerUS
}

// TimerFromMS converts milliseconds to timer ticks
func TimerFromMS(ms uint32) uint32 {
	return ms * ticksPerMS
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return ticks / ticksPerUS
}

// TimerFromHz returns the tick period of a rate.
func TimerFromHz(hz uint32) uint32 {
	if hz == 0 {
		return 0
	}
	return TimerFreq / hz
}
