//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"gorecoil/core"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word

	// the hardware timer counts microseconds
	hardwareTimerHz = 1000000
	timerScale      = core.TimerFreq / hardwareTimerHz
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// GetHardwareUptime reads the full 64-bit RP2040 microsecond timer
func GetHardwareUptime() uint64 {
	// Must read high first, then low, then high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime converts the microsecond counter to controller ticks
// and publishes it. The truncation to 32 bits wraps the same way the
// scheduler and the watchdog expect.
func UpdateSystemTime() uint32 {
	now := uint32(GetHardwareUptime() * timerScale)
	core.SetTime(now)
	return now
}
