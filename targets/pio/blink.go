package pio

import "gorecoil/core"

const (
	// StatusPeriodMS is the time between two blink bursts.
	StatusPeriodMS = 3000

	// MaxBlinks caps a burst so every code fits inside one period.
	MaxBlinks = 10
)

// BlinkCount is the number of flashes that report errs: the position of
// the lowest set flag plus one. Zero means the LED stays dark.
func BlinkCount(errs core.ErrorCode) uint32 {
	if errs == core.ErrorNone {
		return 0
	}
	n := uint32(errs.Lowest() + 1)
	if n == 0 || n > MaxBlinks {
		n = MaxBlinks
	}
	return n
}
