package pio

import (
	"testing"

	"gorecoil/core"
)

func TestBlinkCount(t *testing.T) {
	cases := []struct {
		errs core.ErrorCode
		want uint32
	}{
		{core.ErrorNone, 0},
		{core.ErrorGeneral, 1},
		{core.ErrorEstop | core.ErrorOverCurrent, 2},
		{core.ErrorWatchdogTimeout, 7},
		{core.ErrorI2CFault, MaxBlinks},
	}
	for _, tc := range cases {
		if got := BlinkCount(tc.errs); got != tc.want {
			t.Errorf("BlinkCount(%v) = %d, want %d", tc.errs, got, tc.want)
		}
	}
}

func TestBlinkCountUnknownFlag(t *testing.T) {
	if got := BlinkCount(core.ErrorCode(1) << 30); got != MaxBlinks {
		t.Errorf("unknown flag = %d blinks", got)
	}
}
