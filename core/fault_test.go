package core

import "testing"

func TestErrorSafeMode(t *testing.T) {
	cases := []struct {
		errs ErrorCode
		from Mode
		want Mode
	}{
		{ErrorNone, ModeVelocity, ModeVelocity},
		{ErrorInvalidMode, ModeVelocity, ModeIdle},
		{ErrorCalibration, ModeCalibration, ModeIdle},
		{ErrorOverCurrent, ModeVelocity, ModeDisabled},
		{ErrorWatchdogTimeout | ErrorInvalidMode, ModeIdle, ModeDisabled},
		{ErrorInvalidMode, ModeDisabled, ModeDisabled},
	}
	for _, tc := range cases {
		if got := tc.errs.SafeMode(tc.from); got != tc.want {
			t.Errorf("%v in %v: got %v, want %v", tc.errs, tc.from, got, tc.want)
		}
	}
}

func TestErrorString(t *testing.T) {
	if ErrorNone.String() != "none" {
		t.Errorf("none = %q", ErrorNone.String())
	}
	e := ErrorEstop | ErrorOverCurrent
	if e.String() != "estop|over_current" {
		t.Errorf("string = %q", e.String())
	}
	if e.Lowest() != 1 {
		t.Errorf("lowest = %d", e.Lowest())
	}
	if (ErrorCode(1) << 20).String() != "0x100000" {
		t.Errorf("unknown flag = %q", (ErrorCode(1) << 20).String())
	}
}

func TestModeClasses(t *testing.T) {
	for m := range modeNames {
		safe := m == ModeDisabled || m == ModeIdle
		if m.IsSafe() != safe {
			t.Errorf("%v IsSafe = %v", m, m.IsSafe())
		}
		if m.IsClosedLoop() && m.IsOverride() {
			t.Errorf("%v is both closed-loop and override", m)
		}
		parsed, ok := ParseMode(m.String())
		if !ok || parsed != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), parsed, ok)
		}
	}
	if Mode(0x7F).Valid() {
		t.Error("0x7f is not a mode")
	}
}

func TestProfiles(t *testing.T) {
	for _, name := range ProfileNames() {
		p, err := LookupProfile(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
		if p.TorqueConstant() <= 0 {
			t.Errorf("%s: Kt = %v", name, p.TorqueConstant())
		}
	}
	if _, err := LookupProfile("nope"); err != ErrUnknownProfile {
		t.Errorf("unknown preset: %v", err)
	}

	bad := DefaultProfile
	bad.PhaseOrder = 0
	if bad.Validate() != ErrPhaseOrder {
		t.Error("phase order 0 accepted")
	}
}

func TestEventRing(t *testing.T) {
	ClearEvents()
	for i := uint32(0); i < EventRingSize+3; i++ {
		RecordEvent(EvtFault, i, 0)
	}
	evts := Events()
	if len(evts) != EventRingSize {
		t.Fatalf("events = %d", len(evts))
	}
	if evts[0].Value1 != 3 || evts[len(evts)-1].Value1 != EventRingSize+2 {
		t.Errorf("ring order = %d..%d", evts[0].Value1, evts[len(evts)-1].Value1)
	}
	if _, ok := LastEvent(EvtEstop); ok {
		t.Error("found an event that was never recorded")
	}

	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(nil)
	DumpEvents()
	if len(lines) != EventRingSize+2 {
		t.Errorf("dump lines = %d", len(lines))
	}
}

func TestStrutil(t *testing.T) {
	if itoa(-42) != "-42" || utoa(0) != "0" || hex32(0xBEEF) != "BEEF" {
		t.Error("integer formatting")
	}
	if got := ftoa(-1.5); got != "-1.500" {
		t.Errorf("ftoa = %q", got)
	}
}
