package core

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
)

func TestControllerBootsDisabled(t *testing.T) {
	c, tb := newTestController(testConfig())

	if c.Mode() != ModeDisabled {
		t.Errorf("boot mode = %v, want disabled", c.Mode())
	}
	if c.Errors() != ErrorNone {
		t.Errorf("boot errors = %v", c.Errors())
	}
	if tb.phases.enabled {
		t.Error("bridge enabled at boot")
	}
	if c.DeviceID() != DefaultDeviceID {
		t.Errorf("device id = %d", c.DeviceID())
	}
	if c.TorqueConstant() <= 0 {
		t.Error("torque constant not derived from the default profile")
	}
}

func TestDisabledToPositionRejected(t *testing.T) {
	c, _ := newTestController(testConfig())

	if c.SetMode(ModePosition) {
		t.Fatal("Disabled -> Position accepted")
	}
	if c.Mode() != ModeDisabled {
		t.Errorf("mode = %v, want disabled", c.Mode())
	}
	if !c.Errors().Has(ErrorInvalidMode) {
		t.Errorf("errors = %v, want invalid_mode", c.Errors())
	}
}

func TestModeTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   Mode
		to     Mode
		debug  bool
		accept bool
	}{
		{"disabled to idle", ModeDisabled, ModeIdle, false, true},
		{"disabled to current", ModeDisabled, ModeCurrent, false, false},
		{"disabled to calibration", ModeDisabled, ModeCalibration, false, false},
		{"disabled to debug off", ModeDisabled, ModeDebug, false, false},
		{"disabled to debug on", ModeDisabled, ModeDebug, true, true},
		{"idle to torque", ModeIdle, ModeTorque, false, true},
		{"idle to damping", ModeIdle, ModeDamping, false, true},
		{"idle to calibration", ModeIdle, ModeCalibration, false, true},
		{"idle to vqd override", ModeIdle, ModeVqdOverride, false, true},
		{"idle to disabled", ModeIdle, ModeDisabled, false, true},
		{"velocity to position", ModeVelocity, ModePosition, false, true},
		{"position to current", ModePosition, ModeCurrent, false, true},
		{"velocity to damping", ModeVelocity, ModeDamping, false, false},
		{"velocity to iqd override", ModeVelocity, ModeIqdOverride, false, false},
		{"velocity to idle", ModeVelocity, ModeIdle, false, true},
		{"damping to position", ModeDamping, ModePosition, false, false},
		{"vabc to valphabeta", ModeVabcOverride, ModeValphabetaOverride, false, false},
		{"calibration to idle", ModeCalibration, ModeIdle, false, true},
		{"idle to undefined", ModeIdle, Mode(0x42), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DebugModeEnabled = tt.debug
			c, _ := newTestController(cfg)

			if tt.from != ModeDisabled && !enter(c, tt.from) {
				t.Fatalf("could not reach %v", tt.from)
			}
			got := c.SetMode(tt.to)
			if got != tt.accept {
				t.Fatalf("SetMode(%v) from %v = %v, want %v", tt.to, tt.from, got, tt.accept)
			}
			if tt.accept && c.Mode() != tt.to {
				t.Errorf("mode = %v, want %v", c.Mode(), tt.to)
			}
			if !tt.accept {
				if c.Mode() != tt.from {
					t.Errorf("mode changed to %v on a rejected request", c.Mode())
				}
				if !c.Errors().Has(ErrorInvalidMode) {
					t.Error("rejected request did not raise invalid_mode")
				}
			}
		})
	}
}

func TestIdleRequiresCleanErrors(t *testing.T) {
	c, _ := newTestController(testConfig())
	c.Raise(ErrorOverTemperature)

	if c.SetMode(ModeIdle) {
		t.Fatal("Disabled -> Idle accepted with errors set")
	}
	if !c.ClearErrors() {
		t.Fatal("ClearErrors refused in Disabled")
	}
	if !c.SetMode(ModeIdle) {
		t.Fatal("Disabled -> Idle refused after clearing")
	}
}

func TestClearErrorsOnlyWhenStopped(t *testing.T) {
	c, _ := newTestController(testConfig())
	if !enter(c, ModeTorque) {
		t.Fatal("could not enter torque mode")
	}
	// raise without a tick so the mode is still active
	c.Raise(ErrorInvalidMode)
	if c.ClearErrors() {
		t.Error("ClearErrors honoured in torque mode")
	}
	if c.Errors() == ErrorNone {
		t.Error("errors cleared in torque mode")
	}
}

func TestErrorForcesSafeModeNextTick(t *testing.T) {
	flags := []ErrorCode{
		ErrorGeneral, ErrorEstop, ErrorInitialization, ErrorCalibration,
		ErrorPowerstage, ErrorInvalidMode, ErrorWatchdogTimeout, ErrorOverVoltage,
		ErrorOverCurrent, ErrorOverTemperature, ErrorCANRxFault, ErrorCANTxFault,
		ErrorI2CFault,
	}

	for _, flag := range flags {
		for _, tick := range []string{"commutation", "position"} {
			t.Run(flag.String()+"/"+tick, func(t *testing.T) {
				c, _ := newTestController(testConfig())
				if !enter(c, ModeVelocity) {
					t.Fatal("could not enter velocity mode")
				}
				c.Raise(flag)

				if tick == "commutation" {
					c.CommutationTick()
				} else {
					c.PositionTick(GetTime())
				}

				want := ModeDisabled
				if flag == ErrorInvalidMode || flag == ErrorCalibration {
					want = ModeIdle
				}
				if c.Mode() != want {
					t.Errorf("mode = %v, want %v", c.Mode(), want)
				}
				if !c.Mode().IsSafe() {
					t.Error("mode not safe one tick after a fault")
				}
			})
		}
	}
}

func TestDisabledNeverRaisedToIdle(t *testing.T) {
	c, _ := newTestController(testConfig())
	c.Raise(ErrorInvalidMode)
	c.PositionTick(GetTime())
	if c.Mode() != ModeDisabled {
		t.Errorf("mode = %v, want disabled", c.Mode())
	}
}

func TestWatchdogTimeoutInVelocity(t *testing.T) {
	SetTime(5000)
	c, _ := newTestController(testConfig())
	if !enter(c, ModeVelocity) {
		t.Fatal("could not enter velocity mode")
	}

	start := GetTime()
	c.PositionTick(start + TimerFromMS(50))
	if c.Mode() != ModeVelocity {
		t.Fatalf("mode = %v before the timeout", c.Mode())
	}

	c.PositionTick(start + TimerFromMS(DefaultWatchdogTimeoutMS+1))
	if !c.Errors().Has(ErrorWatchdogTimeout) {
		t.Errorf("errors = %v, want watchdog_timeout", c.Errors())
	}
	if c.Mode() != ModeDisabled {
		t.Errorf("mode = %v, want disabled", c.Mode())
	}
	if _, ok := LastEvent(EvtWatchdog); !ok {
		t.Error("watchdog event not recorded")
	}
}

func TestWatchdogFedByTraffic(t *testing.T) {
	SetTime(0)
	c, _ := newTestController(testConfig())
	if !enter(c, ModeVelocity) {
		t.Fatal("could not enter velocity mode")
	}

	now := uint32(0)
	for i := 0; i < 10; i++ {
		now += TimerFromMS(60)
		c.Feed(now)
		c.PositionTick(now + TimerFromMS(1))
	}
	if c.Mode() != ModeVelocity {
		t.Errorf("mode = %v, errors = %v", c.Mode(), c.Errors())
	}
}

func TestWatchdogIgnoredWhileStopped(t *testing.T) {
	SetTime(0)
	c, _ := newTestController(testConfig())
	c.SetMode(ModeIdle)
	c.PositionTick(TimerFromMS(10 * DefaultWatchdogTimeoutMS))
	if c.Errors() != ErrorNone {
		t.Errorf("errors = %v in idle", c.Errors())
	}
}

func TestWatchdogDisabledByZeroTimeout(t *testing.T) {
	SetTime(0)
	c, _ := newTestController(testConfig())
	c.Watchdog.SetTimeout(0)
	if !enter(c, ModeVelocity) {
		t.Fatal("could not enter velocity mode")
	}
	c.PositionTick(TimerFromMS(10000))
	if c.Mode() != ModeVelocity {
		t.Errorf("mode = %v with the watchdog off", c.Mode())
	}
}

func TestEstop(t *testing.T) {
	c, tb := newTestController(testConfig())
	if !enter(c, ModeTorque) {
		t.Fatal("could not enter torque mode")
	}
	if !tb.phases.enabled {
		t.Fatal("bridge not enabled in torque mode")
	}

	c.Estop()
	if c.Mode() != ModeDisabled {
		t.Errorf("mode = %v after estop", c.Mode())
	}
	if !c.Errors().Has(ErrorEstop) {
		t.Errorf("errors = %v after estop", c.Errors())
	}
	if tb.phases.enabled {
		t.Error("bridge still enabled after estop")
	}
}

func TestOverCurrentTripsWhileStopped(t *testing.T) {
	c, tb := newTestController(testConfig())
	c.SetMode(ModeIdle)

	tb.adc.ia, tb.adc.ib, tb.adc.ic = 35, -17.5, -17.5
	c.CommutationTick()

	if !c.Errors().Has(ErrorOverCurrent) {
		t.Errorf("errors = %v, want over_current", c.Errors())
	}
	if c.Mode() != ModeDisabled {
		t.Errorf("mode = %v, want disabled", c.Mode())
	}
}

func TestBusVoltageChecks(t *testing.T) {
	c, tb := newTestController(testConfig())
	tb.adc.vbus = 0

	c.CommutationTick()
	if c.Errors() != ErrorNone {
		t.Fatalf("undervoltage raised while disabled: %v", c.Errors())
	}

	c2, tb2 := newTestController(testConfig())
	if !enter(c2, ModeCurrent) {
		t.Fatal("could not enter current mode")
	}
	tb2.adc.vbus = 0
	c2.CommutationTick()
	if !c2.Errors().Has(ErrorPowerstage) {
		t.Errorf("errors = %v, want powerstage", c2.Errors())
	}
	if c2.Mode() != ModeDisabled {
		t.Errorf("mode = %v, want disabled", c2.Mode())
	}

	c3, tb3 := newTestController(testConfig())
	if !enter(c3, ModeCurrent) {
		t.Fatal("could not enter current mode")
	}
	tb3.adc.vbus = 60
	c3.CommutationTick()
	if !c3.Errors().Has(ErrorOverVoltage) {
		t.Errorf("errors = %v, want over_voltage", c3.Errors())
	}
}

func TestADCErrorRaisesPowerstage(t *testing.T) {
	c, tb := newTestController(testConfig())
	tb.adc.err = errors.New("adc timeout")
	c.CommutationTick()
	if !c.Errors().Has(ErrorPowerstage) {
		t.Errorf("errors = %v", c.Errors())
	}
}

func TestEncoderFailures(t *testing.T) {
	c, tb := newTestController(testConfig())
	tb.encoder.err = errors.New("nack")

	for i := 0; i < MaxEncoderFailures-1; i++ {
		c.EncoderTick()
	}
	if c.Errors() != ErrorNone {
		t.Fatalf("fault after %d failures", MaxEncoderFailures-1)
	}

	// a good read resets the count
	tb.encoder.err = nil
	c.EncoderTick()
	tb.encoder.err = errors.New("nack")
	for i := 0; i < MaxEncoderFailures-1; i++ {
		c.EncoderTick()
	}
	if c.Errors() != ErrorNone {
		t.Fatal("failure count not reset by a good read")
	}

	c.EncoderTick()
	if !c.Errors().Has(ErrorI2CFault) {
		t.Errorf("errors = %v, want i2c_fault", c.Errors())
	}
}

func TestClosedLoopEntryLatchesPosition(t *testing.T) {
	c, tb := newTestController(testConfig())
	tb.encoder.raw = 1024 // quarter turn
	c.EncoderTick()
	c.SetMode(ModeIdle)
	c.PositionTick(GetTime())

	c.Position.PositionTarget.Store(10)
	c.Position.VelocityIntegrator.Store(0.05)
	c.Current.IQTarget.Store(2)

	if !c.SetMode(ModePosition) {
		t.Fatal("Idle -> Position refused")
	}
	want := math32.Pi / 2
	if got := c.Position.PositionTarget.Load(); math32.Abs(got-want) > 1e-4 {
		t.Errorf("position target = %v, want %v", got, want)
	}
	if c.Position.VelocityIntegrator.Load() != 0 {
		t.Error("velocity integrator not reset on entry")
	}
	if c.Current.IQTarget.Load() != 0 {
		t.Error("current target not cleared on entry")
	}
}

func TestVelocityToPositionLatchesTarget(t *testing.T) {
	c, tb := newTestController(testConfig())
	c.EncoderTick()
	if !enter(c, ModeVelocity) {
		t.Fatal("could not enter velocity mode")
	}
	tb.encoder.raw = 2048
	c.EncoderTick()
	c.PositionTick(GetTime())

	if !c.SetMode(ModePosition) {
		t.Fatal("Velocity -> Position refused")
	}
	if got := c.Position.PositionTarget.Load(); math32.Abs(got-math32.Pi) > 1e-3 {
		t.Errorf("position target = %v, want pi", got)
	}
}

func TestDampingShortsWindings(t *testing.T) {
	c, tb := newTestController(testConfig())
	c.EncoderTick()
	if !enter(c, ModeDamping) {
		t.Fatal("could not enter damping mode")
	}
	c.CommutationTick()

	if !tb.phases.enabled {
		t.Error("bridge disabled in damping")
	}
	if tb.phases.a != 0 || tb.phases.b != 0 || tb.phases.c != 0 {
		t.Errorf("duties = %v %v %v, want 0 0 0", tb.phases.a, tb.phases.b, tb.phases.c)
	}
}

func TestVabcOverrideHonoursPhaseOrder(t *testing.T) {
	c, tb := newTestController(testConfig())
	c.EncoderTick()

	p := c.Profile()
	p.PhaseOrder = -1
	if err := c.SetProfile(p); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}
	if !enter(c, ModeVabcOverride) {
		t.Fatal("could not enter vabc override")
	}
	c.Current.VASetpoint.Store(2.4)
	c.Current.VBSetpoint.Store(4.8)
	c.Current.VCSetpoint.Store(7.2)
	c.CommutationTick()

	const eps = 1e-3
	if math32.Abs(tb.phases.a-0.6) > eps || math32.Abs(tb.phases.b-0.8) > eps || math32.Abs(tb.phases.c-0.7) > eps {
		t.Errorf("duties = %.3f %.3f %.3f, want 0.6 0.8 0.7", tb.phases.a, tb.phases.b, tb.phases.c)
	}
}

func TestIqdOverrideZeroesIntegrators(t *testing.T) {
	c, _ := newTestController(testConfig())
	c.EncoderTick()
	if !enter(c, ModeIqdOverride) {
		t.Fatal("could not enter iqd override")
	}
	c.Current.IQIntegrator.Store(3)
	c.Current.IDIntegrator.Store(-4)
	c.Current.IQSetpoint.Store(0.5)

	c.CommutationTick()
	if c.Current.IQIntegrator.Load() != 0 || c.Current.IDIntegrator.Load() != 0 {
		t.Errorf("integrators = %v %v, want 0 0",
			c.Current.IQIntegrator.Load(), c.Current.IDIntegrator.Load())
	}
	if c.Current.IQSetpoint.Load() != 0.5 {
		t.Error("iq setpoint overwritten in iqd override")
	}
}

func TestSetProfileOnlyWhenStopped(t *testing.T) {
	c, tb := newTestController(testConfig())
	if err := c.SetProfile(ProfileMAD5010110KV); err != nil {
		t.Fatalf("SetProfile while disabled: %v", err)
	}
	if c.Encoder.PolePairs() != ProfileMAD5010110KV.PolePairs {
		t.Error("pole pairs not propagated to the encoder")
	}
	if math32.Abs(c.TorqueConstant()-ProfileMAD5010110KV.TorqueConstant()) > 1e-6 {
		t.Error("torque constant not updated")
	}

	bad := ProfileMAD5010110KV
	bad.PolePairs = 0
	if err := c.SetProfile(bad); err != ErrPolePairs {
		t.Errorf("invalid profile: err = %v", err)
	}

	tb.encoder.raw = 0
	if !enter(c, ModeTorque) {
		t.Fatal("could not enter torque mode")
	}
	if err := c.SetProfile(DefaultProfile); err != ErrProfileBusy {
		t.Errorf("SetProfile while running: err = %v, want ErrProfileBusy", err)
	}
}

func TestDisabledEntryResetsOutputs(t *testing.T) {
	c, _ := newTestController(testConfig())
	c.EncoderTick()
	if !enter(c, ModeCurrent) {
		t.Fatal("could not enter current mode")
	}
	c.Current.IQTarget.Store(1)
	for i := 0; i < 10; i++ {
		c.CommutationTick()
	}
	if c.Current.IQIntegrator.Load() == 0 {
		t.Fatal("integrator did not move")
	}

	c.SetMode(ModeDisabled)
	if c.Current.IQIntegrator.Load() != 0 || c.Current.VQSetpoint.Load() != 0 {
		t.Error("disabled entry did not zero integrator and outputs")
	}
	va, vb, vc := c.Current.Outputs()
	if va != 0 || vb != 0 || vc != 0 {
		t.Errorf("outputs = %v %v %v", va, vb, vc)
	}
}

func TestSetDeviceID(t *testing.T) {
	c, _ := newTestController(testConfig())
	if !c.SetDeviceID(9) || c.DeviceID() != 9 {
		t.Error("SetDeviceID(9) failed while disabled")
	}
	if c.SetDeviceID(0) || c.SetDeviceID(64) {
		t.Error("out of range device id accepted")
	}
	enter(c, ModeTorque)
	if c.SetDeviceID(3) {
		t.Error("device id changed while running")
	}
}

func TestNewControllerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DeviceID = 70
	if _, err := NewController(cfg, Board{}); err == nil {
		t.Error("device id 70 accepted")
	}
}
