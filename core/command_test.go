package core

import (
	"testing"

	"github.com/chewxy/math32"

	"gorecoil/protocol"
)

func TestParamTable(t *testing.T) {
	table := NewParamTable()

	var cell Float32
	table.Register(floatCell(protocol.CmdCurrentKP, &cell, anyMode))

	p, ok := table.Get(protocol.CmdCurrentKP)
	if !ok {
		t.Fatal("Failed to retrieve registered parameter")
	}
	if p.Name != "current_kp" {
		t.Errorf("Expected default name 'current_kp', got '%s'", p.Name)
	}

	got, err := table.Write(protocol.CmdCurrentKP, protocol.Float32Word(1.5), ModeIdle)
	if err != nil {
		t.Errorf("Write failed: %v", err)
	}
	if protocol.WordFloat32(got) != 1.5 || cell.Load() != 1.5 {
		t.Errorf("Expected 1.5, got reply %v cell %v", protocol.WordFloat32(got), cell.Load())
	}

	if _, err := table.Read(0x7F); err != ErrUnknownParam {
		t.Errorf("Expected ErrUnknownParam, got %v", err)
	}
	if _, err := table.Write(0x7F, 0, ModeIdle); err != ErrUnknownParam {
		t.Errorf("Expected ErrUnknownParam, got %v", err)
	}
}

func TestParamTableGates(t *testing.T) {
	table := NewParamTable()

	var target Float32
	target.Store(2)
	table.Register(floatCell(protocol.CmdTorqueTarget, &target, inMode(ModeTorque)))
	table.Register(floatRO(protocol.CmdTorqueMeasured, &target))

	got, err := table.Write(protocol.CmdTorqueTarget, protocol.Float32Word(5), ModeIdle)
	if err != ErrParamRejected {
		t.Errorf("Expected ErrParamRejected, got %v", err)
	}
	if protocol.WordFloat32(got) != 2 {
		t.Errorf("Rejected write should return the current value, got %v", protocol.WordFloat32(got))
	}

	if _, err := table.Write(protocol.CmdTorqueTarget, protocol.Float32Word(5), ModeTorque); err != nil {
		t.Errorf("Write in the gated mode failed: %v", err)
	}

	if _, err := table.Write(protocol.CmdTorqueMeasured, 0, ModeTorque); err != ErrParamReadOnly {
		t.Errorf("Expected ErrParamReadOnly, got %v", err)
	}
}

func TestParamTableSetterRefusal(t *testing.T) {
	table := NewParamTable()
	var bw Float32
	table.Register(floatFunc(protocol.CmdCurrentBandwidth, bw.Load, positive(bw.Store), anyMode))

	for _, v := range []float32{0, -1} {
		if _, err := table.Write(protocol.CmdCurrentBandwidth, protocol.Float32Word(v), ModeIdle); err != ErrParamRejected {
			t.Errorf("bandwidth %v: expected ErrParamRejected, got %v", v, err)
		}
	}
}

func TestRegisterParamsCoversEveryCommand(t *testing.T) {
	c, _ := newTestController(testConfig())
	table := NewParamTable()
	RegisterParams(table, c, newTelemetry(&Dispatcher{ctl: c}, 0))

	for _, info := range protocol.Commands() {
		if _, ok := table.Get(info.Code); !ok {
			t.Errorf("No accessor for %s", info.Name)
		}
	}
	if table.Count() != len(protocol.Commands()) {
		t.Errorf("Expected %d parameters, got %d", len(protocol.Commands()), table.Count())
	}
}

func TestStructuralParamsOnlyWhileStopped(t *testing.T) {
	c, _ := newTestController(testConfig())
	table := NewParamTable()
	RegisterParams(table, c, nil)

	enter(c, ModeCurrent)
	if _, err := table.Write(protocol.CmdMotorPolePairs, 7, c.Mode()); err != ErrParamRejected {
		t.Errorf("pole pairs written while running: %v", err)
	}
	if _, err := table.Write(protocol.CmdDeviceID, 5, c.Mode()); err != ErrParamRejected {
		t.Errorf("device id written while running: %v", err)
	}

	c.SetMode(ModeIdle)
	if _, err := table.Write(protocol.CmdMotorPolePairs, 7, c.Mode()); err != nil {
		t.Fatalf("pole pairs write: %v", err)
	}
	if c.Encoder.PolePairs() != 7 {
		t.Errorf("encoder pole pairs = %d", c.Encoder.PolePairs())
	}
	if _, err := table.Write(protocol.CmdMotorPhaseOrder, protocol.Int32Word(2), c.Mode()); err != ErrParamRejected {
		t.Errorf("phase order 2 accepted: %v", err)
	}
	if _, err := table.Write(protocol.CmdDeviceID, 64, c.Mode()); err != ErrParamRejected {
		t.Errorf("device id 64 accepted: %v", err)
	}
}

func TestFastFrameRateParam(t *testing.T) {
	c, _ := newTestController(testConfig())
	tel := newTelemetry(&Dispatcher{ctl: c}, 0)
	table := NewParamTable()
	RegisterParams(table, c, tel)

	if _, err := table.Write(protocol.CmdFastFrameRate, MaxFastFrameRate+1, ModeIdle); err != ErrParamRejected {
		t.Errorf("Expected rate above the maximum to be rejected, got %v", err)
	}
	if _, err := table.Write(protocol.CmdFastFrameRate, 250, ModeCurrent); err != nil {
		t.Errorf("rate write: %v", err)
	}
	if tel.Rate() != 250 {
		t.Errorf("rate = %d", tel.Rate())
	}
}

func TestNonFiniteWritesRefused(t *testing.T) {
	c, _ := newTestController(testConfig())
	table := NewParamTable()
	RegisterParams(table, c, nil)
	enter(c, ModeCurrent)

	nan := uint32(0x7fc00000)
	posInf := protocol.Float32Word(math32.Inf(1))
	c.Current.IQTarget.Store(0.5)

	for _, w := range []uint32{nan, posInf} {
		got, err := table.Write(protocol.CmdCurrentIQTarget, w, c.Mode())
		if err != ErrParamRejected {
			t.Errorf("word %#x: expected ErrParamRejected, got %v", w, err)
		}
		if protocol.WordFloat32(got) != 0.5 {
			t.Errorf("word %#x: target now %v, want 0.5", w, protocol.WordFloat32(got))
		}
		if _, err := table.Write(protocol.CmdCurrentKP, w, c.Mode()); err != ErrParamRejected {
			t.Errorf("word %#x: gain write expected ErrParamRejected, got %v", w, err)
		}
		if _, err := table.Write(protocol.CmdTorqueLimit, w, c.Mode()); err != ErrParamRejected {
			t.Errorf("word %#x: limit write expected ErrParamRejected, got %v", w, err)
		}
	}

	// travel bounds may be lifted but never NaN
	if _, err := table.Write(protocol.CmdPositionLimitHigh, posInf, c.Mode()); err != nil {
		t.Errorf("infinite position bound refused: %v", err)
	}
	if _, err := table.Write(protocol.CmdPositionLimitHigh, nan, c.Mode()); err != ErrParamRejected {
		t.Errorf("NaN position bound: expected ErrParamRejected, got %v", err)
	}
}

func TestWatchdogTimeoutParamBound(t *testing.T) {
	c, _ := newTestController(testConfig())
	table := NewParamTable()
	RegisterParams(table, c, nil)

	before := c.Watchdog.Timeout()
	if _, err := table.Write(protocol.CmdWatchdogTimeout, 400000, ModeIdle); err != ErrParamRejected {
		t.Errorf("Expected an unmeasurable timeout to be rejected, got %v", err)
	}
	if c.Watchdog.Timeout() != before {
		t.Errorf("timeout = %d, want %d", c.Watchdog.Timeout(), before)
	}
	if _, err := table.Write(protocol.CmdWatchdogTimeout, 5000, ModeIdle); err != nil {
		t.Errorf("timeout write: %v", err)
	}
}
