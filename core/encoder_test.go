package core

import (
	"testing"

	"github.com/chewxy/math32"

	"gorecoil/foc"
)

func TestEncoderMultiTurn(t *testing.T) {
	e := NewEncoder(12, 1, 10000, 1000)

	e.Update(4000)
	e.Update(100) // forward across zero
	s := e.Sample()
	if s.NRotations != 1 {
		t.Fatalf("rotations = %d, want 1", s.NRotations)
	}
	want := (1 + 100.0/4096) * foc.TwoPi
	if math32.Abs(s.Position-float32(want)) > 1e-4 {
		t.Errorf("position = %v, want %v", s.Position, want)
	}

	e.Update(4000) // and back
	if e.NRotations() != 0 {
		t.Errorf("rotations = %d, want 0", e.NRotations())
	}
}

func TestEncoderDirection(t *testing.T) {
	e := NewEncoder(12, -1, 10000, 1000)
	e.Update(1024)
	if s := e.Sample(); s.Raw != 3072 {
		t.Errorf("raw = %d, want 3072", s.Raw)
	}
}

func TestEncoderElectricalAngle(t *testing.T) {
	e := NewEncoder(12, 1, 10000, 1000)
	e.SetPolePairs(7)
	e.SetFluxOffset(0.5)

	e.Update(512) // 1/8 turn
	s := e.Sample()
	want := foc.WrapAngle(foc.TwoPi/8*7 - 0.5)
	if math32.Abs(s.Electrical-want) > 1e-4 {
		t.Errorf("electrical = %v, want %v", s.Electrical, want)
	}
	if s.Electrical < 0 || s.Electrical >= foc.TwoPi {
		t.Errorf("electrical %v outside [0, 2π)", s.Electrical)
	}
	sn, cs := foc.SinCos(want)
	if math32.Abs(s.Sin-sn) > 1e-3 || math32.Abs(s.Cos-cs) > 1e-3 {
		t.Error("sin/cos do not match the electrical angle")
	}
}

func TestEncoderVelocity(t *testing.T) {
	const hz = 10000
	e := NewEncoder(12, 1, hz, 100)
	raw := uint16(0)
	// 2 ticks per sample
	for i := 0; i < 2000; i++ {
		e.Update(raw)
		raw = (raw + 2) % 4096
	}
	want := float32(2) / 4096 * foc.TwoPi * hz
	if got := e.Sample().Velocity; math32.Abs(got-want)/want > 0.01 {
		t.Errorf("velocity = %v, want %v", got, want)
	}
}

func TestEncoderPositionOffset(t *testing.T) {
	e := NewEncoder(12, 1, 10000, 1000)
	e.SetPositionOffset(1)
	e.Update(0)
	if e.Sample().Position != -1 {
		t.Errorf("position = %v, want -1", e.Sample().Position)
	}
}
