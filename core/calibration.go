package core

import (
	"github.com/chewxy/math32"

	"gorecoil/foc"
)

// Calibration timing, in seconds
const (
	CalibrationAlignTime  = 0.5
	CalibrationSweepTurns = 4   // electrical revolutions each way
	CalibrationSweepRate  = 4   // electrical revolutions per second
	CalibrationPoleSlack  = 0.2 // tolerated relative error of the measured pole pair count
)

// Calibration stages
const (
	calIdle uint8 = iota
	calAlign
	calForward
	calBackward
	calSettle
	calDone
	calFailed
)

// Calibration finds the flux offset by locking the rotor to a known
// electrical angle with the calibration current, then sweeps the field a few
// revolutions each way to check encoder direction and pole pair count.
// It runs from the position tick while the mode is Calibration and writes
// the α/β voltage directly.
type Calibration struct {
	c *Controller

	stage    uint8
	ticks    uint32
	theta    float32 // commanded electrical angle
	startPos float32 // mechanical position after alignment
	sumSin   float32
	sumCos   float32
	prevOff  float32
	result   float32

	alignTicks uint32
	dTheta     float32
}

func newCalibration(c *Controller) *Calibration {
	hz := c.cfg.PositionUpdateFreq
	return &Calibration{
		c:          c,
		alignTicks: uint32(CalibrationAlignTime * hz),
		dTheta:     foc.TwoPi * CalibrationSweepRate / hz,
	}
}

// Stage returns the current stage, for telemetry and tests.
func (k *Calibration) Stage() uint8 { return k.stage }

// Result returns the last measured flux offset.
func (k *Calibration) Result() float32 { return k.result }

// Running reports whether a calibration is in progress.
func (k *Calibration) Running() bool {
	return k.stage != calIdle && k.stage != calDone && k.stage != calFailed
}

func (k *Calibration) start() {
	k.prevOff = k.c.Encoder.FluxOffset()
	k.c.Encoder.SetFluxOffset(0)
	k.stage = calAlign
	k.ticks = 0
	k.theta = 0
	k.sumSin, k.sumCos = 0, 0
	RecordEvent(EvtCalibration, uint32(calAlign), 0)
}

// abort restores the previous flux offset if the routine did not finish.
func (k *Calibration) abort() {
	if k.Running() {
		k.c.Encoder.SetFluxOffset(k.prevOff)
		k.stage = calFailed
	}
	k.drive(0, 0)
}

func (k *Calibration) drive(v, theta float32) {
	s, c := foc.SinCos(theta)
	k.c.Current.VAlphaSetpoint.Store(v * c)
	k.c.Current.VBetaSetpoint.Store(v * s)
}

// sampleOffset accumulates the angle between the rotor and the field.
func (k *Calibration) sampleOffset() {
	s := k.c.Encoder.Sample()
	e := s.Electrical - k.theta
	sn, cs := foc.SinCos(e)
	k.sumSin += sn
	k.sumCos += cs
}

func (k *Calibration) step(vbus float32) {
	if !k.Running() {
		return
	}
	p := k.c.Profile()
	v := p.CalibrationCurrent * p.PhaseResistance
	if vbus > 0 {
		v = foc.Clamp(v, 0, vbus*foc.InvSqrt3)
	}

	k.ticks++
	switch k.stage {
	case calAlign:
		k.drive(v, 0)
		if k.ticks >= k.alignTicks {
			k.sampleOffset()
			k.startPos = k.c.Encoder.Sample().Position
			k.next(calForward)
		}
	case calForward:
		k.theta += k.dTheta
		k.drive(v, k.theta)
		if k.theta >= CalibrationSweepTurns*foc.TwoPi {
			k.theta = CalibrationSweepTurns * foc.TwoPi
			if !k.checkSweep(p) {
				k.fail()
				return
			}
			k.next(calBackward)
		}
	case calBackward:
		k.theta -= k.dTheta
		if k.theta <= 0 {
			k.theta = 0
			k.next(calSettle)
		}
		k.drive(v, k.theta)
	case calSettle:
		k.drive(v, 0)
		if k.ticks >= k.alignTicks {
			k.sampleOffset()
			k.finish()
		}
	}
}

func (k *Calibration) next(stage uint8) {
	k.stage = stage
	k.ticks = 0
	RecordEvent(EvtCalibration, uint32(stage), 0)
}

// checkSweep verifies that the rotor followed the field in the positive
// direction by about 1/pole_pairs of the electrical travel.
func (k *Calibration) checkSweep(p MotorProfile) bool {
	moved := k.c.Encoder.Sample().Position - k.startPos
	if moved <= 0 {
		return false
	}
	expected := CalibrationSweepTurns * foc.TwoPi / float32(p.PolePairs)
	return math32.Abs(moved/expected-1) <= CalibrationPoleSlack
}

func (k *Calibration) finish() {
	off := foc.WrapAngle(math32.Atan2(k.sumSin, k.sumCos))
	k.result = off
	k.drive(0, 0)
	k.stage = calDone
	RecordEvent(EvtCalibration, uint32(calDone), 1)

	// the profile can only change once the bridge is idle
	if !k.c.SetMode(ModeIdle) {
		k.c.Encoder.SetFluxOffset(k.prevOff)
		return
	}
	err := k.c.updateProfile(func(p *MotorProfile) { p.FluxOffset = off })
	if err != nil {
		k.c.Encoder.SetFluxOffset(k.prevOff)
		k.c.Raise(ErrorCalibration)
	}
}

func (k *Calibration) fail() {
	k.abort()
	RecordEvent(EvtCalibration, uint32(calFailed), 0)
	k.c.Raise(ErrorCalibration)
	k.c.supervise()
}
