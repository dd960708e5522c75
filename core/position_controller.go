package core

import (
	"github.com/chewxy/math32"

	"gorecoil/foc"
)

// Position controller defaults
const (
	DefaultPositionKP        = 1
	DefaultVelocityKP        = 0.1
	DefaultTorqueLimit       = 0.1  // N·m
	DefaultVelocityLimit     = 20   // rad/s
	DefaultAccelerationLimit = 1000 // rad/s²
	AccelerationFilterHz     = 100
)

// PositionController is the position → velocity → torque cascade. Update
// runs once per position tick and writes the q-axis current target.
type PositionController struct {
	PositionKP  Float32
	PositionKI  Float32
	PositionKD  Float32
	PositionKDD Float32
	VelocityKP  Float32
	VelocityKI  Float32

	TorqueLimitLower       Float32
	TorqueLimitUpper       Float32
	VelocityLimitLower     Float32
	VelocityLimitUpper     Float32
	PositionLimitLower     Float32
	PositionLimitUpper     Float32
	AccelerationLimitLower Float32
	AccelerationLimitUpper Float32

	TorqueTarget   Float32
	TorqueMeasured Float32
	TorqueSetpoint Float32

	VelocityTarget   Float32
	VelocityMeasured Float32
	VelocitySetpoint Float32

	PositionTarget   Float32
	PositionMeasured Float32
	PositionSetpoint Float32

	AccelerationMeasured Float32
	VelocityIntegrator   Float32
	PositionIntegrator   Float32

	sampleHz     float32
	accelAlpha   float32
	prevVelocity float32
	primed       bool
}

// NewPositionController returns a cascade with conservative defaults and
// unbounded position limits.
func NewPositionController(cfg *Config) *PositionController {
	p := &PositionController{
		sampleHz:   cfg.PositionUpdateFreq,
		accelAlpha: foc.LowPassAlpha(AccelerationFilterHz, cfg.PositionUpdateFreq),
	}
	p.PositionKP.Store(DefaultPositionKP)
	p.VelocityKP.Store(DefaultVelocityKP)
	p.SetTorqueLimit(DefaultTorqueLimit)
	p.SetVelocityLimit(DefaultVelocityLimit)
	p.SetAccelerationLimit(DefaultAccelerationLimit)
	p.PositionLimitLower.Store(math32.Inf(-1))
	p.PositionLimitUpper.Store(math32.Inf(1))
	return p
}

// SetTorqueLimit sets a symmetric torque limit.
func (p *PositionController) SetTorqueLimit(limit float32) {
	limit = math32.Abs(limit)
	p.TorqueLimitLower.Store(-limit)
	p.TorqueLimitUpper.Store(limit)
}

// SetVelocityLimit sets a symmetric velocity limit.
func (p *PositionController) SetVelocityLimit(limit float32) {
	limit = math32.Abs(limit)
	p.VelocityLimitLower.Store(-limit)
	p.VelocityLimitUpper.Store(limit)
}

// SetAccelerationLimit sets a symmetric acceleration limit.
func (p *PositionController) SetAccelerationLimit(limit float32) {
	limit = math32.Abs(limit)
	p.AccelerationLimitLower.Store(-limit)
	p.AccelerationLimitUpper.Store(limit)
}

// Measure refreshes the measured quantities. It runs every position tick in
// every mode so telemetry stays live.
func (p *PositionController) Measure(s EncoderSample, iqMeasured, kt float32) {
	p.PositionMeasured.Store(s.Position)
	p.VelocityMeasured.Store(s.Velocity)

	if p.primed {
		raw := (s.Velocity - p.prevVelocity) * p.sampleHz
		acc := p.AccelerationMeasured.Load()
		p.AccelerationMeasured.Store(acc + p.accelAlpha*(raw-acc))
	}
	p.prevVelocity = s.Velocity
	p.primed = true

	p.TorqueMeasured.Store(iqMeasured * kt)
}

// Update runs the stages enabled by mode and returns the q-axis current
// target for the torque stage. ok is false when mode does not drive the
// current loop from here (Current mode, or any non closed-loop mode).
func (p *PositionController) Update(mode Mode, kt, currentLimit float32) (iqTarget float32, ok bool) {
	if !mode.IsClosedLoop() {
		return 0, false
	}

	velLo, velHi := p.VelocityLimitLower.Load(), p.VelocityLimitUpper.Load()
	torLo, torHi := p.TorqueLimitLower.Load(), p.TorqueLimitUpper.Load()

	if mode == ModePosition {
		sp := foc.Clamp(p.PositionTarget.Load(), p.PositionLimitLower.Load(), p.PositionLimitUpper.Load())
		p.PositionSetpoint.Store(sp)

		e := sp - p.PositionMeasured.Load()
		integ := foc.Clamp(p.PositionIntegrator.Load()+p.PositionKI.Load()*e, velLo, velHi)
		p.PositionIntegrator.Store(integ)

		target := p.PositionKP.Load()*e + integ -
			p.PositionKD.Load()*p.VelocityMeasured.Load() -
			p.PositionKDD.Load()*p.AccelerationMeasured.Load()
		p.VelocityTarget.Store(target)
	}

	if mode == ModeVelocity || mode == ModePosition {
		sp := foc.Clamp(p.VelocityTarget.Load(), velLo, velHi)
		// acceleration limit as a slew on the setpoint
		prev := p.VelocitySetpoint.Load()
		dt := 1 / p.sampleHz
		sp = foc.Clamp(sp, prev+p.AccelerationLimitLower.Load()*dt, prev+p.AccelerationLimitUpper.Load()*dt)
		p.VelocitySetpoint.Store(sp)

		e := sp - p.VelocityMeasured.Load()
		integ := foc.Clamp(p.VelocityIntegrator.Load()+p.VelocityKI.Load()*e, torLo, torHi)
		p.VelocityIntegrator.Store(integ)
		p.TorqueTarget.Store(p.VelocityKP.Load()*e + integ)
	}

	if mode == ModeCurrent {
		return 0, false
	}

	torque := foc.Clamp(p.TorqueTarget.Load(), torLo, torHi)
	p.TorqueSetpoint.Store(torque)
	if kt <= 0 {
		return 0, true
	}
	iq := torque / kt
	if currentLimit > 0 {
		iq = foc.Clamp(iq, -currentLimit, currentLimit)
	}
	return iq, true
}

// ResetIntegrators zeroes both cascade integrators.
func (p *PositionController) ResetIntegrators() {
	p.PositionIntegrator.Store(0)
	p.VelocityIntegrator.Store(0)
}

// Latch prepares the cascade for a closed-loop entry: the motor holds where
// it is and the velocity and torque demands start at zero.
func (p *PositionController) Latch() {
	p.ResetIntegrators()
	pos := p.PositionMeasured.Load()
	p.PositionTarget.Store(pos)
	p.PositionSetpoint.Store(pos)
	p.VelocityTarget.Store(0)
	p.VelocitySetpoint.Store(0)
	p.TorqueTarget.Store(0)
	p.TorqueSetpoint.Store(0)
}
