package core

import "gorecoil/foc"

// Current controller defaults
const (
	DefaultCurrentKP          = 30
	DefaultCurrentKI          = 0.01
	DefaultCurrentFilterAlpha = 0.2
	IntegratorLimit           = 5
)

// CurrentController is the innermost PI loop. Update runs once per
// commutation tick; every field the CAN dispatcher touches is an atomic cell.
type CurrentController struct {
	IAMeasured Float32
	IBMeasured Float32
	ICMeasured Float32

	IAlphaMeasured Float32
	IBetaMeasured  Float32

	IQTarget     Float32
	IDTarget     Float32
	IQMeasured   Float32
	IDMeasured   Float32
	IQSetpoint   Float32
	IDSetpoint   Float32
	IQIntegrator Float32
	IDIntegrator Float32

	VQTarget       Float32
	VDTarget       Float32
	VQSetpoint     Float32
	VDSetpoint     Float32
	VAlphaSetpoint Float32
	VBetaSetpoint  Float32
	VASetpoint     Float32
	VBSetpoint     Float32
	VCSetpoint     Float32

	KP          Float32
	KI          Float32
	FilterAlpha Float32
	Bandwidth   Float32
	Limit       Float32

	sampleHz float32
}

// NewCurrentController returns a controller with the default gains.
func NewCurrentController(cfg *Config) *CurrentController {
	c := &CurrentController{sampleHz: cfg.CommutationFreq}
	c.KP.Store(DefaultCurrentKP)
	c.KI.Store(DefaultCurrentKI)
	c.FilterAlpha.Store(DefaultCurrentFilterAlpha)
	c.Bandwidth.Store(cfg.CurrentLoopBandwidth)
	c.Limit.Store(cfg.CurrentLimit)
	return c
}

// SetBandwidth derives the measurement filter coefficient from a cutoff.
func (c *CurrentController) SetBandwidth(hz float32) {
	c.Bandwidth.Store(hz)
	c.FilterAlpha.Store(foc.LowPassAlpha(hz, c.sampleHz))
}

// SetPhaseCurrents stores the latest phase current sample.
func (c *CurrentController) SetPhaseCurrents(ia, ib, ic float32) {
	c.IAMeasured.Store(ia)
	c.IBMeasured.Store(ib)
	c.ICMeasured.Store(ic)
}

// Measure runs the Clarke/Park transforms and the measurement filter. It is
// the first half of Update and also keeps telemetry live while stopped.
func (c *CurrentController) Measure(sinTheta, cosTheta float32) {
	alpha, beta := foc.Clarke(c.IAMeasured.Load(), c.IBMeasured.Load(), c.ICMeasured.Load())
	c.IAlphaMeasured.Store(alpha)
	c.IBetaMeasured.Store(beta)

	iq, id := foc.Park(alpha, beta, sinTheta, cosTheta)

	a := c.FilterAlpha.Load()
	mq := c.IQMeasured.Load()
	md := c.IDMeasured.Load()
	c.IQMeasured.Store(mq + a*(iq-mq))
	c.IDMeasured.Store(md + a*(id-md))
}

// Update runs one commutation step for mode. Out-of-range values are
// clamped; there is no failure path.
func (c *CurrentController) Update(mode Mode, sinTheta, cosTheta, vbus float32) {
	c.Measure(sinTheta, cosTheta)

	if mode != ModeIqdOverride {
		sq := c.IQTarget.Load() - c.IQMeasured.Load()
		sd := c.IDTarget.Load() - c.IDMeasured.Load()
		c.IQSetpoint.Store(sq)
		c.IDSetpoint.Store(sd)

		ki := c.KI.Load()
		c.IQIntegrator.Store(foc.Clamp(c.IQIntegrator.Load()+ki*sq, -IntegratorLimit, IntegratorLimit))
		c.IDIntegrator.Store(foc.Clamp(c.IDIntegrator.Load()+ki*sd, -IntegratorLimit, IntegratorLimit))
	} else {
		c.clearIntegrators()
	}

	// the PI output is unused while the voltage is commanded directly
	if mode == ModeVqdOverride || mode == ModeValphabetaOverride ||
		mode == ModeVabcOverride || mode == ModeCalibration {
		c.clearIntegrators()
	}

	vq, vd := c.VQSetpoint.Load(), c.VDSetpoint.Load()
	if mode == ModeVqdOverride {
		vq, vd = c.VQTarget.Load(), c.VDTarget.Load()
	} else {
		kp := c.KP.Load()
		vq = kp*c.IQSetpoint.Load() + c.IQIntegrator.Load()
		vd = kp*c.IDSetpoint.Load() + c.IDIntegrator.Load()
	}

	if vbus > 0 {
		vq, vd = foc.ClampMagnitude(vq, vd, foc.OvermodulationFactor*vbus*vbus)
	}
	c.VQSetpoint.Store(vq)
	c.VDSetpoint.Store(vd)

	if mode != ModeValphabetaOverride && mode != ModeCalibration {
		va, vb := foc.InvPark(vq, vd, sinTheta, cosTheta)
		c.VAlphaSetpoint.Store(va)
		c.VBetaSetpoint.Store(vb)
	}

	if mode != ModeVabcOverride {
		a, b, cc := foc.InvClarkeSVPWM(c.VAlphaSetpoint.Load(), c.VBetaSetpoint.Load())
		c.VASetpoint.Store(a)
		c.VBSetpoint.Store(b)
		c.VCSetpoint.Store(cc)
	}
}

// Outputs returns the phase voltage commands of the last Update.
func (c *CurrentController) Outputs() (va, vb, vc float32) {
	return c.VASetpoint.Load(), c.VBSetpoint.Load(), c.VCSetpoint.Load()
}

func (c *CurrentController) clearIntegrators() {
	c.IQIntegrator.Store(0)
	c.IDIntegrator.Store(0)
}

// Reset zeroes the integrators and every output voltage so the bridge sees
// a null vector on the next PWM update.
func (c *CurrentController) Reset() {
	c.clearIntegrators()
	c.IQSetpoint.Store(0)
	c.IDSetpoint.Store(0)
	c.VQSetpoint.Store(0)
	c.VDSetpoint.Store(0)
	c.VAlphaSetpoint.Store(0)
	c.VBetaSetpoint.Store(0)
	c.VASetpoint.Store(0)
	c.VBSetpoint.Store(0)
	c.VCSetpoint.Store(0)
}

// ClearTargets zeroes every externally writable target.
func (c *CurrentController) ClearTargets() {
	c.IQTarget.Store(0)
	c.IDTarget.Store(0)
	c.VQTarget.Store(0)
	c.VDTarget.Store(0)
}
