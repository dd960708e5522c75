package sim

import (
	"github.com/chewxy/math32"

	"gorecoil/core"
	"gorecoil/foc"
)

// Plant is a rigid-rotor PMSM behind an ideal three-phase bridge, with
// shunt and bus ADCs and an absolute angle sensor. It implements the core
// board drivers so a controller can close its loops against it.
type Plant struct {
	PolePairs        uint16
	Resistance       float32 // ohm
	Inductance       float32 // H
	FluxLinkage      float32 // Wb
	PhaseOrder       int8
	ElectricalOffset float32 // rad

	BusVoltage  float32 // V
	Inertia     float32 // kg·m²
	Friction    float32 // N·m·s/rad
	Load        float32 // N·m, external
	EncoderBits uint8

	theta float32 // [0, 2π)
	turns int32
	omega float32

	id, iq   float32
	currents [3]float32
	duty     [3]float32
	enabled  bool
}

// Default mechanical parameters: a bare outrunner on the bench
const (
	DefaultInertia  = 5e-5
	DefaultFriction = 1e-4
)

// NewPlant models the motor described by p on a bus of vbus volts.
func NewPlant(p core.MotorProfile, vbus float32, encoderBits uint8) *Plant {
	return &Plant{
		PolePairs:   p.PolePairs,
		Resistance:  p.PhaseResistance,
		Inductance:  p.PhaseInductance,
		FluxLinkage: p.FluxLinkage(),
		PhaseOrder:  p.PhaseOrder,
		BusVoltage:  vbus,
		Inertia:     DefaultInertia,
		Friction:    DefaultFriction,
		EncoderBits: encoderBits,
	}
}

// Step advances the model by dt seconds with the current bridge state.
func (p *Plant) Step(dt float32) {
	pp := float32(p.PolePairs)
	sin, cos := foc.SinCos(foc.WrapAngle(pp*p.theta - p.ElectricalOffset))

	if p.enabled {
		da, db, dc := p.duty[0], p.duty[1], p.duty[2]
		if p.PhaseOrder < 0 {
			db, dc = dc, db
		}
		mean := (da + db + dc) / 3
		alpha, beta := foc.Clarke((da-mean)*p.BusVoltage, (db-mean)*p.BusVoltage, (dc-mean)*p.BusVoltage)
		vq, vd := foc.Park(alpha, beta, sin, cos)

		// exact solution of L di/dt = v - R i over one step
		decay := math32.Exp(-p.Resistance * dt / p.Inductance)
		emf := pp * p.omega * p.FluxLinkage
		p.id = p.id*decay + vd/p.Resistance*(1-decay)
		p.iq = p.iq*decay + (vq-emf)/p.Resistance*(1-decay)
	} else {
		// floating phases
		p.id, p.iq = 0, 0
	}

	torque := 1.5*pp*p.FluxLinkage*p.iq - p.Friction*p.omega - p.Load
	p.omega += torque / p.Inertia * dt
	p.theta += p.omega * dt
	for p.theta >= foc.TwoPi {
		p.theta -= foc.TwoPi
		p.turns++
	}
	for p.theta < 0 {
		p.theta += foc.TwoPi
		p.turns--
	}

	alpha, beta := foc.InvPark(p.iq, p.id, sin, cos)
	a := alpha
	b := -0.5*alpha + 0.5*foc.Sqrt3*beta
	c := -0.5*alpha - 0.5*foc.Sqrt3*beta
	if p.PhaseOrder < 0 {
		b, c = c, b
	}
	p.currents = [3]float32{a, b, c}
}

// Position returns the multi-turn rotor angle in radians.
func (p *Plant) Position() float32 { return float32(p.turns)*foc.TwoPi + p.theta }

// Velocity returns the rotor speed in rad/s.
func (p *Plant) Velocity() float32 { return p.omega }

// Currents returns the rotor-frame currents.
func (p *Plant) Currents() (iq, id float32) { return p.iq, p.id }

// Enabled reports whether the gate driver is on.
func (p *Plant) Enabled() bool { return p.enabled }

func (p *Plant) SetDuty(a, b, c float32) { p.duty = [3]float32{a, b, c} }
func (p *Plant) Enable()                 { p.enabled = true }
func (p *Plant) Disable()                { p.enabled = false }

func currentCode(i float32) uint16 {
	code := core.ADCResolution/2 + i/core.ADCPhaseCurrentCoeff + 0.5
	return uint16(foc.Clamp(code, 0, core.ADCResolution-1))
}

func (p *Plant) ReadPhases() (a, b, c uint16, err error) {
	return currentCode(p.currents[0]), currentCode(p.currents[1]), currentCode(p.currents[2]), nil
}

func (p *Plant) ReadBus() (uint16, error) {
	code := p.BusVoltage/core.ADCBusVoltageCoeff + 0.5
	return uint16(foc.Clamp(code, 0, core.ADCResolution-1)), nil
}

func (p *Plant) ReadRaw() (uint16, error) {
	counts := float32(uint32(1) << p.EncoderBits)
	raw := uint32(p.theta / foc.TwoPi * counts)
	return uint16(raw & (1<<p.EncoderBits - 1)), nil
}
