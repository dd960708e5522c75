package core

import (
	"errors"

	"github.com/chewxy/math32"
)

// MotorProfile holds the electrical constants of the attached motor.
// It is a value: the controller swaps whole profiles inside a critical section.
type MotorProfile struct {
	Name               string
	PolePairs          uint16
	KV                 float32 // rpm/V
	PhaseResistance    float32 // ohm
	PhaseInductance    float32 // H
	CalibrationCurrent float32 // A
	PhaseOrder         int8    // +1 or -1
	FluxOffset         float32 // rad, written by calibration or flash
}

var (
	ErrPolePairs          = errors.New("motor profile: pole pairs must be > 0")
	ErrKV                 = errors.New("motor profile: kv rating must be > 0")
	ErrPhaseResistance    = errors.New("motor profile: phase resistance must be > 0")
	ErrPhaseInductance    = errors.New("motor profile: phase inductance must be > 0")
	ErrCalibrationCurrent = errors.New("motor profile: calibration current must be > 0")
	ErrPhaseOrder         = errors.New("motor profile: phase order must be +1 or -1")
	ErrUnknownProfile     = errors.New("motor profile: unknown preset")
)

// Validate checks the profile against physical bounds.
func (p *MotorProfile) Validate() error {
	switch {
	case p.PolePairs == 0:
		return ErrPolePairs
	case !(p.KV > 0):
		return ErrKV
	case !(p.PhaseResistance > 0):
		return ErrPhaseResistance
	case !(p.PhaseInductance > 0):
		return ErrPhaseInductance
	case !(p.CalibrationCurrent > 0):
		return ErrCalibrationCurrent
	case p.PhaseOrder != 1 && p.PhaseOrder != -1:
		return ErrPhaseOrder
	}
	return nil
}

// FluxLinkage returns the permanent-magnet flux linkage in Wb derived from Kv.
func (p *MotorProfile) FluxLinkage() float32 {
	if p.KV <= 0 || p.PolePairs == 0 {
		return 0
	}
	return 60 / (math32.Sqrt(3) * 2 * math32.Pi * p.KV * float32(p.PolePairs))
}

// TorqueConstant returns Kt in N·m/A.
func (p *MotorProfile) TorqueConstant() float32 {
	return 1.5 * float32(p.PolePairs) * p.FluxLinkage()
}

// Presets for the motors the boards ship with
var (
	ProfileMADM6C12150KV = MotorProfile{
		Name:               "MAD_M6C12_150KV",
		PolePairs:          14,
		KV:                 150,
		PhaseResistance:    0.05735062549544696,
		PhaseInductance:    3.325681588015225e-05,
		CalibrationCurrent: 5,
		PhaseOrder:         -1,
	}
	ProfileMAD5010110KV = MotorProfile{
		Name:               "MAD_5010_110KV",
		PolePairs:          14,
		KV:                 110,
		PhaseResistance:    0.21210899547699139,
		PhaseInductance:    0.0001253253134958695,
		CalibrationCurrent: 3,
		PhaseOrder:         -1,
	}
	ProfileMAD5010310KV = MotorProfile{
		Name:               "MAD_5010_310KV",
		PolePairs:          14,
		KV:                 370,
		PhaseResistance:    0.05735062549544696,
		PhaseInductance:    3.325681588015225e-05,
		CalibrationCurrent: 5,
		PhaseOrder:         -1,
	}
	ProfileMAD5010370KV = MotorProfile{
		Name:               "MAD_5010_370KV",
		PolePairs:          14,
		KV:                 370,
		PhaseResistance:    0.03000304860153151,
		PhaseInductance:    1.0717319302328058e-05,
		CalibrationCurrent: 5,
		PhaseOrder:         -1,
	}
)

// DefaultProfile is loaded when flash holds no configuration.
var DefaultProfile = ProfileMAD5010370KV

var presets = []*MotorProfile{
	&ProfileMADM6C12150KV,
	&ProfileMAD5010110KV,
	&ProfileMAD5010310KV,
	&ProfileMAD5010370KV,
}

// LookupProfile returns a copy of the named preset.
func LookupProfile(name string) (MotorProfile, error) {
	for _, p := range presets {
		if p.Name == name {
			return *p, nil
		}
	}
	return MotorProfile{}, ErrUnknownProfile
}

// ProfileNames lists the available presets.
func ProfileNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return names
}
