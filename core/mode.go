package core

// Mode is the controller operating mode. The numeric values are part of the
// CAN protocol.
type Mode uint8

const (
	// safe modes
	ModeDisabled Mode = 0x00
	ModeIdle     Mode = 0x01

	// special modes
	ModeDamping     Mode = 0x02
	ModeCalibration Mode = 0x05

	// closed-loop modes
	ModeCurrent  Mode = 0x10
	ModeTorque   Mode = 0x11
	ModeVelocity Mode = 0x12
	ModePosition Mode = 0x13

	// open-loop bench modes
	ModeVabcOverride       Mode = 0x20
	ModeValphabetaOverride Mode = 0x21
	ModeVqdOverride        Mode = 0x22
	ModeIqdOverride        Mode = 0x23

	ModeDebug Mode = 0x80
)

var modeNames = map[Mode]string{
	ModeDisabled:           "disabled",
	ModeIdle:               "idle",
	ModeDamping:            "damping",
	ModeCalibration:        "calibration",
	ModeCurrent:            "current",
	ModeTorque:             "torque",
	ModeVelocity:           "velocity",
	ModePosition:           "position",
	ModeVabcOverride:       "vabc_override",
	ModeValphabetaOverride: "valphabeta_override",
	ModeVqdOverride:        "vqd_override",
	ModeIqdOverride:        "iqd_override",
	ModeDebug:              "debug",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode(" + itoa(int(m)) + ")"
}

// ParseMode looks a mode up by name.
func ParseMode(name string) (Mode, bool) {
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// Valid reports whether m is a defined mode.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// IsSafe reports whether the power stage is off in m.
func (m Mode) IsSafe() bool {
	return m == ModeDisabled || m == ModeIdle
}

// IsClosedLoop reports whether m runs the position/velocity/torque cascade.
func (m Mode) IsClosedLoop() bool {
	return m >= ModeCurrent && m <= ModePosition
}

// IsOverride reports whether m is one of the open-loop bench modes.
func (m Mode) IsOverride() bool {
	return m >= ModeVabcOverride && m <= ModeIqdOverride
}
