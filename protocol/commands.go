package protocol

import (
	"math"
	"strconv"
)

// Command is byte 0 of a parameter frame and selects one controller field.
type Command uint8

const (
	CmdEncoderCPR                    Command = 0x10
	CmdEncoderOffset                 Command = 0x11
	CmdEncoderFilterBandwidth        Command = 0x12
	CmdEncoderFluxOffset             Command = 0x13
	CmdEncoderPositionRaw            Command = 0x14
	CmdEncoderNRotations             Command = 0x15
	CmdPowerstageVoltageThresholdLow Command = 0x16
	CmdPowerstageVoltageThresholdHi  Command = 0x17
	CmdPowerstageFilter              Command = 0x18
	CmdPowerstageBusVoltageMeasured  Command = 0x19
	CmdMotorPolePairs                Command = 0x1A
	CmdMotorKV                       Command = 0x1B
	CmdMotorPhaseOrder               Command = 0x1C
	CmdMotorPhaseResistance          Command = 0x1D
	CmdMotorPhaseInductance          Command = 0x1E
	CmdMotorCalibrationCurrent       Command = 0x1F
	CmdCurrentBandwidth              Command = 0x20
	CmdCurrentLimit                  Command = 0x21
	CmdCurrentKP                     Command = 0x22
	CmdCurrentKI                     Command = 0x23
	CmdCurrentIAMeasured             Command = 0x24
	CmdCurrentIBMeasured             Command = 0x25
	CmdCurrentICMeasured             Command = 0x26
	CmdCurrentVASetpoint             Command = 0x27
	CmdCurrentVBSetpoint             Command = 0x28
	CmdCurrentVCSetpoint             Command = 0x29
	CmdCurrentIAlphaMeasured         Command = 0x2A
	CmdCurrentIBetaMeasured          Command = 0x2B
	CmdCurrentVAlphaSetpoint         Command = 0x2C
	CmdCurrentVBetaSetpoint          Command = 0x2D
	CmdCurrentVQTarget               Command = 0x2E
	CmdCurrentVDTarget               Command = 0x2F
	CmdCurrentVQSetpoint             Command = 0x30
	CmdCurrentVDSetpoint             Command = 0x31
	CmdCurrentIQTarget               Command = 0x32
	CmdCurrentIDTarget               Command = 0x33
	CmdCurrentIQMeasured             Command = 0x34
	CmdCurrentIDMeasured             Command = 0x35
	CmdCurrentIQSetpoint             Command = 0x36
	CmdCurrentIDSetpoint             Command = 0x37
	CmdCurrentIQIntegrator           Command = 0x38
	CmdCurrentIDIntegrator           Command = 0x39
	CmdPositionKP                    Command = 0x3A
	CmdPositionKI                    Command = 0x3B
	CmdVelocityKP                    Command = 0x3C
	CmdVelocityKI                    Command = 0x3D
	CmdTorqueLimit                   Command = 0x3E
	CmdVelocityLimit                 Command = 0x3F
	CmdPositionLimitLow              Command = 0x40
	CmdPositionLimitHigh             Command = 0x41
	CmdTorqueTarget                  Command = 0x42
	CmdTorqueMeasured                Command = 0x43
	CmdTorqueSetpoint                Command = 0x44
	CmdVelocityTarget                Command = 0x45
	CmdVelocityMeasured              Command = 0x46
	CmdVelocitySetpoint              Command = 0x47
	CmdPositionTarget                Command = 0x48
	CmdPositionMeasured              Command = 0x49
	CmdPositionSetpoint              Command = 0x4A
	CmdVelocityIntegrator            Command = 0x4B
	CmdPositionIntegrator            Command = 0x4C

	// Added after protocol version 1
	CmdPositionKD        Command = 0x4D
	CmdPositionKDD       Command = 0x4E
	CmdAccelerationLimit Command = 0x4F
	CmdAccelerationMeas  Command = 0x50
	CmdWatchdogTimeout   Command = 0x51
	CmdFastFrameRate     Command = 0x52
	CmdDeviceID          Command = 0x53
	CmdFirmwareVersion   Command = 0x54
)

// Encoding describes how the 32-bit value word of a parameter frame is interpreted.
type Encoding uint8

const (
	EncFloat32 Encoding = iota
	EncInt32
	EncUint32
)

// CommandInfo is the host-visible description of a command code.
type CommandInfo struct {
	Code     Command
	Name     string
	Unit     string
	Encoding Encoding
}

var commandTable = []CommandInfo{
	{CmdEncoderCPR, "encoder_cpr", "ticks", EncInt32},
	{CmdEncoderOffset, "encoder_offset", "rad", EncFloat32},
	{CmdEncoderFilterBandwidth, "encoder_filter_bandwidth", "Hz", EncFloat32},
	{CmdEncoderFluxOffset, "encoder_flux_offset", "rad", EncFloat32},
	{CmdEncoderPositionRaw, "encoder_position_raw", "ticks", EncInt32},
	{CmdEncoderNRotations, "encoder_n_rotations", "rev", EncInt32},
	{CmdPowerstageVoltageThresholdLow, "powerstage_voltage_threshold_low", "V", EncFloat32},
	{CmdPowerstageVoltageThresholdHi, "powerstage_voltage_threshold_high", "V", EncFloat32},
	{CmdPowerstageFilter, "powerstage_filter", "Hz", EncFloat32},
	{CmdPowerstageBusVoltageMeasured, "powerstage_bus_voltage_measured", "V", EncFloat32},
	{CmdMotorPolePairs, "motor_pole_pairs", "", EncUint32},
	{CmdMotorKV, "motor_kv", "rpm/V", EncFloat32},
	{CmdMotorPhaseOrder, "motor_phase_order", "", EncInt32},
	{CmdMotorPhaseResistance, "motor_phase_resistance", "ohm", EncFloat32},
	{CmdMotorPhaseInductance, "motor_phase_inductance", "H", EncFloat32},
	{CmdMotorCalibrationCurrent, "motor_calibration_current", "A", EncFloat32},
	{CmdCurrentBandwidth, "current_bandwidth", "Hz", EncFloat32},
	{CmdCurrentLimit, "current_limit", "A", EncFloat32},
	{CmdCurrentKP, "current_kp", "", EncFloat32},
	{CmdCurrentKI, "current_ki", "", EncFloat32},
	{CmdCurrentIAMeasured, "current_ia_measured", "A", EncFloat32},
	{CmdCurrentIBMeasured, "current_ib_measured", "A", EncFloat32},
	{CmdCurrentICMeasured, "current_ic_measured", "A", EncFloat32},
	{CmdCurrentVASetpoint, "current_va_setpoint", "V", EncFloat32},
	{CmdCurrentVBSetpoint, "current_vb_setpoint", "V", EncFloat32},
	{CmdCurrentVCSetpoint, "current_vc_setpoint", "V", EncFloat32},
	{CmdCurrentIAlphaMeasured, "current_ialpha_measured", "A", EncFloat32},
	{CmdCurrentIBetaMeasured, "current_ibeta_measured", "A", EncFloat32},
	{CmdCurrentVAlphaSetpoint, "current_valpha_setpoint", "V", EncFloat32},
	{CmdCurrentVBetaSetpoint, "current_vbeta_setpoint", "V", EncFloat32},
	{CmdCurrentVQTarget, "current_vq_target", "V", EncFloat32},
	{CmdCurrentVDTarget, "current_vd_target", "V", EncFloat32},
	{CmdCurrentVQSetpoint, "current_vq_setpoint", "V", EncFloat32},
	{CmdCurrentVDSetpoint, "current_vd_setpoint", "V", EncFloat32},
	{CmdCurrentIQTarget, "current_iq_target", "A", EncFloat32},
	{CmdCurrentIDTarget, "current_id_target", "A", EncFloat32},
	{CmdCurrentIQMeasured, "current_iq_measured", "A", EncFloat32},
	{CmdCurrentIDMeasured, "current_id_measured", "A", EncFloat32},
	{CmdCurrentIQSetpoint, "current_iq_setpoint", "A", EncFloat32},
	{CmdCurrentIDSetpoint, "current_id_setpoint", "A", EncFloat32},
	{CmdCurrentIQIntegrator, "current_iq_integrator", "V", EncFloat32},
	{CmdCurrentIDIntegrator, "current_id_integrator", "V", EncFloat32},
	{CmdPositionKP, "position_kp", "", EncFloat32},
	{CmdPositionKI, "position_ki", "", EncFloat32},
	{CmdVelocityKP, "velocity_kp", "", EncFloat32},
	{CmdVelocityKI, "velocity_ki", "", EncFloat32},
	{CmdTorqueLimit, "torque_limit", "Nm", EncFloat32},
	{CmdVelocityLimit, "velocity_limit", "rad/s", EncFloat32},
	{CmdPositionLimitLow, "position_limit_low", "rad", EncFloat32},
	{CmdPositionLimitHigh, "position_limit_high", "rad", EncFloat32},
	{CmdTorqueTarget, "torque_target", "Nm", EncFloat32},
	{CmdTorqueMeasured, "torque_measured", "Nm", EncFloat32},
	{CmdTorqueSetpoint, "torque_setpoint", "Nm", EncFloat32},
	{CmdVelocityTarget, "velocity_target", "rad/s", EncFloat32},
	{CmdVelocityMeasured, "velocity_measured", "rad/s", EncFloat32},
	{CmdVelocitySetpoint, "velocity_setpoint", "rad/s", EncFloat32},
	{CmdPositionTarget, "position_target", "rad", EncFloat32},
	{CmdPositionMeasured, "position_measured", "rad", EncFloat32},
	{CmdPositionSetpoint, "position_setpoint", "rad", EncFloat32},
	{CmdVelocityIntegrator, "velocity_integrator", "Nm", EncFloat32},
	{CmdPositionIntegrator, "position_integrator", "rad/s", EncFloat32},
	{CmdPositionKD, "position_kd", "", EncFloat32},
	{CmdPositionKDD, "position_kdd", "", EncFloat32},
	{CmdAccelerationLimit, "acceleration_limit", "rad/s2", EncFloat32},
	{CmdAccelerationMeas, "acceleration_measured", "rad/s2", EncFloat32},
	{CmdWatchdogTimeout, "watchdog_timeout", "ms", EncUint32},
	{CmdFastFrameRate, "fast_frame_rate", "Hz", EncUint32},
	{CmdDeviceID, "device_id", "", EncUint32},
	{CmdFirmwareVersion, "firmware_version", "", EncUint32},
}

var (
	commandByCode [256]int16
	commandByName = make(map[string]Command, len(commandTable))
)

func init() {
	for i := range commandByCode {
		commandByCode[i] = -1
	}
	for i, info := range commandTable {
		commandByCode[info.Code] = int16(i)
		commandByName[info.Name] = info.Code
	}
}

// Lookup returns the description of a command code.
func Lookup(c Command) (CommandInfo, bool) {
	idx := commandByCode[c]
	if idx < 0 {
		return CommandInfo{}, false
	}
	return commandTable[idx], true
}

// LookupName finds a command by its snake_case name.
func LookupName(name string) (Command, bool) {
	c, ok := commandByName[name]
	return c, ok
}

// Commands returns every known command in code order.
func Commands() []CommandInfo {
	out := make([]CommandInfo, len(commandTable))
	copy(out, commandTable)
	return out
}

func (c Command) String() string {
	if info, ok := Lookup(c); ok {
		return info.Name
	}
	return "cmd(0x" + strconv.FormatUint(uint64(c), 16) + ")"
}

// Encoding returns the value encoding of c, defaulting to float32.
func (c Command) Encoding() Encoding {
	if info, ok := Lookup(c); ok {
		return info.Encoding
	}
	return EncFloat32
}

// Word helpers convert between typed values and the raw value word.

func Float32Word(f float32) uint32 { return math.Float32bits(f) }
func WordFloat32(w uint32) float32 { return math.Float32frombits(w) }
func Int32Word(v int32) uint32     { return uint32(v) }
func WordInt32(w uint32) int32     { return int32(w) }

// FormatWord renders a value word according to enc.
func FormatWord(enc Encoding, w uint32) string {
	switch enc {
	case EncInt32:
		return strconv.FormatInt(int64(int32(w)), 10)
	case EncUint32:
		return strconv.FormatUint(uint64(w), 10)
	}
	return strconv.FormatFloat(float64(WordFloat32(w)), 'g', -1, 32)
}

// ParseWord parses s according to enc.
func ParseWord(enc Encoding, s string) (uint32, error) {
	switch enc {
	case EncInt32:
		v, err := strconv.ParseInt(s, 0, 32)
		return uint32(int32(v)), err
	case EncUint32:
		v, err := strconv.ParseUint(s, 0, 32)
		return uint32(v), err
	}
	f, err := strconv.ParseFloat(s, 32)
	return Float32Word(float32(f)), err
}
