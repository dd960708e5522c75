package core

import "gorecoil/protocol"

// MaxFastFrameRate bounds the telemetry push rate (Hz).
const MaxFastFrameRate = 1000

// RegisterParams fills t with an accessor for every command code. Targets
// are writable only in the mode that consumes them; computed fields are
// read-only; structural settings change only while stopped.
func RegisterParams(t *ParamTable, c *Controller, tel *Telemetry) {
	enc := c.Encoder
	pwr := c.Power
	cur := c.Current
	pos := c.Position

	// encoder
	t.Register(int32Func(protocol.CmdEncoderCPR, enc.CPR, func(v int32) bool {
		if v <= 0 {
			return false
		}
		enc.SetCPR(v)
		return true
	}, whileStopped))
	t.Register(floatFunc(protocol.CmdEncoderOffset, enc.PositionOffset, func(v float32) bool {
		enc.SetPositionOffset(v)
		return true
	}, whileStopped))
	t.Register(floatFunc(protocol.CmdEncoderFilterBandwidth, enc.FilterBandwidth, positive(enc.SetFilterBandwidth), whileStopped))
	t.Register(floatFunc(protocol.CmdEncoderFluxOffset, enc.FluxOffset, func(v float32) bool {
		return c.updateProfile(func(p *MotorProfile) { p.FluxOffset = v }) == nil
	}, whileStopped))
	t.Register(readOnly(protocol.CmdEncoderPositionRaw, func() uint32 {
		return protocol.Int32Word(enc.Sample().Raw)
	}))
	t.Register(int32Func(protocol.CmdEncoderNRotations, enc.NRotations, func(v int32) bool {
		enc.SetNRotations(v)
		return true
	}, whileStopped))

	// powerstage
	t.Register(floatCell(protocol.CmdPowerstageVoltageThresholdLow, &pwr.ThresholdLow, anyMode))
	t.Register(floatCell(protocol.CmdPowerstageVoltageThresholdHi, &pwr.ThresholdHigh, anyMode))
	t.Register(floatFunc(protocol.CmdPowerstageFilter, pwr.FilterBandwidth, positive(pwr.SetFilterBandwidth), anyMode))
	t.Register(floatFunc(protocol.CmdPowerstageBusVoltageMeasured, pwr.BusVoltage, nil, nil))

	// motor profile
	t.Register(uint32Func(protocol.CmdMotorPolePairs,
		func() uint32 { return uint32(c.Profile().PolePairs) },
		func(v uint32) bool {
			if v > 0xFFFF {
				return false
			}
			return c.updateProfile(func(p *MotorProfile) { p.PolePairs = uint16(v) }) == nil
		}, whileStopped))
	t.Register(profileFloat(c, protocol.CmdMotorKV, func(p *MotorProfile) *float32 { return &p.KV }))
	t.Register(int32Func(protocol.CmdMotorPhaseOrder,
		func() int32 { return int32(c.Profile().PhaseOrder) },
		func(v int32) bool {
			if v != 1 && v != -1 {
				return false
			}
			return c.updateProfile(func(p *MotorProfile) { p.PhaseOrder = int8(v) }) == nil
		}, whileStopped))
	t.Register(profileFloat(c, protocol.CmdMotorPhaseResistance, func(p *MotorProfile) *float32 { return &p.PhaseResistance }))
	t.Register(profileFloat(c, protocol.CmdMotorPhaseInductance, func(p *MotorProfile) *float32 { return &p.PhaseInductance }))
	t.Register(profileFloat(c, protocol.CmdMotorCalibrationCurrent, func(p *MotorProfile) *float32 { return &p.CalibrationCurrent }))

	// current loop
	t.Register(floatFunc(protocol.CmdCurrentBandwidth, cur.Bandwidth.Load, positive(cur.SetBandwidth), anyMode))
	t.Register(floatCell(protocol.CmdCurrentLimit, &cur.Limit, anyMode))
	t.Register(floatCell(protocol.CmdCurrentKP, &cur.KP, anyMode))
	t.Register(floatCell(protocol.CmdCurrentKI, &cur.KI, anyMode))
	t.Register(floatRO(protocol.CmdCurrentIAMeasured, &cur.IAMeasured))
	t.Register(floatRO(protocol.CmdCurrentIBMeasured, &cur.IBMeasured))
	t.Register(floatRO(protocol.CmdCurrentICMeasured, &cur.ICMeasured))
	t.Register(floatCell(protocol.CmdCurrentVASetpoint, &cur.VASetpoint, inMode(ModeVabcOverride)))
	t.Register(floatCell(protocol.CmdCurrentVBSetpoint, &cur.VBSetpoint, inMode(ModeVabcOverride)))
	t.Register(floatCell(protocol.CmdCurrentVCSetpoint, &cur.VCSetpoint, inMode(ModeVabcOverride)))
	t.Register(floatRO(protocol.CmdCurrentIAlphaMeasured, &cur.IAlphaMeasured))
	t.Register(floatRO(protocol.CmdCurrentIBetaMeasured, &cur.IBetaMeasured))
	t.Register(floatCell(protocol.CmdCurrentVAlphaSetpoint, &cur.VAlphaSetpoint, inMode(ModeValphabetaOverride)))
	t.Register(floatCell(protocol.CmdCurrentVBetaSetpoint, &cur.VBetaSetpoint, inMode(ModeValphabetaOverride)))
	t.Register(floatCell(protocol.CmdCurrentVQTarget, &cur.VQTarget, inMode(ModeVqdOverride)))
	t.Register(floatCell(protocol.CmdCurrentVDTarget, &cur.VDTarget, inMode(ModeVqdOverride)))
	t.Register(floatRO(protocol.CmdCurrentVQSetpoint, &cur.VQSetpoint))
	t.Register(floatRO(protocol.CmdCurrentVDSetpoint, &cur.VDSetpoint))
	t.Register(floatCell(protocol.CmdCurrentIQTarget, &cur.IQTarget, inMode(ModeCurrent)))
	t.Register(floatCell(protocol.CmdCurrentIDTarget, &cur.IDTarget, inMode(ModeCurrent)))
	t.Register(floatRO(protocol.CmdCurrentIQMeasured, &cur.IQMeasured))
	t.Register(floatRO(protocol.CmdCurrentIDMeasured, &cur.IDMeasured))
	t.Register(floatCell(protocol.CmdCurrentIQSetpoint, &cur.IQSetpoint, inMode(ModeIqdOverride)))
	t.Register(floatCell(protocol.CmdCurrentIDSetpoint, &cur.IDSetpoint, inMode(ModeIqdOverride)))
	t.Register(floatRO(protocol.CmdCurrentIQIntegrator, &cur.IQIntegrator))
	t.Register(floatRO(protocol.CmdCurrentIDIntegrator, &cur.IDIntegrator))

	// position cascade
	t.Register(floatCell(protocol.CmdPositionKP, &pos.PositionKP, anyMode))
	t.Register(floatCell(protocol.CmdPositionKI, &pos.PositionKI, anyMode))
	t.Register(floatCell(protocol.CmdPositionKD, &pos.PositionKD, anyMode))
	t.Register(floatCell(protocol.CmdPositionKDD, &pos.PositionKDD, anyMode))
	t.Register(floatCell(protocol.CmdVelocityKP, &pos.VelocityKP, anyMode))
	t.Register(floatCell(protocol.CmdVelocityKI, &pos.VelocityKI, anyMode))
	t.Register(floatFunc(protocol.CmdTorqueLimit, pos.TorqueLimitUpper.Load, symmetric(pos.SetTorqueLimit), anyMode))
	t.Register(floatFunc(protocol.CmdVelocityLimit, pos.VelocityLimitUpper.Load, symmetric(pos.SetVelocityLimit), anyMode))
	t.Register(floatFunc(protocol.CmdAccelerationLimit, pos.AccelerationLimitUpper.Load, symmetric(pos.SetAccelerationLimit), anyMode))
	t.Register(floatBound(protocol.CmdPositionLimitLow, &pos.PositionLimitLower, anyMode))
	t.Register(floatBound(protocol.CmdPositionLimitHigh, &pos.PositionLimitUpper, anyMode))
	t.Register(floatCell(protocol.CmdTorqueTarget, &pos.TorqueTarget, inMode(ModeTorque)))
	t.Register(floatRO(protocol.CmdTorqueMeasured, &pos.TorqueMeasured))
	t.Register(floatRO(protocol.CmdTorqueSetpoint, &pos.TorqueSetpoint))
	t.Register(floatCell(protocol.CmdVelocityTarget, &pos.VelocityTarget, inMode(ModeVelocity)))
	t.Register(floatRO(protocol.CmdVelocityMeasured, &pos.VelocityMeasured))
	t.Register(floatRO(protocol.CmdVelocitySetpoint, &pos.VelocitySetpoint))
	t.Register(floatCell(protocol.CmdPositionTarget, &pos.PositionTarget, inMode(ModePosition)))
	t.Register(floatRO(protocol.CmdPositionMeasured, &pos.PositionMeasured))
	t.Register(floatRO(protocol.CmdPositionSetpoint, &pos.PositionSetpoint))
	t.Register(floatRO(protocol.CmdVelocityIntegrator, &pos.VelocityIntegrator))
	t.Register(floatRO(protocol.CmdPositionIntegrator, &pos.PositionIntegrator))
	t.Register(floatRO(protocol.CmdAccelerationMeas, &pos.AccelerationMeasured))

	// node
	t.Register(uint32Func(protocol.CmdWatchdogTimeout, c.Watchdog.Timeout, c.Watchdog.SetTimeout, anyMode))
	if tel != nil {
		t.Register(uint32Func(protocol.CmdFastFrameRate, tel.Rate, tel.SetRate, anyMode))
	}
	t.Register(uint32Func(protocol.CmdDeviceID,
		func() uint32 { return uint32(c.DeviceID()) },
		func(v uint32) bool { return v <= 0xFF && c.SetDeviceID(uint8(v)) },
		whileStopped))
	t.Register(readOnly(protocol.CmdFirmwareVersion, func() uint32 { return uint32(protocol.Firmware) }))
}

// positive wraps a setter that only accepts values above zero.
func positive(set func(float32)) func(float32) bool {
	return func(v float32) bool {
		if !(v > 0) {
			return false
		}
		set(v)
		return true
	}
}

// symmetric wraps a symmetric limit setter.
func symmetric(set func(float32)) func(float32) bool {
	return func(v float32) bool {
		set(v)
		return true
	}
}

func profileFloat(c *Controller, code protocol.Command, field func(p *MotorProfile) *float32) Param {
	return floatFunc(code,
		func() float32 {
			p := c.Profile()
			return *field(&p)
		},
		func(v float32) bool {
			return c.updateProfile(func(p *MotorProfile) { *field(p) = v }) == nil
		},
		whileStopped)
}
