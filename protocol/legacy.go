package protocol

import "go.einride.tech/can"

// Legacy frame ID layout: 7-bit function id above a 4-bit device id.
const (
	LegacyDeviceBits = 4
	LegacyDeviceMask = 1<<LegacyDeviceBits - 1
	LegacyMaxDevice  = 15
)

// Legacy function ids that do not map onto parameter pairs
const (
	LegacyEstop     uint8 = 0x00
	LegacyID        uint8 = 0x01
	LegacyVersion   uint8 = 0x02
	LegacySafety    uint8 = 0x03
	LegacyFlash     uint8 = 0x04
	LegacyMode      uint8 = 0x06
	LegacyStatus    uint8 = 0x07
	LegacyHeartbeat uint8 = 0x7E
	LegacyPing      uint8 = 0x7F
)

type legacyEntry struct {
	typ  IDType
	n    uint8
	cmds [2]Command
}

// legacyTable maps legacy function ids onto the standard command codes, so
// both dialects reach the same accessors.
var legacyTable = map[uint8]legacyEntry{
	LegacyEstop:     {typ: IDEstop},
	LegacyID:        {typ: IDInfo},
	LegacyVersion:   {typ: IDInfo},
	LegacySafety:    {typ: IDSafetyWatchdog},
	LegacyFlash:     {typ: IDFlash},
	LegacyMode:      {typ: IDMode},
	LegacyStatus:    {typ: IDMode},
	LegacyHeartbeat: {typ: IDSafetyWatchdog},
	LegacyPing:      {typ: IDPing},

	0x10: {IDParamWrite, 1, [2]Command{CmdEncoderCPR}},
	0x11: {IDParamWrite, 1, [2]Command{CmdEncoderFilterBandwidth}},
	0x12: {IDParamWrite, 1, [2]Command{CmdEncoderOffset}},
	0x13: {IDParamWrite, 1, [2]Command{CmdEncoderNRotations}},
	0x16: {IDParamWrite, 1, [2]Command{CmdPositionMeasured}},
	0x17: {IDParamWrite, 1, [2]Command{CmdVelocityMeasured}},
	0x20: {IDParamWrite, 2, [2]Command{CmdPowerstageVoltageThresholdLow, CmdPowerstageVoltageThresholdHi}},
	0x23: {IDParamWrite, 1, [2]Command{CmdPowerstageBusVoltageMeasured}},
	0x30: {IDParamWrite, 1, [2]Command{CmdMotorPolePairs}},
	0x31: {IDParamWrite, 1, [2]Command{CmdMotorKV}},
	0x32: {IDParamWrite, 1, [2]Command{CmdEncoderFluxOffset}},
	0x41: {IDParamWrite, 2, [2]Command{CmdCurrentKP, CmdCurrentKI}},
	0x42: {IDParamWrite, 2, [2]Command{CmdCurrentKP, CmdCurrentKI}},
	0x44: {IDParamWrite, 2, [2]Command{CmdCurrentIAMeasured, CmdCurrentIBMeasured}},
	0x45: {IDParamWrite, 1, [2]Command{CmdCurrentICMeasured}},
	0x46: {IDParamWrite, 2, [2]Command{CmdCurrentVASetpoint, CmdCurrentVBSetpoint}},
	0x47: {IDParamWrite, 1, [2]Command{CmdCurrentVCSetpoint}},
	0x48: {IDParamWrite, 2, [2]Command{CmdCurrentIAlphaMeasured, CmdCurrentIBetaMeasured}},
	0x4A: {IDParamWrite, 2, [2]Command{CmdCurrentVAlphaSetpoint, CmdCurrentVBetaSetpoint}},
	0x4B: {IDParamWrite, 2, [2]Command{CmdCurrentVQTarget, CmdCurrentVDTarget}},
	0x4C: {IDParamWrite, 2, [2]Command{CmdCurrentVQSetpoint, CmdCurrentVDSetpoint}},
	0x4D: {IDParamWrite, 2, [2]Command{CmdCurrentIQMeasured, CmdCurrentIDMeasured}},
	0x4E: {IDParamWrite, 2, [2]Command{CmdCurrentIQTarget, CmdCurrentIDTarget}},
	0x4F: {IDParamWrite, 2, [2]Command{CmdCurrentIQSetpoint, CmdCurrentIDSetpoint}},
	0x50: {IDParamWrite, 2, [2]Command{CmdCurrentIQIntegrator, CmdCurrentIDIntegrator}},
	0x60: {IDParamWrite, 2, [2]Command{CmdPositionKP, CmdPositionKI}},
	0x61: {IDParamWrite, 2, [2]Command{CmdVelocityKP, CmdVelocityKI}},
	0x62: {IDParamWrite, 1, [2]Command{CmdTorqueLimit}},
	0x63: {IDParamWrite, 1, [2]Command{CmdVelocityLimit}},
	0x64: {IDParamWrite, 2, [2]Command{CmdPositionLimitLow, CmdPositionLimitHigh}},
	0x65: {IDParamWrite, 2, [2]Command{CmdTorqueTarget, CmdTorqueMeasured}},
	0x66: {IDParamWrite, 1, [2]Command{CmdTorqueSetpoint}},
	0x67: {IDParamWrite, 2, [2]Command{CmdVelocityTarget, CmdVelocityMeasured}},
	0x68: {IDParamWrite, 1, [2]Command{CmdVelocitySetpoint}},
	0x69: {IDParamWrite, 2, [2]Command{CmdPositionTarget, CmdPositionMeasured}},
	0x6A: {IDParamWrite, 1, [2]Command{CmdPositionSetpoint}},
}

// legacyReverse picks the function id used when a reply has no request to echo
var legacyReverse = map[IDType]uint8{
	IDEstop:          LegacyEstop,
	IDInfo:           LegacyVersion,
	IDSafetyWatchdog: LegacyHeartbeat,
	IDFlash:          LegacyFlash,
	IDMode:           LegacyMode,
	IDPing:           LegacyPing,
}

// Legacy is the DRV8350RS dialect. A remote (RTR) frame is a read; a data
// frame is a write. Parameter values are packed as two little-endian words.
type Legacy struct{}

func (Legacy) Variant() Variant { return VariantLegacy }

func (Legacy) Decode(f can.Frame) (Message, error) {
	var m Message
	if f.IsExtended {
		return m, ErrExtendedFrame
	}
	fn := uint8(f.ID >> LegacyDeviceBits)
	entry, ok := legacyTable[fn]
	if !ok {
		return m, ErrUnknownCommand
	}
	m.Device = uint8(f.ID & LegacyDeviceMask)
	m.Function = fn
	m.Type = entry.typ

	if entry.n == 0 {
		if !f.IsRemote {
			m.Payload = f.Data
			m.Length = f.Length
		}
		return m, nil
	}

	m.N = entry.n
	m.Commands = entry.cmds
	if f.IsRemote {
		m.Type = IDParamRead
		return m, nil
	}
	if f.Length < 4*entry.n {
		return m, ErrShortFrame
	}
	m.Words[0] = uint32(f.Data.UnsignedBitsLittleEndian(0, 32))
	if entry.n == 2 {
		m.Words[1] = uint32(f.Data.UnsignedBitsLittleEndian(32, 32))
	}
	return m, nil
}

func (Legacy) Encode(m *Message) (can.Frame, error) {
	var f can.Frame
	fn := m.Function
	if fn == 0 && m.Type != IDEstop {
		var ok bool
		if m.IsParam() {
			fn, ok = legacyFunctionFor(m.Commands[0])
		} else {
			fn, ok = legacyReverse[m.Type]
		}
		if !ok {
			return f, ErrUnsupported
		}
	}
	if m.Device > LegacyMaxDevice {
		return f, ErrInvalidDeviceID
	}
	f.ID = uint32(fn)<<LegacyDeviceBits | uint32(m.Device&LegacyDeviceMask)

	if !m.IsParam() {
		f.Length = m.Length
		f.Data = m.Payload
		return f, nil
	}
	entry := legacyTable[fn]
	if m.Type == IDParamRead && m.Function == 0 {
		// host side read request
		f.IsRemote = true
		f.Length = 4 * entry.n
		return f, nil
	}
	if m.N != entry.n {
		// a pair must be written as a pair
		return f, ErrUnsupported
	}
	f.Length = 4 * m.N
	f.Data.SetUnsignedBitsLittleEndian(0, 32, uint64(m.Words[0]))
	if m.N == 2 {
		f.Data.SetUnsignedBitsLittleEndian(32, 32, uint64(m.Words[1]))
	}
	return f, nil
}

// LegacyPair returns the commands that travel with c in one legacy frame and
// the position of c among them.
func LegacyPair(c Command) (cmds [2]Command, n uint8, index int, ok bool) {
	for i := 0; i < 2; i++ {
		for _, e := range legacyTable {
			if e.n > uint8(i) && e.cmds[i] == c {
				if _, ok := legacyFunctionFor(e.cmds[0]); ok {
					return e.cmds, e.n, i, true
				}
			}
		}
	}
	return cmds, 0, 0, false
}

func legacyFunctionFor(c Command) (uint8, bool) {
	best := uint8(0)
	found := false
	for fn, e := range legacyTable {
		if e.n == 0 || e.cmds[0] != c {
			continue
		}
		// 0x41 and 0x42 share a pair; prefer the lower id
		if !found || fn < best {
			best, found = fn, true
		}
	}
	return best, found
}
