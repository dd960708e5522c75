package protocol

import "go.einride.tech/can"

// Message is a frame in dialect-independent form. The dispatcher and the
// host client work on Messages; a Dialect converts them to and from frames.
type Message struct {
	Type   IDType
	Device uint8

	// Parameter messages carry N command/value pairs (1 for the standard
	// dialect, up to 2 for legacy).
	N        uint8
	Commands [2]Command
	Words    [2]uint32

	// Payload holds the raw bytes of every other message type.
	Payload [8]byte
	Length  uint8

	// Function is the legacy function id the request arrived on. Replies echo it.
	Function uint8
}

// IsParam reports whether m is a parameter read, write or reply.
func (m *Message) IsParam() bool {
	return m.Type == IDParamRead || m.Type == IDParamWrite
}

// Dialect converts between CAN frames and Messages for one board variant.
type Dialect interface {
	Variant() Variant
	Decode(f can.Frame) (Message, error)
	Encode(m *Message) (can.Frame, error)
}

// DialectFor returns the codec for v.
func DialectFor(v Variant) Dialect {
	if v == VariantLegacy {
		return Legacy{}
	}
	return Standard{}
}

// Standard is the (IDType << 6 | device) dialect.
type Standard struct{}

func (Standard) Variant() Variant { return VariantStandard }

// Decode parses a standard frame. Parameter writes must carry all 8 bytes.
func (Standard) Decode(f can.Frame) (Message, error) {
	var m Message
	if f.IsExtended {
		return m, ErrExtendedFrame
	}
	m.Type, m.Device = SplitFrameID(f.ID)
	if !m.Type.Known() {
		return m, ErrUnknownIDType
	}

	switch m.Type {
	case IDParamRead, IDParamWrite:
		if f.Length < 1 {
			return m, ErrShortFrame
		}
		m.N = 1
		m.Commands[0] = Command(f.Data[0])
		if f.Length >= 8 {
			m.Words[0] = uint32(f.Data.UnsignedBitsLittleEndian(32, 32))
		} else if m.Type == IDParamWrite {
			return m, ErrShortFrame
		}
	default:
		m.Payload = f.Data
		m.Length = f.Length
	}
	return m, nil
}

func (Standard) Encode(m *Message) (can.Frame, error) {
	f := can.Frame{ID: FrameID(m.Type, m.Device)}
	if m.IsParam() {
		if m.N == 0 {
			return f, ErrShortFrame
		}
		f.Length = 8
		f.Data[0] = byte(m.Commands[0])
		f.Data.SetUnsignedBitsLittleEndian(32, 32, uint64(m.Words[0]))
		return f, nil
	}
	f.Length = m.Length
	f.Data = m.Payload
	return f, nil
}

// Message builders. Layouts are defined at the Message level so both
// dialects share them.

// Simple builds a message with no payload (ping, estop, heartbeat, info query, mode query).
func Simple(t IDType, device uint8) Message {
	return Message{Type: t, Device: device}
}

// ParamRead asks for the current value of cmd.
func ParamRead(device uint8, cmd Command) Message {
	return Message{Type: IDParamRead, Device: device, N: 1, Commands: [2]Command{cmd}}
}

// ParamWrite sets cmd to w. The device answers with the value it now holds.
func ParamWrite(device uint8, cmd Command, w uint32) Message {
	return Message{Type: IDParamWrite, Device: device, N: 1, Commands: [2]Command{cmd}, Words: [2]uint32{w}}
}

// ModeRequest switches the controller to mode, optionally clearing errors first.
func ModeRequest(device uint8, mode uint8, clearErrors bool) Message {
	m := Message{Type: IDMode, Device: device, Length: 2}
	m.Payload[0] = mode
	if clearErrors {
		m.Payload[1] = 1
	}
	return m
}

// DecodeModeRequest returns the requested mode. ok is false for a bare query.
func DecodeModeRequest(m *Message) (mode uint8, clearErrors bool, ok bool) {
	if m.Length < 1 {
		return 0, false, false
	}
	mode = m.Payload[0]
	if m.Length >= 2 {
		clearErrors = m.Payload[1]&1 != 0
	}
	return mode, clearErrors, true
}

// ModeReply reports the active mode and error flags.
func ModeReply(device uint8, mode uint8, errs uint32) Message {
	m := Message{Type: IDMode, Device: device, Length: 8}
	m.Payload[0] = mode
	putUint32(m.Payload[4:8], errs)
	return m
}

// DecodeModeReply is the inverse of ModeReply.
func DecodeModeReply(m *Message) (mode uint8, errs uint32, err error) {
	if m.Length < 8 {
		return 0, 0, ErrShortFrame
	}
	return m.Payload[0], getUint32(m.Payload[4:8]), nil
}

// Info is the device identity reported on IDInfo.
type Info struct {
	Firmware FirmwareVersion
	Device   uint8
	Protocol uint8
	Variant  Variant
}

func InfoReply(device uint8, info Info) Message {
	m := Message{Type: IDInfo, Device: device, Length: 7}
	putUint32(m.Payload[0:4], uint32(info.Firmware))
	m.Payload[4] = info.Device
	m.Payload[5] = info.Protocol
	m.Payload[6] = uint8(info.Variant)
	return m
}

func DecodeInfo(m *Message) (Info, error) {
	if m.Length < 7 {
		return Info{}, ErrShortFrame
	}
	return Info{
		Firmware: FirmwareVersion(getUint32(m.Payload[0:4])),
		Device:   m.Payload[4],
		Protocol: m.Payload[5],
		Variant:  Variant(m.Payload[6]),
	}, nil
}

// FlashRequest asks the device to store or reload its persistent image.
func FlashRequest(device uint8, op FlashOp) Message {
	m := Message{Type: IDFlash, Device: device, Length: 1}
	m.Payload[0] = byte(op)
	return m
}

// FlashReply echoes the operation with byte 1 set on success.
func FlashReply(device uint8, op FlashOp, ok bool) Message {
	m := Message{Type: IDFlash, Device: device, Length: 2}
	m.Payload[0] = byte(op)
	if ok {
		m.Payload[1] = 1
	}
	return m
}

// DecodeFlashRequest returns the requested operation.
func DecodeFlashRequest(m *Message) (FlashOp, bool) {
	if m.Length < 1 {
		return 0, false
	}
	op := FlashOp(m.Payload[0])
	return op, op == FlashStore || op == FlashReload
}

// DecodeFlashReply is the inverse of FlashReply.
func DecodeFlashReply(m *Message) (op FlashOp, ok bool, err error) {
	if m.Length < 2 {
		return 0, false, ErrShortFrame
	}
	return FlashOp(m.Payload[0]), m.Payload[1] == 1, nil
}

// FastFrame carries two float32 telemetry values.
func FastFrame(t IDType, device uint8, a, b float32) Message {
	m := Message{Type: t, Device: device, Length: 8}
	putUint32(m.Payload[0:4], Float32Word(a))
	putUint32(m.Payload[4:8], Float32Word(b))
	return m
}

func DecodeFastFrame(m *Message) (a, b float32, err error) {
	if m.Length < 8 {
		return 0, 0, ErrShortFrame
	}
	return WordFloat32(getUint32(m.Payload[0:4])), WordFloat32(getUint32(m.Payload[4:8])), nil
}

func putUint32(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
