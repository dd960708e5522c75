package protocol

import (
	"errors"
	"strconv"
)

// Errors returned by the frame codecs
var (
	ErrInvalidDeviceID = errors.New("device id out of range [1, 63]")
	ErrShortFrame      = errors.New("frame payload too short")
	ErrUnknownIDType   = errors.New("unknown id type")
	ErrUnknownCommand  = errors.New("unknown command code")
	ErrUnknownVariant  = errors.New("unknown protocol variant")
	ErrUnsupported     = errors.New("message not supported by dialect")
	ErrExtendedFrame   = errors.New("extended frames are not used")
)

// Frame ID layout for VariantStandard: 5 bits of IDType above 6 bits of device ID.
const (
	DeviceIDBits  = 6
	DeviceIDMask  = 1<<DeviceIDBits - 1
	IDTypeMask    = 0x1F
	MinDeviceID   = 1
	MaxDeviceID   = 63
	DefaultDevice = 2
)

// IDType is the function field of a standard frame ID.
type IDType uint8

const (
	IDEstop          IDType = 0x00
	IDInfo           IDType = 0x01
	IDSafetyWatchdog IDType = 0x02
	IDMode           IDType = 0x05
	IDFlash          IDType = 0x0E
	IDParamRead      IDType = 0x10
	IDParamWrite     IDType = 0x11
	IDFastFrame0     IDType = 0x12
	IDFastFrame1     IDType = 0x13
	IDDebug0         IDType = 0x14
	IDDebug1         IDType = 0x15
	IDDebug2         IDType = 0x16
	IDPing           IDType = 0x1F
)

var idTypeNames = map[IDType]string{
	IDEstop:          "estop",
	IDInfo:           "info",
	IDSafetyWatchdog: "safety_watchdog",
	IDMode:           "mode",
	IDFlash:          "flash",
	IDParamRead:      "param_read",
	IDParamWrite:     "param_write",
	IDFastFrame0:     "fast_frame_0",
	IDFastFrame1:     "fast_frame_1",
	IDDebug0:         "debug_0",
	IDDebug1:         "debug_1",
	IDDebug2:         "debug_2",
	IDPing:           "ping",
}

func (t IDType) String() string {
	if name, ok := idTypeNames[t]; ok {
		return name
	}
	return "id_type(0x" + strconv.FormatUint(uint64(t), 16) + ")"
}

// Known reports whether t is a defined IDType.
func (t IDType) Known() bool {
	_, ok := idTypeNames[t]
	return ok
}

// ValidDeviceID reports whether id can be used on the bus.
func ValidDeviceID(id uint8) bool {
	return id >= MinDeviceID && id <= MaxDeviceID
}

// FrameID builds a standard 11-bit identifier.
func FrameID(t IDType, device uint8) uint32 {
	return uint32(t&IDTypeMask)<<DeviceIDBits | uint32(device&DeviceIDMask)
}

// SplitFrameID is the inverse of FrameID.
func SplitFrameID(id uint32) (IDType, uint8) {
	return IDType((id >> DeviceIDBits) & IDTypeMask), uint8(id & DeviceIDMask)
}

// FlashOp is byte 0 of an IDFlash frame.
type FlashOp uint8

const (
	FlashStore  FlashOp = 1
	FlashReload FlashOp = 2
)
