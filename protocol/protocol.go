// Package protocol implements the CAN protocol spoken between a Recoil-style
// motor controller and its host. It is shared by the firmware and the host
// tools, so nothing here allocates on the decode path.
package protocol

import "strconv"

// Version is bumped whenever frame layouts or command codes change.
// It is reported in byte 5 of the Info reply.
const Version uint8 = 2

// Variant selects the frame dialect a board speaks.
type Variant uint8

const (
	// VariantStandard packs (IDType << 6) | deviceID into the 11-bit ID and
	// carries one parameter per frame.
	VariantStandard Variant = 0

	// VariantLegacy is the older single-byte function ID layout used by the
	// DRV8350RS boards. Parameters travel in pairs.
	VariantLegacy Variant = 1
)

func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case VariantLegacy:
		return "legacy"
	}
	return "variant(" + strconv.Itoa(int(v)) + ")"
}

// ParseVariant is the inverse of Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "standard", "":
		return VariantStandard, nil
	case "legacy":
		return VariantLegacy, nil
	}
	return 0, ErrUnknownVariant
}

// FirmwareVersion is packed as 0x00MMmmpp (major, minor, patch).
type FirmwareVersion uint32

// NewFirmwareVersion packs a version triple.
func NewFirmwareVersion(major, minor, patch uint8) FirmwareVersion {
	return FirmwareVersion(uint32(major)<<16 | uint32(minor)<<8 | uint32(patch))
}

func (v FirmwareVersion) Major() uint8 { return uint8(v >> 16) }
func (v FirmwareVersion) Minor() uint8 { return uint8(v >> 8) }
func (v FirmwareVersion) Patch() uint8 { return uint8(v) }

func (v FirmwareVersion) String() string {
	return strconv.Itoa(int(v.Major())) + "." +
		strconv.Itoa(int(v.Minor())) + "." +
		strconv.Itoa(int(v.Patch()))
}

// Firmware is the version this tree builds.
const Firmware = FirmwareVersion(0x00010101)
