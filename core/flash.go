package core

import (
	"encoding/binary"
	"errors"
	"math"

	"gorecoil/protocol"
)

// Flash image layout, little endian:
//
//	0   magic      u32
//	4   version    u8
//	5   device id  u8
//	6   reserved   u16
//	8   fields     FlashFieldCount × u32 (IEEE-754 for float fields)
//	... crc16      u16 over everything before it
const (
	FlashMagic      = 0x4C434552 // "RECL"
	FlashVersion    = 1
	flashHeaderSize = 8
)

// Words of the image body. The order is part of the image format.
const (
	ffPolePairs = iota
	ffKV
	ffPhaseResistance
	ffPhaseInductance
	ffCalibrationCurrent
	ffPhaseOrder
	ffFluxOffset
	ffPositionOffset
	ffEncoderCPR
	ffEncoderBandwidth
	ffCurrentKP
	ffCurrentKI
	ffCurrentBandwidth
	ffCurrentLimit
	ffPositionKP
	ffPositionKI
	ffPositionKD
	ffPositionKDD
	ffVelocityKP
	ffVelocityKI
	ffTorqueLimit
	ffVelocityLimit
	ffAccelerationLimit
	ffPositionLimitLow
	ffPositionLimitHigh
	ffThresholdLow
	ffThresholdHigh
	ffBusFilter
	ffWatchdogTimeout
	ffFastFrameRate

	FlashFieldCount
)

// FlashImageSize is the number of bytes StoreImage writes.
const FlashImageSize = flashHeaderSize + 4*FlashFieldCount + 2

var (
	ErrFlashMagic   = errors.New("flash: no configuration image")
	ErrFlashVersion = errors.New("flash: unsupported image version")
	ErrFlashCRC     = errors.New("flash: checksum mismatch")
	ErrFlashBusy    = errors.New("flash: controller must be stopped")
)

// FlashImage is the persisted node configuration.
type FlashImage struct {
	DeviceID uint8
	Fields   [FlashFieldCount]uint32
}

// Encode serializes the image with its checksum.
func (img *FlashImage) Encode(buf []byte) []byte {
	buf = buf[:0]
	buf = binary.LittleEndian.AppendUint32(buf, FlashMagic)
	buf = append(buf, FlashVersion, img.DeviceID, 0, 0)
	for _, w := range img.Fields {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return binary.LittleEndian.AppendUint16(buf, protocol.CRC16(buf))
}

// DecodeFlashImage parses and verifies an image.
func DecodeFlashImage(p []byte) (FlashImage, error) {
	var img FlashImage
	if len(p) < FlashImageSize || binary.LittleEndian.Uint32(p) != FlashMagic {
		return img, ErrFlashMagic
	}
	if p[4] != FlashVersion {
		return img, ErrFlashVersion
	}
	body := p[:FlashImageSize-2]
	if protocol.CRC16(body) != binary.LittleEndian.Uint16(p[FlashImageSize-2:]) {
		return img, ErrFlashCRC
	}
	img.DeviceID = p[5]
	for i := range img.Fields {
		img.Fields[i] = binary.LittleEndian.Uint32(p[flashHeaderSize+4*i:])
	}
	return img, nil
}

func f32(w uint32) float32 { return math.Float32frombits(w) }

func w32(f float32) uint32 { return math.Float32bits(f) }

// Snapshot captures the persistent state of c.
func Snapshot(c *Controller, tel *Telemetry) FlashImage {
	p := c.Profile()
	cur, pos, pwr := c.Current, c.Position, c.Power

	img := FlashImage{DeviceID: c.DeviceID()}
	f := &img.Fields
	f[ffPolePairs] = uint32(p.PolePairs)
	f[ffKV] = w32(p.KV)
	f[ffPhaseResistance] = w32(p.PhaseResistance)
	f[ffPhaseInductance] = w32(p.PhaseInductance)
	f[ffCalibrationCurrent] = w32(p.CalibrationCurrent)
	f[ffPhaseOrder] = uint32(int32(p.PhaseOrder))
	f[ffFluxOffset] = w32(p.FluxOffset)
	f[ffPositionOffset] = w32(c.Encoder.PositionOffset())
	f[ffEncoderCPR] = uint32(c.Encoder.CPR())
	f[ffEncoderBandwidth] = w32(c.Encoder.FilterBandwidth())
	f[ffCurrentKP] = cur.KP.Bits()
	f[ffCurrentKI] = cur.KI.Bits()
	f[ffCurrentBandwidth] = cur.Bandwidth.Bits()
	f[ffCurrentLimit] = cur.Limit.Bits()
	f[ffPositionKP] = pos.PositionKP.Bits()
	f[ffPositionKI] = pos.PositionKI.Bits()
	f[ffPositionKD] = pos.PositionKD.Bits()
	f[ffPositionKDD] = pos.PositionKDD.Bits()
	f[ffVelocityKP] = pos.VelocityKP.Bits()
	f[ffVelocityKI] = pos.VelocityKI.Bits()
	f[ffTorqueLimit] = pos.TorqueLimitUpper.Bits()
	f[ffVelocityLimit] = pos.VelocityLimitUpper.Bits()
	f[ffAccelerationLimit] = pos.AccelerationLimitUpper.Bits()
	f[ffPositionLimitLow] = pos.PositionLimitLower.Bits()
	f[ffPositionLimitHigh] = pos.PositionLimitUpper.Bits()
	f[ffThresholdLow] = pwr.ThresholdLow.Bits()
	f[ffThresholdHigh] = pwr.ThresholdHigh.Bits()
	f[ffBusFilter] = w32(pwr.FilterBandwidth())
	f[ffWatchdogTimeout] = c.Watchdog.Timeout()
	if tel != nil {
		f[ffFastFrameRate] = tel.Rate()
	}
	return img
}

// Apply installs the sections of img selected by flags. The controller must
// be stopped.
func (img *FlashImage) Apply(c *Controller, tel *Telemetry, flags LoadFlags) error {
	if !c.stopped() {
		return ErrFlashBusy
	}
	f := &img.Fields

	if flags&LoadID != 0 && protocol.ValidDeviceID(img.DeviceID) {
		c.SetDeviceID(img.DeviceID)
	}

	p := c.Profile()
	if flags&LoadConfig != 0 {
		p.PolePairs = uint16(f[ffPolePairs])
		p.KV = f32(f[ffKV])
		p.PhaseResistance = f32(f[ffPhaseResistance])
		p.PhaseInductance = f32(f[ffPhaseInductance])
		p.CalibrationCurrent = f32(f[ffCalibrationCurrent])
		p.PhaseOrder = int8(int32(f[ffPhaseOrder]))
		p.Name = ""
	}
	if flags&LoadCalibration != 0 {
		p.FluxOffset = f32(f[ffFluxOffset])
		c.Encoder.SetPositionOffset(f32(f[ffPositionOffset]))
	}
	if err := c.SetProfile(p); err != nil {
		return err
	}
	if flags&LoadConfig == 0 {
		return nil
	}

	cur, pos, pwr := c.Current, c.Position, c.Power
	if cpr := int32(f[ffEncoderCPR]); cpr > 0 {
		c.Encoder.SetCPR(cpr)
	}
	if bw := f32(f[ffEncoderBandwidth]); bw > 0 {
		c.Encoder.SetFilterBandwidth(bw)
	}
	cur.KP.SetBits(f[ffCurrentKP])
	cur.KI.SetBits(f[ffCurrentKI])
	if bw := f32(f[ffCurrentBandwidth]); bw > 0 {
		cur.SetBandwidth(bw)
	}
	cur.Limit.SetBits(f[ffCurrentLimit])
	pos.PositionKP.SetBits(f[ffPositionKP])
	pos.PositionKI.SetBits(f[ffPositionKI])
	pos.PositionKD.SetBits(f[ffPositionKD])
	pos.PositionKDD.SetBits(f[ffPositionKDD])
	pos.VelocityKP.SetBits(f[ffVelocityKP])
	pos.VelocityKI.SetBits(f[ffVelocityKI])
	pos.SetTorqueLimit(f32(f[ffTorqueLimit]))
	pos.SetVelocityLimit(f32(f[ffVelocityLimit]))
	pos.SetAccelerationLimit(f32(f[ffAccelerationLimit]))
	pos.PositionLimitLower.SetBits(f[ffPositionLimitLow])
	pos.PositionLimitUpper.SetBits(f[ffPositionLimitHigh])
	pwr.ThresholdLow.SetBits(f[ffThresholdLow])
	pwr.ThresholdHigh.SetBits(f[ffThresholdHigh])
	if bw := f32(f[ffBusFilter]); bw > 0 {
		pwr.SetFilterBandwidth(bw)
	}
	c.Watchdog.SetTimeout(f[ffWatchdogTimeout])
	if tel != nil {
		tel.SetRate(f[ffFastFrameRate])
	}
	return nil
}

// StoreImage writes the current state to storage.
func StoreImage(c *Controller, tel *Telemetry) error {
	if c.board.Storage == nil {
		return ErrNoStorage
	}
	if !c.stopped() {
		return ErrFlashBusy
	}
	img := Snapshot(c, tel)
	var buf [FlashImageSize]byte
	return c.board.Storage.WriteImage(img.Encode(buf[:0]))
}

// LoadImage reads storage and applies the sections selected by flags.
func LoadImage(c *Controller, tel *Telemetry, flags LoadFlags) error {
	if c.board.Storage == nil {
		return ErrNoStorage
	}
	var buf [FlashImageSize]byte
	n, err := c.board.Storage.ReadImage(buf[:])
	if err != nil {
		return err
	}
	img, err := DecodeFlashImage(buf[:n])
	if err != nil {
		return err
	}
	return img.Apply(c, tel, flags)
}
