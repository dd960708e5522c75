// Package sensor holds drivers for the rotor position sensors the boards
// carry.
package sensor

import (
	"errors"

	"tinygo.org/x/drivers"
)

// MT6701 I2C registers
const (
	MT6701Address = 0x06

	regAngleHigh = 0x03 // angle[13:6]
	regAngleLow  = 0x04 // angle[5:0] in bits 7:2

	// MT6701Bits is the native angle resolution.
	MT6701Bits = 14
)

var (
	ErrBits = errors.New("mt6701: output resolution must be 1..14 bits")
)

// MT6701 is a 14-bit magnetic angle sensor read over I2C. It implements
// core.EncoderDriver.
type MT6701 struct {
	bus     drivers.I2C
	Address uint16
	shift   uint8

	w [1]byte
	r [2]byte
}

// NewMT6701 creates a driver on bus. Call Configure before reading.
func NewMT6701(bus drivers.I2C) *MT6701 {
	return &MT6701{
		bus:     bus,
		Address: MT6701Address,
	}
}

// Configure sets the resolution ReadRaw reports, matching the encoder
// precision of the controller, and checks that the sensor answers.
func (d *MT6701) Configure(bits uint8) error {
	if bits == 0 || bits > MT6701Bits {
		return ErrBits
	}
	d.shift = MT6701Bits - bits
	_, err := d.ReadAngle()
	return err
}

// ReadAngle returns the full 14-bit angle.
func (d *MT6701) ReadAngle() (uint16, error) {
	// the sensor auto-increments from 0x03 to 0x04
	d.w[0] = regAngleHigh
	if err := d.bus.Tx(d.Address, d.w[:], d.r[:]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<6 | uint16(d.r[1]>>2), nil
}

// ReadRaw returns the angle reduced to the configured resolution.
func (d *MT6701) ReadRaw() (uint16, error) {
	a, err := d.ReadAngle()
	if err != nil {
		return 0, err
	}
	return a >> d.shift, nil
}
