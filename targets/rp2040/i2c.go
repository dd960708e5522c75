//go:build rp2040

package main

import (
	"machine"

	"gorecoil/sensor"
)

// encoderI2CFrequency is fast-mode plus; one angle read then fits well
// inside an encoder tick.
const encoderI2CFrequency = 1000000

// NewEncoder configures the I2C bus the MT6701 sits on and returns the
// sensor reduced to the controller's encoder precision. A sensor that does
// not answer is still returned along with the error.
func NewEncoder(bus *machine.I2C, sda, scl machine.Pin, bits uint8) (*sensor.MT6701, error) {
	err := bus.Configure(machine.I2CConfig{
		Frequency: encoderI2CFrequency,
		SDA:       sda,
		SCL:       scl,
	})
	if err != nil {
		return nil, err
	}
	enc := sensor.NewMT6701(bus)
	return enc, enc.Configure(bits)
}
