//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
)

var errADCTimeout = errors.New("adc conversion timeout")

// adcReadyPolls bounds the wait for one conversion (2 us at 48 MHz)
const adcReadyPolls = 1000

// ShuntADC implements core.ADCDriver for three phase shunt amplifiers and a
// bus voltage divider on the RP2040 ADC inputs. Conversions are started
// through the peripheral registers so the commutation interrupt never goes
// through machine.ADC's locking.
type ShuntADC struct {
	phases [3]uint8 // ADC input numbers
	bus    uint8
}

// NewShuntADC routes the four pins to the ADC. Pins must be GPIO26..29.
func NewShuntADC(a, b, c, bus machine.Pin) (*ShuntADC, error) {
	machine.InitADC()
	d := &ShuntADC{}
	for i, pin := range [4]machine.Pin{a, b, c, bus} {
		ch, err := adcInput(pin)
		if err != nil {
			return nil, err
		}
		adc := machine.ADC{Pin: pin}
		if err := adc.Configure(machine.ADCConfig{}); err != nil {
			return nil, err
		}
		if i < 3 {
			d.phases[i] = ch
		} else {
			d.bus = ch
		}
	}
	return d, nil
}

func adcInput(pin machine.Pin) (uint8, error) {
	switch pin {
	case machine.ADC0:
		return 0, nil
	case machine.ADC1:
		return 1, nil
	case machine.ADC2:
		return 2, nil
	case machine.ADC3:
		return 3, nil
	}
	return 0, errors.New("pin has no ADC input")
}

// convert runs one 12-bit conversion on input ch.
func convert(ch uint8) (uint16, error) {
	rp.ADC.CS.ReplaceBits(uint32(ch)<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for i := 0; !rp.ADC.CS.HasBits(rp.ADC_CS_READY); i++ {
		if i == adcReadyPolls {
			return 0, errADCTimeout
		}
	}
	if rp.ADC.CS.HasBits(rp.ADC_CS_ERR) {
		return 0, errADCTimeout
	}
	return uint16(rp.ADC.RESULT.Get() & 0xFFF), nil
}

// ReadPhases converts the three shunt inputs back to back.
func (d *ShuntADC) ReadPhases() (a, b, c uint16, err error) {
	if a, err = convert(d.phases[0]); err != nil {
		return
	}
	if b, err = convert(d.phases[1]); err != nil {
		return
	}
	c, err = convert(d.phases[2])
	return
}

// ReadBus converts the bus voltage divider.
func (d *ShuntADC) ReadBus() (uint16, error) {
	return convert(d.bus)
}
