//go:build rp2040

package main

import (
	"device/rp"
	"machine"
)

// pwmPeripheral is an interface for PWM hardware peripherals
// This abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// phaseOutput is one half bridge: the slice that drives it and the
// channel on that slice.
type phaseOutput struct {
	pin     machine.Pin
	slice   uint8
	pwm     pwmPeripheral
	channel uint8
}

// PhaseBridge implements core.PhaseDriver on three RP2040 PWM channels
// and a gate driver enable pin. Phase A and B share a slice; phase C sits
// on the next one, and both slices are started in the same register write
// so their counters stay aligned.
type PhaseBridge struct {
	phases [3]phaseOutput
	enable machine.Pin
	top    uint32
}

// NewPhaseBridge configures the slices for the commutation frequency with
// every phase at 50% and the gate driver off.
func NewPhaseBridge(a, b, c, enable machine.Pin, freqHz uint32) (*PhaseBridge, error) {
	br := &PhaseBridge{enable: enable}
	enable.Configure(machine.PinConfig{Mode: machine.PinOutput})
	enable.Low()

	period := uint64(1e9) / uint64(freqHz)
	configured := uint32(0)
	for i, pin := range [3]machine.Pin{a, b, c} {
		// GPIO N drives slice (N >> 1) & 7, channel N & 1
		slice := uint8((uint32(pin) >> 1) & 0x7)
		pwm := getPWMPeripheral(slice)
		if configured&(1<<slice) == 0 {
			if err := pwm.Configure(machine.PWMConfig{Period: period}); err != nil {
				return nil, err
			}
			configured |= 1 << slice
		}
		ch, err := pwm.Channel(pin)
		if err != nil {
			return nil, err
		}
		br.phases[i] = phaseOutput{pin: pin, slice: slice, pwm: pwm, channel: ch}
	}
	br.top = br.phases[0].pwm.Top()

	// restart the used slices together
	rp.PWM.EN.ClearBits(configured)
	for i := range br.phases {
		br.phases[i].pwm.Set(br.phases[i].channel, br.top/2)
	}
	rp.PWM.EN.SetBits(configured)
	return br, nil
}

// WrapSlice is the slice whose counter wrap paces the commutation interrupt.
func (br *PhaseBridge) WrapSlice() uint8 { return br.phases[0].slice }

// SetDuty sets the high-side duty cycle of each phase, 0 to 1.
func (br *PhaseBridge) SetDuty(a, b, c float32) {
	for i, d := range [3]float32{a, b, c} {
		p := &br.phases[i]
		p.pwm.Set(p.channel, br.level(d))
	}
}

func (br *PhaseBridge) level(d float32) uint32 {
	switch {
	case d <= 0:
		return 0
	case d >= 1:
		return br.top
	}
	return uint32(d*float32(br.top) + 0.5)
}

// Enable switches the gate driver on.
func (br *PhaseBridge) Enable() { br.enable.High() }

// Disable turns the gate driver off, which floats every phase.
func (br *PhaseBridge) Disable() {
	br.enable.Low()
	for i := range br.phases {
		p := &br.phases[i]
		p.pwm.Set(p.channel, br.top/2)
	}
}

// getPWMPeripheral returns the PWM peripheral for a given slice number
func getPWMPeripheral(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
