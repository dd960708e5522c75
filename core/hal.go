package core

import (
	"errors"

	"go.einride.tech/can"
)

// PhaseDriver is the abstract three-phase PWM bridge that core code uses.
// Platform-specific implementations handle timer and gate-driver setup.
type PhaseDriver interface {
	// SetDuty sets the high-side duty cycle of each phase, 0 (low side on)
	// to 1 (high side on).
	SetDuty(a, b, c float32)

	// Enable switches the gate driver on.
	Enable()

	// Disable turns every switch off and lets the phases float.
	Disable()
}

// ADCDriver delivers raw ADC codes for the phase shunts and the bus divider.
// It is sampled from the commutation interrupt and must not block.
type ADCDriver interface {
	ReadPhases() (a, b, c uint16, err error)
	ReadBus() (uint16, error)
}

// EncoderDriver delivers the absolute rotor angle in ticks, [0, 2^bits).
type EncoderDriver interface {
	ReadRaw() (uint16, error)
}

// Storage persists the configuration image.
type Storage interface {
	ReadImage(p []byte) (int, error)
	WriteImage(p []byte) error
}

// FrameSender transmits a CAN frame. Implementations must not block for
// longer than a transmit-mailbox check.
type FrameSender interface {
	Send(f can.Frame) error
}

var (
	ErrNoStorage = errors.New("storage not configured")
	ErrNoSender  = errors.New("frame sender not configured")
)

// nopPhases is used until a target registers its bridge.
type nopPhases struct{}

func (nopPhases) SetDuty(a, b, c float32) {}
func (nopPhases) Enable()                 {}
func (nopPhases) Disable()                {}
