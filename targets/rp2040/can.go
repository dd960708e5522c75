//go:build rp2040

package main

import (
	"errors"
	"machine"
	"time"

	"go.einride.tech/can"
	"tinygo.org/x/drivers/mcp2515"
)

// CAN controller settings
const (
	canSPIRate    = 8000000
	canBitrate    = mcp2515.CAN1000kBps
	canOscillator = mcp2515.Clock16MHz

	// frames drained per main loop pass
	canRxBurst = 4
)

var errFrameUnsupported = errors.New("mcp2515: remote and extended frames are not supported")

// CANLink carries frames between the node and an MCP2515 on SPI. It
// implements core.FrameSender. The driver does not report the remote
// request bit, so the board only speaks the standard dialect.
type CANLink struct {
	dev   *mcp2515.Device
	irq   machine.Pin
	txErr uint32
	rxErr uint32
}

// NewCANLink brings the controller out of reset and onto the bus.
func NewCANLink(bus spiBusConfig, cs, irq, reset machine.Pin) (*CANLink, error) {
	reset.Configure(machine.PinConfig{Mode: machine.PinOutput})
	reset.Low()
	time.Sleep(10 * time.Millisecond)
	reset.High()
	time.Sleep(10 * time.Millisecond)

	irq.Configure(machine.PinConfig{Mode: machine.PinInputPullup})

	spi, err := bus.configure(canSPIRate)
	if err != nil {
		return nil, err
	}
	dev := mcp2515.New(spi, cs)
	dev.Configure()
	if err := dev.Begin(canBitrate, canOscillator); err != nil {
		return nil, err
	}
	return &CANLink{dev: dev, irq: irq}, nil
}

// Send queues f in a transmit buffer.
func (l *CANLink) Send(f can.Frame) error {
	if f.IsRemote || f.IsExtended {
		return errFrameUnsupported
	}
	if err := l.dev.Tx(f.ID, f.Length, f.Data[:f.Length]); err != nil {
		l.txErr++
		return err
	}
	return nil
}

// Poll hands up to canRxBurst received frames to deliver. The interrupt
// line is active low and is checked first so an idle bus costs no SPI
// traffic.
func (l *CANLink) Poll(deliver func(can.Frame)) {
	for i := 0; i < canRxBurst; i++ {
		if l.irq.Get() || !l.dev.Received() {
			return
		}
		msg, err := l.dev.Rx()
		if err != nil {
			l.rxErr++
			return
		}
		var f can.Frame
		f.ID = msg.ID
		f.Length = msg.Dlc
		if f.Length > 8 {
			f.Length = 8
		}
		copy(f.Data[:f.Length], msg.Data)
		deliver(f)
	}
}

// Errors returns the transmit and receive failure counts.
func (l *CANLink) Errors() (tx, rx uint32) { return l.txErr, l.rxErr }
