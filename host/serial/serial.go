// Package serial opens the USB-serial adapters that SLCAN links run over.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// Port is an open adapter. In-memory pipes stand in for it in tests.
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and unsent output
	Flush() error
}

// Config selects an adapter.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate of the adapter's UART (USB CDC adapters ignore this)
	Baud int

	// ReadTimeout bounds a Read so the link reader notices Close
	ReadTimeout time.Duration
}

var (
	ErrNoDevice = errors.New("serial: no device given")
	ErrBaud     = errors.New("serial: baud rate must be positive")
)

// DefaultConfig returns the configuration for a USB SLCAN adapter
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50 * time.Millisecond,
	}
}

// Validate rejects configurations no port can be opened with.
func (c *Config) Validate() error {
	switch {
	case c.Device == "":
		return ErrNoDevice
	case c.Baud <= 0:
		return ErrBaud
	}
	return nil
}
