package serial

import (
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// NativePort is an adapter opened through tarm/serial.
type NativePort struct {
	port *serial.Port
	name string
}

// Open opens the adapter and discards whatever it buffered before we
// attached, so the first line the link reads is a fresh one.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("serial: config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", cfg.Device)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "flush serial port %s", cfg.Device)
	}
	return &NativePort{port: port, name: cfg.Device}, nil
}

// Name returns the device path.
func (p *NativePort) Name() string { return p.name }

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes all of b. SLCAN adapters drop a command that arrives in
// pieces separated by a read timeout, so short writes are retried here.
func (p *NativePort) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := p.port.Write(b[written:])
		written += n
		if err != nil {
			return written, errors.Wrapf(err, "write %s", p.name)
		}
		if n == 0 {
			return written, errors.Errorf("write %s: no progress", p.name)
		}
	}
	return written, nil
}

// Close closes the serial port
func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush discards unread input and unsent output
func (p *NativePort) Flush() error {
	return p.port.Flush()
}
