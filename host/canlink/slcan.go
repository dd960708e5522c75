package canlink

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.uber.org/multierr"

	"gorecoil/host/serial"
	"gorecoil/protocol"
)

// DefaultBitrate is the bus rate of the controllers.
const DefaultBitrate = 1000000

// SLCAN is a link through a USB-serial adapter speaking the Lawicel ASCII
// protocol.
type SLCAN struct {
	port io.ReadWriteCloser

	writeMutex sync.Mutex
	out        []byte

	input   *protocol.LineBuffer
	decoder *protocol.SLCANDecoder
	frames  chan can.Frame
	dropped uint32 // atomic

	stopChan chan struct{}
	doneChan chan struct{}
	once     sync.Once
}

// OpenSLCAN opens the adapter on device and sets the bus bitrate.
func OpenSLCAN(device string, bitrate int) (*SLCAN, error) {
	port, err := serial.Open(serial.DefaultConfig(device))
	if err != nil {
		return nil, err
	}
	l, err := NewSLCAN(port, bitrate)
	if err != nil {
		return nil, multierr.Append(err, port.Close())
	}
	return l, nil
}

// NewSLCAN configures an adapter on an open port and starts the reader.
func NewSLCAN(port io.ReadWriteCloser, bitrate int) (*SLCAN, error) {
	if bitrate == 0 {
		bitrate = DefaultBitrate
	}
	setup, ok := protocol.SLCANBitrate(bitrate)
	if !ok {
		return nil, errors.Errorf("slcan: unsupported bitrate %d", bitrate)
	}

	l := &SLCAN{
		port:     port,
		out:      make([]byte, 0, protocol.SLCANMaxLine+1),
		input:    protocol.NewLineBuffer(protocol.SLCANMaxLine),
		frames:   make(chan can.Frame, RxQueueSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	l.decoder = protocol.NewSLCANDecoder(func(f can.Frame) {
		if deliver(l.frames, f) {
			atomic.AddUint32(&l.dropped, 1)
		}
	})

	// close first in case the adapter was left open
	for _, cmd := range [][]byte{protocol.SLCANClose, setup, protocol.SLCANOpen} {
		if _, err := port.Write(cmd); err != nil {
			return nil, errors.Wrap(err, "slcan setup")
		}
	}

	go l.readLoop()
	return l, nil
}

// readLoop continuously reads from the port and decodes frames
func (l *SLCAN) readLoop() {
	defer close(l.doneChan)
	defer close(l.frames)

	buffer := make([]byte, 256)

	for {
		select {
		case <-l.stopChan:
			return
		default:
		}

		n, err := l.port.Read(buffer)
		if n > 0 {
			l.input.Write(buffer[:n])
			l.decoder.Receive(l.input)
		}
		if err != nil {
			select {
			case <-l.stopChan:
				return
			default:
			}
			// read timeouts surface as EOF on some platforms
			if err != io.EOF {
				time.Sleep(10 * time.Millisecond)
			}
		}
	}
}

func (l *SLCAN) Send(ctx context.Context, f can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.stopChan:
		return ErrClosed
	default:
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	l.out = protocol.AppendSLCAN(l.out[:0], f)
	n, err := l.port.Write(l.out)
	if err != nil {
		return errors.Wrap(err, "slcan write")
	}
	if n != len(l.out) {
		return errors.Errorf("slcan: incomplete write %d/%d bytes", n, len(l.out))
	}
	return nil
}

func (l *SLCAN) Frames() <-chan can.Frame { return l.frames }

// Stats returns the number of unparseable or overlong lines, adapter NAKs
// and frames dropped because the reader lagged.
func (l *SLCAN) Stats() (errs, naks, dropped uint32) {
	errs = l.decoder.Errors() + l.input.Overruns()
	return errs, l.decoder.Naks(), atomic.LoadUint32(&l.dropped)
}

// Close closes the bus and the port and waits for the reader to stop.
func (l *SLCAN) Close() error {
	var err error
	l.once.Do(func() {
		close(l.stopChan)
		l.writeMutex.Lock()
		_, werr := l.port.Write(protocol.SLCANClose)
		l.writeMutex.Unlock()
		err = multierr.Combine(werr, l.port.Close())
		<-l.doneChan
	})
	return err
}
