//go:build linux

package canlink

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// SocketCAN is a link on a Linux CAN interface.
type SocketCAN struct {
	conn net.Conn
	rx   *socketcan.Receiver
	tx   *socketcan.Transmitter

	frames chan can.Frame
	done   chan struct{}
	once   sync.Once
	err    error
}

// DialSocketCAN opens iface and starts receiving.
func DialSocketCAN(ctx context.Context, iface string) (*SocketCAN, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, errors.Wrapf(err, "socketcan dial %s", iface)
	}
	l := &SocketCAN{
		conn:   conn,
		rx:     socketcan.NewReceiver(conn),
		tx:     socketcan.NewTransmitter(conn),
		frames: make(chan can.Frame, RxQueueSize),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

func (l *SocketCAN) readLoop() {
	defer close(l.frames)
	for l.rx.Receive() {
		if l.rx.HasErrorFrame() {
			continue
		}
		deliver(l.frames, l.rx.Frame())
	}
	select {
	case <-l.done:
	default:
		l.err = l.rx.Err()
	}
}

func (l *SocketCAN) Send(ctx context.Context, f can.Frame) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	return errors.Wrap(l.tx.TransmitFrame(ctx, f), "socketcan transmit")
}

func (l *SocketCAN) Frames() <-chan can.Frame { return l.frames }

// Err returns the error that stopped the receive loop, if any.
func (l *SocketCAN) Err() error { return l.err }

func (l *SocketCAN) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}
