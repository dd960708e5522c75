// Package canlink connects the host to a CAN bus.
package canlink

import (
	"context"

	"github.com/pkg/errors"
	"go.einride.tech/can"
)

// RxQueueSize is the number of received frames buffered per link.
const RxQueueSize = 256

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("canlink: link closed")

// Link is a host connection to a CAN bus.
type Link interface {
	// Send transmits one frame.
	Send(ctx context.Context, f can.Frame) error

	// Frames delivers received frames. The channel is closed when the link
	// stops.
	Frames() <-chan can.Frame

	// Close stops the receive loop and releases the interface.
	Close() error
}

// deliver queues f, dropping the oldest frame when the reader lags.
func deliver(ch chan can.Frame, f can.Frame) (dropped bool) {
	select {
	case ch <- f:
		return false
	default:
	}
	select {
	case <-ch:
		dropped = true
	default:
	}
	select {
	case ch <- f:
	default:
	}
	return dropped
}

// Open opens a link by kind: "socketcan" takes an interface name
// ("can0", "vcan0"), "slcan" a serial device path.
func Open(ctx context.Context, kind, address string, bitrate int) (Link, error) {
	switch kind {
	case "socketcan":
		l, err := DialSocketCAN(ctx, address)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "slcan":
		l, err := OpenSLCAN(address, bitrate)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, errors.Errorf("canlink: unknown link kind %q", kind)
}
