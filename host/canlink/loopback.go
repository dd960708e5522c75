package canlink

import (
	"context"
	"sync"

	"go.einride.tech/can"
)

// Loopback is an in-memory bus for tests and simulations. Every frame sent
// on one endpoint is delivered to all the others.
type Loopback struct {
	mu        sync.RWMutex
	closed    bool
	endpoints map[*Endpoint]struct{}
}

// NewLoopback creates an empty bus.
func NewLoopback() *Loopback {
	return &Loopback{endpoints: make(map[*Endpoint]struct{})}
}

// Open attaches a new endpoint.
func (b *Loopback) Open() *Endpoint {
	ep := &Endpoint{
		bus:    b,
		frames: make(chan can.Frame, RxQueueSize),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ep.dead = true
		close(ep.frames)
		return ep
	}
	b.endpoints[ep] = struct{}{}
	return ep
}

// Close detaches every endpoint.
func (b *Loopback) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.shut()
	}
	b.endpoints = nil
	return nil
}

// Endpoint is one node on a Loopback bus. It implements Link.
type Endpoint struct {
	bus    *Loopback
	frames chan can.Frame

	mu   sync.Mutex
	dead bool
}

func (e *Endpoint) Send(ctx context.Context, f can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}

	e.bus.mu.RLock()
	defer e.bus.mu.RUnlock()
	if e.bus.closed || e.isDead() {
		return ErrClosed
	}
	for ep := range e.bus.endpoints {
		if ep != e {
			ep.push(f)
		}
	}
	return nil
}

func (e *Endpoint) push(f can.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dead {
		deliver(e.frames, f)
	}
}

func (e *Endpoint) isDead() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dead
}

func (e *Endpoint) Frames() <-chan can.Frame { return e.frames }

// Close detaches the endpoint from the bus.
func (e *Endpoint) Close() error {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	e.shut()
	if e.bus.endpoints != nil {
		delete(e.bus.endpoints, e)
	}
	return nil
}

func (e *Endpoint) shut() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dead {
		e.dead = true
		close(e.frames)
	}
}
