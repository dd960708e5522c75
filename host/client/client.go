// Package client talks to one motor controller over a CAN link.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gorecoil/core"
	"gorecoil/host/canlink"
	"gorecoil/protocol"
)

// Client defaults
const (
	DefaultTimeout   = 50 * time.Millisecond
	DefaultRetries   = 2
	DefaultHeartbeat = 25 * time.Millisecond
)

var (
	ErrTimeout     = errors.New("no reply from device")
	ErrRejected    = errors.New("device rejected the request")
	ErrClosed      = errors.New("client closed")
	ErrCalibration = errors.New("calibration failed")
)

// Options configures a Client.
type Options struct {
	Device  uint8
	Variant protocol.Variant

	// Timeout is the wait per attempt; a request is sent 1+Retries times.
	Timeout time.Duration
	Retries int

	// OnTelemetry is called from the receive goroutine for every fast or
	// debug frame of the device.
	OnTelemetry func(Sample)

	Logger *zap.Logger
}

// Sample is one telemetry frame.
type Sample struct {
	Device uint8
	Type   protocol.IDType
	A, B   float32
	Time   time.Time
}

// Feedback is the latest streamed state of the device.
type Feedback struct {
	Position   float32 // rad
	Velocity   float32 // rad/s
	Torque     float32 // N·m
	BusVoltage float32 // V
	Updated    time.Time
}

// Status is the reply to a mode request.
type Status struct {
	Mode   core.Mode
	Errors core.ErrorCode
}

type waiter struct {
	match func(*protocol.Message) bool
	ch    chan protocol.Message
}

// Client represents the host side of one controller on the bus. Requests
// may be issued from several goroutines.
type Client struct {
	link    canlink.Link
	dialect protocol.Dialect
	device  uint8
	timeout time.Duration
	retries int
	onTel   func(Sample)
	log     *zap.Logger

	mu       sync.Mutex
	waiters  []*waiter
	feedback Feedback

	doneChan chan struct{}
	once     sync.Once
}

// New starts a client on link. The client owns the link and closes it.
func New(link canlink.Link, opts Options) *Client {
	if opts.Device == 0 {
		opts.Device = protocol.DefaultDevice
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Client{
		link:     link,
		dialect:  protocol.DialectFor(opts.Variant),
		device:   opts.Device,
		timeout:  opts.Timeout,
		retries:  opts.Retries,
		onTel:    opts.OnTelemetry,
		log:      opts.Logger.With(zap.Uint8("device", opts.Device)),
		doneChan: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Device returns the address the client talks to.
func (c *Client) Device() uint8 { return c.device }

// Feedback returns the latest telemetry.
func (c *Client) Feedback() Feedback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedback
}

// Close closes the link and waits for the receive loop to stop.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = c.link.Close()
		<-c.doneChan
	})
	return err
}

// readLoop matches replies to pending requests until the link closes
func (c *Client) readLoop() {
	defer close(c.doneChan)
	for f := range c.link.Frames() {
		m, err := c.dialect.Decode(f)
		if err != nil {
			c.log.Debug("undecodable frame", zap.Uint32("id", f.ID), zap.Error(err))
			continue
		}
		if m.Device != c.device {
			continue
		}
		switch m.Type {
		case protocol.IDFastFrame0, protocol.IDFastFrame1,
			protocol.IDDebug0, protocol.IDDebug1, protocol.IDDebug2:
			c.telemetry(&m)
			continue
		}
		c.dispatch(&m)
	}
}

func (c *Client) telemetry(m *protocol.Message) {
	a, b, err := protocol.DecodeFastFrame(m)
	if err != nil {
		return
	}
	s := Sample{Device: m.Device, Type: m.Type, A: a, B: b, Time: time.Now()}

	c.mu.Lock()
	switch m.Type {
	case protocol.IDFastFrame0:
		c.feedback.Position, c.feedback.Velocity = a, b
		c.feedback.Updated = s.Time
	case protocol.IDFastFrame1:
		c.feedback.Torque, c.feedback.BusVoltage = a, b
		c.feedback.Updated = s.Time
	}
	c.mu.Unlock()

	if c.onTel != nil {
		c.onTel(s)
	}
}

func (c *Client) dispatch(m *protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.match(m) {
			w.ch <- *m
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
	c.log.Debug("unsolicited reply", zap.Stringer("type", m.Type))
}

func (c *Client) wait(match func(*protocol.Message) bool) *waiter {
	w := &waiter{match: match, ch: make(chan protocol.Message, 1)}
	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return w
}

func (c *Client) cancel(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *Client) send(ctx context.Context, m *protocol.Message) error {
	f, err := c.dialect.Encode(m)
	if err != nil {
		return errors.Wrapf(err, "encode %v", m.Type)
	}
	if err := c.link.Send(ctx, f); err != nil {
		return errors.Wrapf(err, "send %v", m.Type)
	}
	return nil
}

// request sends req until a matching reply arrives or the attempts run out.
func (c *Client) request(ctx context.Context, req protocol.Message, match func(*protocol.Message) bool) (protocol.Message, error) {
	for attempt := 0; attempt <= c.retries; attempt++ {
		w := c.wait(match)
		if err := c.send(ctx, &req); err != nil {
			c.cancel(w)
			return protocol.Message{}, err
		}

		timer := time.NewTimer(c.timeout)
		select {
		case m := <-w.ch:
			timer.Stop()
			return m, nil
		case <-timer.C:
			c.cancel(w)
			c.log.Debug("request timed out", zap.Stringer("type", req.Type), zap.Int("attempt", attempt+1))
		case <-ctx.Done():
			timer.Stop()
			c.cancel(w)
			return protocol.Message{}, ctx.Err()
		case <-c.doneChan:
			timer.Stop()
			return protocol.Message{}, ErrClosed
		}
	}
	return protocol.Message{}, errors.Wrapf(ErrTimeout, "%v to device %d", req.Type, c.device)
}

func (c *Client) reply(t protocol.IDType) func(*protocol.Message) bool {
	return func(m *protocol.Message) bool { return m.Type == t }
}

// Ping measures the round trip to the device.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.request(ctx, protocol.Simple(protocol.IDPing, c.device), c.reply(protocol.IDPing)); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Info returns the firmware identity of the device.
func (c *Client) Info(ctx context.Context) (protocol.Info, error) {
	m, err := c.request(ctx, protocol.Simple(protocol.IDInfo, c.device), c.reply(protocol.IDInfo))
	if err != nil {
		return protocol.Info{}, err
	}
	info, err := protocol.DecodeInfo(&m)
	return info, errors.Wrap(err, "info reply")
}

// Status queries the mode and error flags.
func (c *Client) Status(ctx context.Context) (Status, error) {
	return c.mode(ctx, protocol.Simple(protocol.IDMode, c.device))
}

// SetMode requests a mode change. A refused transition returns the status
// the device reported together with ErrRejected.
func (c *Client) SetMode(ctx context.Context, mode core.Mode, clearErrors bool) (Status, error) {
	st, err := c.mode(ctx, protocol.ModeRequest(c.device, uint8(mode), clearErrors))
	if err != nil {
		return st, err
	}
	if st.Mode != mode {
		return st, errors.Wrapf(ErrRejected, "mode %v: device in %v with errors %v", mode, st.Mode, st.Errors)
	}
	return st, nil
}

func (c *Client) mode(ctx context.Context, req protocol.Message) (Status, error) {
	m, err := c.request(ctx, req, c.reply(protocol.IDMode))
	if err != nil {
		return Status{}, err
	}
	mode, errs, err := protocol.DecodeModeReply(&m)
	if err != nil {
		return Status{}, errors.Wrap(err, "mode reply")
	}
	return Status{Mode: core.Mode(mode), Errors: core.ErrorCode(errs)}, nil
}

// Estop stops the device. There is no reply.
func (c *Client) Estop(ctx context.Context) error {
	return c.send(ctx, &protocol.Message{Type: protocol.IDEstop, Device: c.device})
}

// EstopAll stops every device on the bus.
func (c *Client) EstopAll(ctx context.Context) error {
	return c.send(ctx, &protocol.Message{Type: protocol.IDEstop, Device: core.BroadcastDevice})
}

// Heartbeat feeds the device watchdog once.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.send(ctx, &protocol.Message{Type: protocol.IDSafetyWatchdog, Device: c.device})
}

// RunHeartbeat feeds the watchdog every interval until ctx is done.
func (c *Client) RunHeartbeat(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := c.Heartbeat(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.doneChan:
			return ErrClosed
		case <-ticker.C:
		}
	}
}

// Flash stores or reloads the persistent configuration.
func (c *Client) Flash(ctx context.Context, op protocol.FlashOp) error {
	m, err := c.request(ctx, protocol.FlashRequest(c.device, op), c.reply(protocol.IDFlash))
	if err != nil {
		return err
	}
	_, ok, err := protocol.DecodeFlashReply(&m)
	if err != nil {
		return errors.Wrap(err, "flash reply")
	}
	if !ok {
		return errors.Wrapf(ErrRejected, "flash op %d", op)
	}
	return nil
}

// Calibrate runs the encoder calibration and returns once the device has
// left Calibration mode. The watchdog is fed throughout.
func (c *Client) Calibrate(ctx context.Context, poll time.Duration) (Status, error) {
	if poll <= 0 {
		poll = 4 * DefaultHeartbeat
	}
	if _, err := c.SetMode(ctx, core.ModeIdle, true); err != nil {
		return Status{}, err
	}
	st, err := c.SetMode(ctx, core.ModeCalibration, false)
	if err != nil {
		return st, err
	}
	c.log.Info("calibration started")

	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go c.RunHeartbeat(hbCtx, DefaultHeartbeat)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for st.Mode == core.ModeCalibration {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
		if st, err = c.Status(ctx); err != nil {
			return st, err
		}
	}

	if st.Errors.Has(core.ErrorCalibration) {
		return st, errors.Wrapf(ErrCalibration, "device %d ended in %v", c.device, st.Mode)
	}
	if st.Errors != core.ErrorNone {
		return st, errors.Wrapf(ErrRejected, "calibration interrupted: %v", st.Errors)
	}
	c.log.Info("calibration complete", zap.Stringer("mode", st.Mode))
	return st, nil
}
