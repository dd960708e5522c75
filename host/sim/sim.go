// Package sim runs controller firmware against a simulated motor on an
// in-memory CAN bus, so the host tools can be exercised without hardware.
package sim

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.einride.tech/can"
	"go.uber.org/zap"

	"gorecoil/core"
	"gorecoil/foc"
	"gorecoil/host/canlink"
)

// DefaultStep is the simulated time advanced per wall-clock tick in Run.
const DefaultStep = time.Millisecond

// Options configures a simulation.
type Options struct {
	// Config is the board configuration shared by every device. DeviceID
	// is overridden per device.
	Config core.Config

	// Devices lists the bus addresses to simulate. Defaults to the
	// firmware default address.
	Devices []uint8

	// FlashDir persists each device image as a file. Empty keeps images
	// in memory.
	FlashDir string

	Step   time.Duration
	Logger *zap.Logger
}

// Device is one simulated controller.
type Device struct {
	Node  *core.Node
	Plant *Plant

	link canlink.Link
}

// Send implements core.FrameSender on the device's bus endpoint.
func (d *Device) Send(f can.Frame) error {
	return d.link.Send(context.Background(), f)
}

// Sim advances every device in lock step. The firmware keeps its clock and
// event log in package state, so only one Sim should run per process.
type Sim struct {
	devices []*Device
	step    time.Duration
	log     *zap.Logger

	now       uint32
	commTicks int // commutation ticks per Step
	encEvery  int
	posEvery  int
	tickTime  uint32
}

// New builds and boots the devices, each on its own endpoint of bus.
func New(bus *canlink.Loopback, opts Options) (*Sim, error) {
	if len(opts.Devices) == 0 {
		opts.Devices = []uint8{core.DefaultDeviceID}
	}
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger.Named("sim")
	core.SetDebugWriter(func(s string) { log.Debug(s) })
	core.SetDebugEnabled(log.Core().Enabled(zap.DebugLevel))

	s := &Sim{step: opts.Step, log: log}
	for _, id := range opts.Devices {
		d, err := s.newDevice(bus, opts, id)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "sim device %d", id)
		}
		s.devices = append(s.devices, d)
	}

	cfg := s.devices[0].Node.Controller.Config()
	s.tickTime = core.TimerFromHz(uint32(cfg.CommutationFreq))
	s.encEvery = ratio(cfg.CommutationFreq, cfg.EncoderUpdateFreq)
	s.posEvery = ratio(cfg.CommutationFreq, cfg.PositionUpdateFreq)
	s.commTicks = int(opts.Step.Seconds()*float64(cfg.CommutationFreq) + 0.5)
	if s.commTicks < 1 {
		s.commTicks = 1
	}
	return s, nil
}

func ratio(fast, slow float32) int {
	if slow <= 0 || slow >= fast {
		return 1
	}
	return int(fast/slow + 0.5)
}

func (s *Sim) newDevice(bus *canlink.Loopback, opts Options, id uint8) (*Device, error) {
	cfg := opts.Config
	cfg.DeviceID = id

	d := &Device{link: bus.Open()}
	vbus := cfg.NominalBusVoltage
	if vbus == 0 {
		vbus = core.DefaultNominalBusVoltage
	}
	bits := cfg.EncoderPrecisionBits
	if bits == 0 {
		bits = core.DefaultEncoderPrecisionBits
	}
	d.Plant = NewPlant(core.DefaultProfile, vbus, bits)

	var storage core.Storage = &memStorage{}
	if opts.FlashDir != "" {
		storage = fileStorage(filepath.Join(opts.FlashDir, "recoil-"+strconv.Itoa(int(id))+".img"))
	}

	n, err := core.NewNode(cfg, core.Board{
		Phases:  d.Plant,
		ADC:     d.Plant,
		Encoder: d.Plant,
		Storage: storage,
	}, d)
	if err != nil {
		d.link.Close()
		return nil, err
	}
	d.Node = n
	n.Boot(s.now)
	tuneCurrentLoop(n.Controller, d.Plant)

	s.log.Info("device booted",
		zap.Uint8("device", n.Controller.DeviceID()),
		zap.String("profile", n.Controller.Profile().Name),
		zap.Stringer("errors", n.Controller.Errors()))
	return d, nil
}

// tuneCurrentLoop places the current loop at its configured bandwidth for
// the simulated winding. The stock gains are sized for the hardware's
// sampling chain; gains loaded from flash are left alone.
func tuneCurrentLoop(c *core.Controller, p *Plant) {
	if c.Current.KP.Load() != core.DefaultCurrentKP {
		return
	}
	cfg := c.Config()
	wc := foc.TwoPi * cfg.CurrentLoopBandwidth
	c.Current.KP.Store(p.Inductance * wc)
	c.Current.KI.Store(p.Resistance * wc / cfg.CommutationFreq)
}

// Devices returns the simulated controllers.
func (s *Sim) Devices() []*Device { return s.devices }

// Device returns the controller currently answering on id.
func (s *Sim) Device(id uint8) (*Device, bool) {
	for _, d := range s.devices {
		if d.Node.Controller.DeviceID() == id {
			return d, true
		}
	}
	return nil, false
}

// Now returns the simulated time in timer ticks.
func (s *Sim) Now() uint32 { return s.now }

// Step advances the simulation by one step: queued frames are handed to the
// dispatchers, then the loops run at their configured rates.
func (s *Sim) Step() {
	for _, d := range s.devices {
		d.receive()
	}

	dt := float32(s.tickTime) / core.TimerFreq
	for k := 0; k < s.commTicks; k++ {
		s.now += s.tickTime
		core.SetTime(s.now)
		for _, d := range s.devices {
			c := d.Node.Controller
			d.Plant.Step(dt)
			if k%s.encEvery == 0 {
				c.EncoderTick()
			}
			c.CommutationTick()
			if k%s.posEvery == 0 {
				c.PositionTick(s.now)
				d.Node.Poll(s.now)
			}
		}
	}
}

// Advance runs steps until at least d of simulated time has passed.
func (s *Sim) Advance(d time.Duration) {
	for t := time.Duration(0); t < d; t += s.step {
		s.Step()
	}
}

// Run steps the simulation in real time until ctx is done.
func (s *Sim) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.step)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

// Close detaches every device from the bus.
func (s *Sim) Close() error {
	for _, d := range s.devices {
		d.link.Close()
	}
	core.SetDebugWriter(nil)
	core.SetDebugEnabled(false)
	return nil
}

func (d *Device) receive() {
	for {
		select {
		case f, ok := <-d.link.Frames():
			if !ok {
				return
			}
			d.Node.Dispatcher.Receive(f)
		default:
			return
		}
	}
}

type memStorage struct {
	data []byte
}

func (m *memStorage) ReadImage(p []byte) (int, error) {
	if m.data == nil {
		return 0, errors.New("flash erased")
	}
	return copy(p, m.data), nil
}

func (m *memStorage) WriteImage(p []byte) error {
	m.data = append(m.data[:0], p...)
	return nil
}

// fileStorage keeps the image in a file, so a simulated device keeps its
// configuration across runs.
type fileStorage string

func (f fileStorage) ReadImage(p []byte) (int, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return 0, errors.Wrap(err, "read flash image")
	}
	return copy(p, data), nil
}

func (f fileStorage) WriteImage(p []byte) error {
	return errors.Wrap(os.WriteFile(string(f), p, 0o644), "write flash image")
}
