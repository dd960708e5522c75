package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gorecoil/core"
	"gorecoil/host/client"
	"gorecoil/host/config"
	"gorecoil/protocol"
)

// session is the state shared by the commands of one run
type session struct {
	client  *client.Client
	out     io.Writer
	log     *zap.Logger
	tuning  *config.Config
	closers []func()

	outMutex sync.Mutex
	watching int32 // atomic

	hbMutex   sync.Mutex
	heartbeat context.CancelFunc
}

type command struct {
	name  string
	args  string
	help  string
	nargs int // minimum
	run   func(s *session, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"ping", "", "Measure the round trip to the device", 0, (*session).ping},
		{"info", "", "Show firmware and protocol version", 0, (*session).info},
		{"status", "", "Show mode and error flags", 0, (*session).status},
		{"mode", "<mode> [clear]", "Change mode, optionally clearing errors first", 1, (*session).mode},
		{"estop", "", "Emergency stop the device", 0, (*session).estop},
		{"estop-all", "", "Emergency stop every device on the bus", 0, (*session).estopAll},
		{"read", "<param>", "Read a parameter", 1, (*session).read},
		{"write", "<param> <value>", "Write a parameter", 2, (*session).write},
		{"dump", "", "Read every parameter", 0, (*session).dump},
		{"params", "", "List the parameter names", 0, (*session).params},
		{"profiles", "", "List the motor presets", 0, (*session).profiles},
		{"profile", "<name>", "Load a motor preset into the device", 1, (*session).profile},
		{"flash", "store|reload", "Store or reload the persistent configuration", 1, (*session).flash},
		{"calibrate", "", "Run the encoder calibration", 0, (*session).calibrate},
		{"apply", "[file]", "Push a tuning file to the device", 0, (*session).apply},
		{"heartbeat", "on|off", "Feed the watchdog in the background", 1, (*session).setHeartbeat},
		{"hold", "<duration>", "Feed the watchdog for a while, e.g. 'hold 5s'", 1, (*session).hold},
		{"watch", "<duration>", "Print telemetry for a while", 1, (*session).watch},
		{"help", "", "Show this help message", 0, func(s *session, _ context.Context, _ []string) error {
			printHelp(s.out)
			return nil
		}},
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Available commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-26s - %s\n", strings.TrimSpace(c.name+" "+c.args), c.help)
	}
	fmt.Fprintf(w, "  %-26s - %s\n", "quit/exit/q", "Exit the shell")
}

// Execute runs one command line.
func (s *session) Execute(ctx context.Context, args []string) error {
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if len(args)-1 < c.nargs {
			return errors.Errorf("usage: %s %s", c.name, c.args)
		}
		return c.run(s, ctx, args[1:])
	}
	return errors.Errorf("unknown command %q (type 'help' for available commands)", args[0])
}

// Close stops background work and closes the link.
func (s *session) Close() error {
	s.stopHeartbeat()
	err := s.client.Close()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	return err
}

func (s *session) printf(format string, args ...interface{}) {
	s.outMutex.Lock()
	defer s.outMutex.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) telemetry(sample client.Sample) {
	if atomic.LoadInt32(&s.watching) == 0 {
		return
	}
	s.printf("%-12s %12.4f %12.4f\n", sample.Type, sample.A, sample.B)
}

func (s *session) ping(ctx context.Context, _ []string) error {
	rtt, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	s.printf("pong from device %d in %v\n", s.client.Device(), rtt)
	return nil
}

func (s *session) info(ctx context.Context, _ []string) error {
	info, err := s.client.Info(ctx)
	if err != nil {
		return err
	}
	s.printf("device %d: firmware %s, protocol %d, %s frames\n", info.Device, info.Firmware, info.Protocol, info.Variant)
	return nil
}

func (s *session) printStatus(st client.Status) {
	s.printf("mode %s, errors %s\n", st.Mode, st.Errors)
}

func (s *session) status(ctx context.Context, _ []string) error {
	st, err := s.client.Status(ctx)
	if err != nil {
		return err
	}
	s.printStatus(st)
	return nil
}

func (s *session) mode(ctx context.Context, args []string) error {
	m, ok := core.ParseMode(args[0])
	if !ok {
		return errors.Errorf("unknown mode %q", args[0])
	}
	clearErrs := len(args) > 1 && args[1] == "clear"
	if m.IsClosedLoop() || m.IsOverride() {
		s.log.Warn("watchdog armed; use 'heartbeat on' or 'hold' to keep the device running")
	}
	st, err := s.client.SetMode(ctx, m, clearErrs)
	s.printStatus(st)
	return err
}

func (s *session) estop(ctx context.Context, _ []string) error {
	return s.client.Estop(ctx)
}

func (s *session) estopAll(ctx context.Context, _ []string) error {
	return s.client.EstopAll(ctx)
}

func lookupParam(name string) (protocol.CommandInfo, error) {
	cmd, ok := protocol.LookupName(name)
	if !ok {
		return protocol.CommandInfo{}, errors.Errorf("unknown parameter %q (see 'params')", name)
	}
	info, _ := protocol.Lookup(cmd)
	return info, nil
}

func (s *session) printParam(info protocol.CommandInfo, w uint32) {
	s.printf("%-34s %14s %s\n", info.Name, protocol.FormatWord(info.Encoding, w), info.Unit)
}

func (s *session) read(ctx context.Context, args []string) error {
	info, err := lookupParam(args[0])
	if err != nil {
		return err
	}
	w, err := s.client.Read(ctx, info.Code)
	if err != nil {
		return err
	}
	s.printParam(info, w)
	return nil
}

func (s *session) write(ctx context.Context, args []string) error {
	info, err := lookupParam(args[0])
	if err != nil {
		return err
	}
	w, err := protocol.ParseWord(info.Encoding, args[1])
	if err != nil {
		return errors.Wrapf(err, "value for %s", info.Name)
	}
	got, err := s.client.Write(ctx, info.Code, w)
	if errors.Cause(err) == client.ErrRejected {
		s.printParam(info, got)
	}
	if err != nil {
		return err
	}
	s.printParam(info, got)
	return nil
}

func (s *session) dump(ctx context.Context, _ []string) error {
	params, err := s.client.Dump(ctx)
	for _, p := range params {
		info, _ := protocol.Lookup(p.Command)
		s.printParam(info, p.Word)
	}
	return err
}

func (s *session) params(context.Context, []string) error {
	for _, info := range protocol.Commands() {
		s.printf("0x%02X %-34s %s\n", uint8(info.Code), info.Name, info.Unit)
	}
	return nil
}

func (s *session) profiles(context.Context, []string) error {
	for _, name := range core.ProfileNames() {
		p, _ := core.LookupProfile(name)
		s.printf("%-18s %2d pole pairs, %4.0f KV, %.4f ohm, %.2e H\n",
			name, p.PolePairs, p.KV, p.PhaseResistance, p.PhaseInductance)
	}
	return nil
}

func (s *session) profile(ctx context.Context, args []string) error {
	p, err := core.LookupProfile(args[0])
	if err != nil {
		return errors.Wrapf(err, "%q", args[0])
	}
	return s.client.WriteParams(ctx, config.ProfileWrites(p))
}

func (s *session) flash(ctx context.Context, args []string) error {
	var op protocol.FlashOp
	switch args[0] {
	case "store":
		op = protocol.FlashStore
	case "reload":
		op = protocol.FlashReload
	default:
		return errors.Errorf("unknown flash operation %q", args[0])
	}
	if err := s.client.Flash(ctx, op); err != nil {
		return err
	}
	s.printf("flash %s ok\n", args[0])
	return nil
}

func (s *session) calibrate(ctx context.Context, _ []string) error {
	start := time.Now()
	st, err := s.client.Calibrate(ctx, 0)
	s.printStatus(st)
	if err != nil {
		return err
	}
	flux, err := s.client.ReadFloat(ctx, protocol.CmdEncoderFluxOffset)
	if err != nil {
		return err
	}
	s.printf("calibrated in %v, flux offset %.4f rad\n", time.Since(start).Round(time.Millisecond), flux)
	return nil
}

func (s *session) apply(ctx context.Context, args []string) error {
	tune := s.tuning
	if len(args) > 0 {
		cfg, err := config.LoadFile(args[0])
		if err != nil {
			return err
		}
		tune = cfg
	}
	if tune == nil {
		return errors.New("no tuning file; pass one or start with -config")
	}

	dev, ok := tune.Device(s.client.Device())
	if !ok {
		return errors.Errorf("tuning file has no device %d (has %v)", s.client.Device(), tune.DeviceIDs())
	}
	writes, err := dev.Writes()
	if err != nil {
		return err
	}
	if err := s.client.WriteParams(ctx, writes); err != nil {
		return err
	}
	s.printf("applied %d parameters\n", len(writes))
	if dev.Store {
		return s.flash(ctx, []string{"store"})
	}
	return nil
}

func (s *session) setHeartbeat(ctx context.Context, args []string) error {
	switch args[0] {
	case "on":
		s.startHeartbeat()
	case "off":
		s.stopHeartbeat()
	default:
		return errors.Errorf("usage: heartbeat on|off")
	}
	return nil
}

func (s *session) heartbeatInterval() time.Duration {
	if s.tuning != nil {
		if dev, ok := s.tuning.Device(s.client.Device()); ok {
			return time.Duration(dev.HeartbeatMS) * time.Millisecond
		}
	}
	return client.DefaultHeartbeat
}

// startHeartbeat runs until stopHeartbeat, independent of command contexts
func (s *session) startHeartbeat() {
	s.hbMutex.Lock()
	defer s.hbMutex.Unlock()
	if s.heartbeat != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.heartbeat = cancel
	go func() {
		if err := s.client.RunHeartbeat(ctx, s.heartbeatInterval()); err != nil {
			s.log.Error("heartbeat stopped", zap.Error(err))
		}
	}()
	s.log.Info("heartbeat on", zap.Duration("interval", s.heartbeatInterval()))
}

func (s *session) stopHeartbeat() {
	s.hbMutex.Lock()
	defer s.hbMutex.Unlock()
	if s.heartbeat != nil {
		s.heartbeat()
		s.heartbeat = nil
	}
}

func (s *session) hold(ctx context.Context, args []string) error {
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return s.client.RunHeartbeat(ctx, s.heartbeatInterval())
}

func (s *session) watch(ctx context.Context, args []string) error {
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return err
	}
	atomic.StoreInt32(&s.watching, 1)
	defer atomic.StoreInt32(&s.watching, 0)

	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	fb := s.client.Feedback()
	if fb.Updated.IsZero() {
		return errors.New("no telemetry received")
	}
	s.printf("position %.4f rad, velocity %.4f rad/s, torque %.4f Nm, bus %.2f V\n",
		fb.Position, fb.Velocity, fb.Torque, fb.BusVoltage)
	return nil
}
