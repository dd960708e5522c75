package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"gorecoil/core"
	"gorecoil/host/canlink"
	"gorecoil/host/client"
	"gorecoil/host/config"
	"gorecoil/host/sim"
	"gorecoil/protocol"
)

var (
	linkKind = flag.String("link", "socketcan", "CAN link: socketcan, slcan or sim")
	address  = flag.String("addr", "can0", "SocketCAN interface or SLCAN serial device")
	bitrate  = flag.Int("bitrate", canlink.DefaultBitrate, "Bus bitrate (SLCAN adapters only)")
	device   = flag.Uint("device", protocol.DefaultDevice, "Controller bus address")
	variant  = flag.String("variant", "standard", "Protocol variant: standard or legacy")
	timeout  = flag.Duration("timeout", client.DefaultTimeout, "Reply timeout per attempt")
	tuning   = flag.String("config", "", "JSON tuning file; its link section overrides -link/-addr/-bitrate")
	simVbus  = flag.Float64("sim-vbus", 24, "Simulated bus voltage")
	simFlash = flag.String("sim-flash", "", "Directory for simulated flash images")
	verbose  = flag.Bool("verbose", false, "Enable debug logging")
	jsonLog  = flag.Bool("log-json", false, "Log JSON lines instead of console text")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	log, err := newLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := connect(ctx, log)
	if err != nil {
		log.Fatal("connect failed", zap.Error(err))
	}
	defer sess.Close()

	if args := flag.Args(); len(args) > 0 {
		if err := sess.Execute(ctx, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	shell(ctx, sess)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: recoil-host [flags] [command [args...]]\n\n")
	fmt.Fprintf(os.Stderr, "Without a command an interactive shell is started.\n\nFlags:\n")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr)
	printHelp(os.Stderr)
}

func newLogger(verbose, json bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if json {
		cfg = zap.NewProductionConfig()
	}
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// connect opens the link named by the flags (or the tuning file) and
// starts a client for the selected device.
func connect(ctx context.Context, log *zap.Logger) (*session, error) {
	kind, addr, rate := *linkKind, *address, *bitrate
	var tune *config.Config
	if *tuning != "" {
		cfg, err := config.LoadFile(*tuning)
		if err != nil {
			return nil, err
		}
		tune = cfg
		kind, addr, rate = cfg.Link.Kind, cfg.Link.Address, cfg.Link.Bitrate
	}

	v, err := protocol.ParseVariant(*variant)
	if err != nil {
		return nil, err
	}
	if *device > protocol.MaxDeviceID {
		return nil, protocol.ErrInvalidDeviceID
	}
	dev := uint8(*device)

	sess := &session{out: os.Stdout, log: log, tuning: tune}
	var link canlink.Link
	if kind == "sim" {
		link, err = sess.startSim(ctx, dev, v)
	} else {
		link, err = canlink.Open(ctx, kind, addr, rate)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("link open", zap.String("kind", kind), zap.String("address", addr), zap.Uint8("device", dev))

	sess.client = client.New(link, client.Options{
		Device:      dev,
		Variant:     v,
		Timeout:     *timeout,
		Retries:     client.DefaultRetries,
		OnTelemetry: sess.telemetry,
		Logger:      log,
	})
	return sess, nil
}

// startSim runs a simulated controller in the background and returns the
// host end of its bus.
func (s *session) startSim(ctx context.Context, dev uint8, v protocol.Variant) (canlink.Link, error) {
	cfg := core.DefaultConfig()
	cfg.NominalBusVoltage = float32(*simVbus)
	cfg.Variant = v
	cfg.DebugModeEnabled = true

	bus := canlink.NewLoopback()
	sm, err := sim.New(bus, sim.Options{
		Config:   cfg,
		Devices:  []uint8{dev},
		FlashDir: *simFlash,
		Logger:   s.log,
	})
	if err != nil {
		bus.Close()
		return nil, err
	}

	simCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sm.Run(simCtx)
	}()
	s.closers = append(s.closers, func() {
		cancel()
		<-done
		sm.Close()
		bus.Close()
	})
	return bus.Open(), nil
}

// shell reads commands from stdin until EOF or quit
func shell(ctx context.Context, sess *session) {
	fmt.Println("recoil-host: device", sess.client.Device(), "(type 'help' for commands, 'quit' to exit)")
	scanner := bufio.NewScanner(os.Stdin)

	for ctx.Err() == nil {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		switch args[0] {
		case "quit", "exit", "q":
			return
		}

		if err := sess.Execute(ctx, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}
