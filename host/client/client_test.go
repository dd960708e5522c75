package client

import (
	"context"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gorecoil/core"
	"gorecoil/host/canlink"
	"gorecoil/host/sim"
	"gorecoil/protocol"
)

const testTimeout = 200 * time.Millisecond

// newSimClient runs a simulated controller in real time and returns a
// client connected to it.
func newSimClient(t *testing.T, opts Options) *Client {
	t.Helper()
	variant := opts.Variant
	bus := canlink.NewLoopback()
	cfg := core.DefaultConfig()
	cfg.NominalBusVoltage = 24
	cfg.Variant = variant
	s, err := sim.New(bus, sim.Options{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	opts.Timeout = testTimeout
	c := New(bus.Open(), opts)
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-done
		s.Close()
		bus.Close()
	})
	return c
}

func TestClientPingAndInfo(t *testing.T) {
	c := newSimClient(t, Options{})
	ctx := context.Background()

	if _, err := c.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	info, err := c.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Firmware != protocol.Firmware || info.Device != c.Device() || info.Variant != protocol.VariantStandard {
		t.Errorf("info = %+v", info)
	}
}

func TestClientModes(t *testing.T) {
	c := newSimClient(t, Options{})
	ctx := context.Background()

	st, err := c.SetMode(ctx, core.ModeCurrent, false)
	if errors.Cause(err) != ErrRejected {
		t.Fatalf("disabled -> current: %v", err)
	}
	if st.Mode != core.ModeDisabled || !st.Errors.Has(core.ErrorInvalidMode) {
		t.Errorf("status after refusal = %+v", st)
	}

	if _, err := c.SetMode(ctx, core.ModeIdle, true); err != nil {
		t.Fatal(err)
	}
	if st, err = c.Status(ctx); err != nil || st.Mode != core.ModeIdle || st.Errors != core.ErrorNone {
		t.Errorf("status = %+v, %v", st, err)
	}

	if err := c.Estop(ctx); err != nil {
		t.Fatal(err)
	}
	if st, err = c.Status(ctx); err != nil || st.Mode != core.ModeDisabled || !st.Errors.Has(core.ErrorEstop) {
		t.Errorf("status after estop = %+v, %v", st, err)
	}
}

func TestClientParams(t *testing.T) {
	c := newSimClient(t, Options{})
	ctx := context.Background()

	got, err := c.WriteFloat(ctx, protocol.CmdCurrentKI, 0.02)
	if err != nil || got != 0.02 {
		t.Errorf("write ki = %v, %v", got, err)
	}
	if v, err := c.ReadFloat(ctx, protocol.CmdCurrentKI); err != nil || v != 0.02 {
		t.Errorf("read ki = %v, %v", v, err)
	}

	vbus, err := c.ReadFloat(ctx, protocol.CmdPowerstageBusVoltageMeasured)
	if err != nil || math32.Abs(vbus-24) > 0.5 {
		t.Errorf("bus voltage = %v, %v", vbus, err)
	}
	if _, err := c.WriteFloat(ctx, protocol.CmdPowerstageBusVoltageMeasured, 12); errors.Cause(err) != ErrRejected {
		t.Errorf("read-only write: %v", err)
	}

	// targets are only writable in their mode
	err = c.WriteParams(ctx, []Param{
		{protocol.CmdVelocityTarget, protocol.Float32Word(1)},
		{protocol.CmdCurrentLimit, protocol.Float32Word(8)},
		{protocol.CmdTorqueTarget, protocol.Float32Word(1)},
	})
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("WriteParams errors = %d (%v), want 2", n, err)
	}
	if v, _ := c.ReadFloat(ctx, protocol.CmdCurrentLimit); v != 8 {
		t.Errorf("current limit = %v", v)
	}
}

func TestClientFlash(t *testing.T) {
	c := newSimClient(t, Options{})
	ctx := context.Background()
	if err := c.Flash(ctx, protocol.FlashStore); err != nil {
		t.Fatal(err)
	}
	if err := c.Flash(ctx, protocol.FlashReload); err != nil {
		t.Fatal(err)
	}
}

func TestClientTelemetry(t *testing.T) {
	samples := make(chan Sample, 64)
	c := newSimClient(t, Options{OnTelemetry: func(s Sample) {
		select {
		case samples <- s:
		default:
		}
	}})

	deadline := time.After(time.Second)
	for {
		select {
		case s := <-samples:
			if s.Type != protocol.IDFastFrame1 {
				continue
			}
			if math32.Abs(s.B-24) > 0.5 {
				t.Errorf("telemetry bus voltage = %v", s.B)
			}
			if fb := c.Feedback(); fb.Updated.IsZero() {
				t.Error("feedback not updated")
			}
			return
		case <-deadline:
			t.Fatal("no telemetry")
		}
	}
}

func TestClientLegacyPairs(t *testing.T) {
	c := newSimClient(t, Options{Variant: protocol.VariantLegacy})
	ctx := context.Background()

	kp, err := c.ReadFloat(ctx, protocol.CmdCurrentKP)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.WriteFloat(ctx, protocol.CmdCurrentKI, 0.03); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.ReadFloat(ctx, protocol.CmdCurrentKI); v != 0.03 {
		t.Errorf("ki = %v", v)
	}
	if v, _ := c.ReadFloat(ctx, protocol.CmdCurrentKP); v != kp {
		t.Errorf("kp changed by the pair write: %v -> %v", kp, v)
	}

	if _, err := c.Read(ctx, protocol.CmdDeviceID); errors.Cause(err) != protocol.ErrUnsupported {
		t.Errorf("device id on legacy: %v", err)
	}
	if _, err := c.Ping(ctx); err != nil {
		t.Errorf("legacy ping: %v", err)
	}
}

func TestClientTimeout(t *testing.T) {
	bus := canlink.NewLoopback()
	defer bus.Close()
	c := New(bus.Open(), Options{Timeout: 5 * time.Millisecond, Retries: 1})
	defer c.Close()

	if _, err := c.Ping(context.Background()); errors.Cause(err) != ErrTimeout {
		t.Errorf("ping with no device: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Status(ctx); errors.Cause(err) != context.Canceled {
		t.Errorf("cancelled request: %v", err)
	}
}

// scriptedDevice answers mode requests with a fixed sequence of states.
func scriptedDevice(ep *canlink.Endpoint, dev uint8, states []Status) {
	std := protocol.Standard{}
	i := 0
	for f := range ep.Frames() {
		m, err := std.Decode(f)
		if err != nil || m.Type != protocol.IDMode || m.Device != dev {
			continue
		}
		st := states[i]
		if i < len(states)-1 {
			i++
		}
		reply := protocol.ModeReply(dev, uint8(st.Mode), uint32(st.Errors))
		out, _ := std.Encode(&reply)
		ep.Send(context.Background(), out)
	}
}

func TestClientCalibrate(t *testing.T) {
	cases := []struct {
		name   string
		final  Status
		target error
	}{
		{"success", Status{Mode: core.ModeIdle}, nil},
		{"failure", Status{Mode: core.ModeIdle, Errors: core.ErrorCalibration}, ErrCalibration},
		{"watchdog", Status{Mode: core.ModeDisabled, Errors: core.ErrorWatchdogTimeout}, ErrRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus := canlink.NewLoopback()
			defer bus.Close()
			go scriptedDevice(bus.Open(), 2, []Status{
				{Mode: core.ModeIdle},
				{Mode: core.ModeCalibration},
				{Mode: core.ModeCalibration},
				tc.final,
			})

			c := New(bus.Open(), Options{Device: 2, Timeout: testTimeout})
			defer c.Close()
			st, err := c.Calibrate(context.Background(), time.Millisecond)
			if errors.Cause(err) != tc.target {
				t.Errorf("Calibrate = %v, want %v", err, tc.target)
			}
			if st != tc.final {
				t.Errorf("final status = %+v", st)
			}
		})
	}
}
