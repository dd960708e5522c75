package core

import (
	"sync/atomic"

	"gorecoil/protocol"
)

// telemetryIdlePoll is how often a disabled telemetry timer checks for a
// new rate.
const telemetryIdlePoll = 100 // ms

// Telemetry pushes the fast frames from the task scheduler. Position and
// velocity go out on FastFrame0, torque and bus voltage on FastFrame1. In
// Debug mode the raw phase currents and the electrical angle follow on the
// debug IDs.
type Telemetry struct {
	d     *Dispatcher
	rate  uint32 // atomic, Hz; 0 stops the pushes
	timer Timer
	sent  uint32
}

func newTelemetry(d *Dispatcher, rateHz uint32) *Telemetry {
	t := &Telemetry{d: d}
	t.SetRate(rateHz)
	t.timer.Handler = t.push
	return t
}

// Rate returns the push rate in Hz.
func (t *Telemetry) Rate() uint32 { return atomic.LoadUint32(&t.rate) }

// SetRate changes the push rate. It takes effect from the next push.
func (t *Telemetry) SetRate(hz uint32) bool {
	if hz > MaxFastFrameRate {
		return false
	}
	atomic.StoreUint32(&t.rate, hz)
	return true
}

// Sent returns the number of fast frames pushed.
func (t *Telemetry) Sent() uint32 { return atomic.LoadUint32(&t.sent) }

// Start schedules the first push.
func (t *Telemetry) Start(s *Scheduler, now uint32) {
	t.timer.WakeTime = now
	s.Schedule(&t.timer)
}

func (t *Telemetry) push(tm *Timer) uint8 {
	rate := t.Rate()
	if rate == 0 {
		tm.WakeTime += TimerFromMS(telemetryIdlePoll)
		return SF_RESCHEDULE
	}
	tm.WakeTime += TimerFromHz(rate)

	// the legacy dialect has no fast frames
	if t.d.dialect.Variant() == protocol.VariantLegacy {
		return SF_RESCHEDULE
	}

	c := t.d.ctl
	dev := c.DeviceID()
	pos := c.Position

	t.send(protocol.FastFrame(protocol.IDFastFrame0, dev, pos.PositionMeasured.Load(), pos.VelocityMeasured.Load()))
	t.send(protocol.FastFrame(protocol.IDFastFrame1, dev, pos.TorqueMeasured.Load(), c.Power.BusVoltage()))

	if c.Mode() == ModeDebug {
		cur := c.Current
		s := c.Encoder.Sample()
		t.send(protocol.FastFrame(protocol.IDDebug0, dev, cur.IAMeasured.Load(), cur.IBMeasured.Load()))
		t.send(protocol.FastFrame(protocol.IDDebug1, dev, cur.ICMeasured.Load(), s.Electrical))
		t.send(protocol.FastFrame(protocol.IDDebug2, dev, cur.IQMeasured.Load(), cur.IDMeasured.Load()))
	}
	return SF_RESCHEDULE
}

func (t *Telemetry) send(m protocol.Message) {
	if t.d.send(&m) == nil {
		atomic.AddUint32(&t.sent, 1)
	}
}
