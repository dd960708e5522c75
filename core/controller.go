package core

import (
	"errors"
	"sync/atomic"
)

// MaxEncoderFailures is the number of consecutive failed encoder reads
// tolerated before the encoder is declared faulty.
const MaxEncoderFailures = 3

var ErrProfileBusy = errors.New("motor profile can only change while stopped")

// Board bundles the drivers a target hands to the controller.
type Board struct {
	Phases  PhaseDriver
	ADC     ADCDriver
	Encoder EncoderDriver
	Storage Storage
}

// Controller is the motor controller context. The commutation, encoder and
// position ticks run from interrupts of decreasing priority; the dispatcher
// and scheduler run from the main loop. Mode and error flags are single
// atomic words so every level can read them without a lock.
type Controller struct {
	cfg Config

	mode     uint32 // atomic Mode
	errors   uint32 // atomic ErrorCode
	deviceID uint32 // atomic

	profile MotorProfile // guarded by disableInterrupts
	kt      Float32

	Encoder     *Encoder
	Power       *Powerstage
	Current     *CurrentController
	Position    *PositionController
	Watchdog    *Watchdog
	Calibration *Calibration

	board       Board
	encFailures uint8 // encoder tick only
}

// NewController builds a controller in Disabled mode with the default
// motor profile. Nil board drivers are allowed for host simulation.
func NewController(cfg Config, board Board) (*Controller, error) {
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if board.Phases == nil {
		board.Phases = nopPhases{}
	}

	c := &Controller{
		cfg:      cfg,
		board:    board,
		Encoder:  NewEncoder(cfg.EncoderPrecisionBits, cfg.EncoderDirection, cfg.EncoderUpdateFreq, cfg.EncoderFilterBandwidth),
		Power:    NewPowerstage(&cfg),
		Current:  NewCurrentController(&cfg),
		Position: NewPositionController(&cfg),
		Watchdog: NewWatchdog(cfg.WatchdogEnabled, cfg.WatchdogTimeoutMS),
	}
	c.Calibration = newCalibration(c)
	c.Current.SetBandwidth(cfg.CurrentLoopBandwidth)
	atomic.StoreUint32(&c.deviceID, uint32(cfg.DeviceID))
	atomic.StoreUint32(&c.mode, uint32(ModeDisabled))

	if err := c.SetProfile(DefaultProfile); err != nil {
		return nil, err
	}
	c.board.Phases.Disable()
	return c, nil
}

// Config returns the boot configuration.
func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) Mode() Mode { return Mode(atomic.LoadUint32(&c.mode)) }

func (c *Controller) Errors() ErrorCode { return ErrorCode(atomic.LoadUint32(&c.errors)) }

func (c *Controller) DeviceID() uint8 { return uint8(atomic.LoadUint32(&c.deviceID)) }

// SetDeviceID changes the bus address. It takes effect for the next frame.
func (c *Controller) SetDeviceID(id uint8) bool {
	if !c.stopped() || id < 1 || id > 63 {
		return false
	}
	atomic.StoreUint32(&c.deviceID, uint32(id))
	return true
}

// TorqueConstant returns Kt of the active profile.
func (c *Controller) TorqueConstant() float32 { return c.kt.Load() }

// Raise adds flags to the error set. Flags stay set until ClearErrors.
func (c *Controller) Raise(e ErrorCode) {
	for {
		old := atomic.LoadUint32(&c.errors)
		next := old | uint32(e)
		if next == old {
			return
		}
		if atomic.CompareAndSwapUint32(&c.errors, old, next) {
			RecordEvent(EvtFault, uint32(e), next)
			return
		}
	}
}

// ClearErrors resets the error set. It is refused outside Disabled and Idle.
func (c *Controller) ClearErrors() bool {
	if !c.Mode().IsSafe() {
		return false
	}
	old := atomic.SwapUint32(&c.errors, 0)
	if old != 0 {
		RecordEvent(EvtErrorsCleared, old, 0)
	}
	return true
}

// powered reports whether the bridge may drive the motor in m.
func powered(m Mode) bool {
	return !m.IsSafe() && m != ModeDebug
}

// stopped reports whether structural settings may change.
func (c *Controller) stopped() bool {
	return c.Mode().IsSafe()
}

// supervise drops to the safe mode the error set requires.
func (c *Controller) supervise() {
	errs := c.Errors()
	if errs == ErrorNone {
		return
	}
	state := disableInterrupts()
	mode := c.Mode()
	if safe := errs.SafeMode(mode); safe != mode {
		c.enter(safe, mode)
	}
	restoreInterrupts(state)
}

// SetMode requests a transition. A refused request raises ErrorInvalidMode
// and leaves the mode unchanged.
func (c *Controller) SetMode(target Mode) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	current := c.Mode()
	if target == current {
		return true
	}
	if !c.allowed(current, target) {
		RecordEvent(EvtModeRejected, uint32(current), uint32(target))
		c.Raise(ErrorInvalidMode)
		return false
	}
	c.enter(target, current)
	return true
}

func (c *Controller) allowed(from, to Mode) bool {
	if !to.Valid() {
		return false
	}
	switch to {
	case ModeDisabled:
		return true
	case ModeIdle:
		return from != ModeDisabled || c.Errors() == ErrorNone
	}
	if c.Errors() != ErrorNone {
		return false
	}

	switch {
	case to == ModeDebug:
		return c.cfg.DebugModeEnabled && from.IsSafe()
	case from == ModeDisabled:
		return false
	case to.IsClosedLoop():
		return from == ModeIdle || from.IsClosedLoop()
	default:
		// calibration, damping and the override modes start from rest
		return from == ModeIdle
	}
}

// enter performs the entry actions of to. Must be called with interrupts
// masked.
func (c *Controller) enter(to, from Mode) {
	if from == ModeCalibration {
		c.Calibration.abort()
	}

	switch {
	case to == ModeDisabled:
		c.board.Phases.Disable()
		c.Current.Reset()
		c.Position.ResetIntegrators()
	case to == ModeIdle || to == ModeDebug:
		c.board.Phases.Disable()
		c.Current.Reset()
	case to.IsClosedLoop():
		if !from.IsClosedLoop() {
			c.Position.Latch()
			c.Current.Reset()
			c.Current.ClearTargets()
		} else if to == ModePosition {
			pos := c.Position.PositionMeasured.Load()
			c.Position.PositionTarget.Store(pos)
			c.Position.PositionIntegrator.Store(0)
		}
	case to == ModeCalibration:
		c.Current.Reset()
		c.Calibration.start()
	default:
		c.Current.Reset()
	}

	atomic.StoreUint32(&c.mode, uint32(to))
	RecordEvent(EvtModeChange, uint32(from), uint32(to))

	if powered(to) {
		c.Watchdog.Feed(GetTime())
		c.board.Phases.Enable()
	}
}

// Estop disables the bridge at once and latches ErrorEstop.
func (c *Controller) Estop() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	mode := c.Mode()
	RecordEvent(EvtEstop, uint32(mode), 0)
	c.Raise(ErrorEstop)
	if mode != ModeDisabled {
		c.enter(ModeDisabled, mode)
	}
}

// Profile returns a copy of the active motor profile.
func (c *Controller) Profile() MotorProfile {
	state := disableInterrupts()
	p := c.profile
	restoreInterrupts(state)
	return p
}

// SetProfile validates and installs p. Only allowed while stopped.
func (c *Controller) SetProfile(p MotorProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if !c.stopped() {
		return ErrProfileBusy
	}
	c.profile = p
	c.Encoder.SetPolePairs(p.PolePairs)
	c.Encoder.SetFluxOffset(p.FluxOffset)
	c.Power.SetPhaseOrder(p.PhaseOrder)
	c.kt.Store(p.TorqueConstant())
	return nil
}

// updateProfile applies fn to a copy of the profile and installs it.
func (c *Controller) updateProfile(fn func(p *MotorProfile)) error {
	p := c.Profile()
	fn(&p)
	return c.SetProfile(p)
}

// CommutationTick runs the current loop. Call at Config.CommutationFreq.
func (c *Controller) CommutationTick() {
	if c.board.ADC == nil {
		return
	}
	ia, ib, ic, vbus, err := c.Power.Sample(c.board.ADC)
	if err != nil {
		c.Raise(ErrorPowerstage)
	}

	faults := c.Power.Check(ia, ib, ic, vbus)
	if !powered(c.Mode()) {
		// bus thresholds only matter while driving
		faults &= ErrorOverCurrent
	}
	if faults != ErrorNone {
		c.Raise(faults)
	}
	c.supervise()

	mode := c.Mode()
	s := c.Encoder.Sample()
	c.Current.SetPhaseCurrents(ia, ib, ic)

	switch {
	case mode == ModeDamping:
		c.Current.Measure(s.Sin, s.Cos)
		// low sides on, windings shorted
		c.board.Phases.SetDuty(0, 0, 0)
	case powered(mode):
		c.Current.Update(mode, s.Sin, s.Cos, vbus)
		va, vb, vc := c.Current.Outputs()
		c.Power.Apply(c.board.Phases, va, vb, vc, vbus)
	default:
		c.Current.Measure(s.Sin, s.Cos)
	}
}

// EncoderTick reads the angle sensor. Call at Config.EncoderUpdateFreq.
func (c *Controller) EncoderTick() {
	if c.board.Encoder == nil {
		return
	}
	raw, err := c.board.Encoder.ReadRaw()
	if err != nil {
		if c.encFailures < MaxEncoderFailures {
			c.encFailures++
		}
		if c.encFailures >= MaxEncoderFailures {
			c.Raise(ErrorI2CFault)
		}
		return
	}
	c.encFailures = 0
	c.Encoder.Update(raw)
}

// PositionTick runs the watchdog, the calibration routine and the
// position/velocity/torque cascade. Call at Config.PositionUpdateFreq.
func (c *Controller) PositionTick(now uint32) {
	if powered(c.Mode()) && c.Watchdog.Expired(now) {
		RecordEvent(EvtWatchdog, c.Watchdog.Timeout(), 0)
		c.Raise(ErrorWatchdogTimeout)
	}
	c.supervise()

	mode := c.Mode()
	kt := c.kt.Load()
	c.Position.Measure(c.Encoder.Sample(), c.Current.IQMeasured.Load(), kt)

	if mode == ModeCalibration {
		c.Calibration.step(c.Power.BusVoltage())
		return
	}
	if iq, ok := c.Position.Update(mode, kt, c.Current.Limit.Load()); ok {
		c.Current.IQTarget.Store(iq)
		c.Current.IDTarget.Store(0)
	}
}

// Feed records qualifying bus traffic for the watchdog.
func (c *Controller) Feed(now uint32) {
	c.Watchdog.Feed(now)
}
