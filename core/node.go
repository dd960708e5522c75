package core

// Node wires the controller, the parameter table, the dispatcher and the
// task scheduler into one CAN device.
type Node struct {
	Controller *Controller
	Params     *ParamTable
	Dispatcher *Dispatcher
	Telemetry  *Telemetry
	Scheduler  Scheduler
}

// NewNode builds a node. sender may be nil for a node that never replies.
func NewNode(cfg Config, board Board, sender FrameSender) (*Node, error) {
	ctl, err := NewController(cfg, board)
	if err != nil {
		return nil, err
	}
	n := &Node{
		Controller: ctl,
		Params:     NewParamTable(),
	}
	n.Dispatcher = NewDispatcher(ctl, n.Params, sender)
	n.Telemetry = newTelemetry(n.Dispatcher, ctl.cfg.FastFrameRateHz)
	n.Dispatcher.tel = n.Telemetry
	RegisterParams(n.Params, ctl, n.Telemetry)
	return n, nil
}

// Boot measures the current sensor offsets, loads the persisted
// configuration and starts telemetry. It must run before the control
// interrupts are enabled. A missing or corrupt image leaves the defaults
// in place; a failed offset measurement latches ErrorInitialization.
func (n *Node) Boot(now uint32) {
	c := n.Controller
	if c.board.ADC != nil {
		if err := c.Power.CalibrateOffsets(c.board.ADC, ADCOffsetSamples); err != nil {
			DebugPrintln("[BOOT] adc offsets: " + err.Error())
			c.Raise(ErrorInitialization)
		}
	}

	if flags := c.cfg.LoadFlags; flags != 0 && c.board.Storage != nil {
		if err := LoadImage(c, n.Telemetry, flags); err != nil {
			DebugPrintln("[BOOT] flash: " + err.Error())
		} else {
			DebugPrintln("[BOOT] flash image loaded")
		}
	}

	c.Watchdog.Feed(now)
	n.Telemetry.Start(&n.Scheduler, now)
	DebugPrintln("[BOOT] device " + itoa(int(c.DeviceID())) + " " + c.cfg.Variant.String())
}

// Poll runs the task context once: received frames first, then due timers.
func (n *Node) Poll(now uint32) {
	n.Dispatcher.Poll(now)
	n.Scheduler.Dispatch(now)
}
