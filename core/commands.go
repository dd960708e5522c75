package core

import (
	"sync/atomic"

	"go.einride.tech/can"

	"gorecoil/protocol"
)

// BroadcastDevice addresses every node. Only Estop is honoured on it.
const BroadcastDevice = 0

// Dispatcher decodes received frames and applies them to the controller.
// Receive runs in the CAN interrupt and only queues; Poll runs in the main
// loop and does the work.
type Dispatcher struct {
	ctl     *Controller
	params  *ParamTable
	dialect protocol.Dialect
	sender  FrameSender
	tel     *Telemetry

	rx protocol.FrameFIFO

	handled  uint32 // atomic
	rxErrors uint32 // atomic, undecodable frames
	txErrors uint32 // atomic
}

// NewDispatcher creates a dispatcher speaking the dialect of the
// configured board variant.
func NewDispatcher(ctl *Controller, params *ParamTable, sender FrameSender) *Dispatcher {
	return &Dispatcher{
		ctl:     ctl,
		params:  params,
		dialect: protocol.DialectFor(ctl.cfg.Variant),
		sender:  sender,
	}
}

// Receive queues a frame. Safe from the CAN receive interrupt. A full
// queue loses commands, which is treated as a bus fault.
func (d *Dispatcher) Receive(f can.Frame) {
	if !d.rx.Push(f) {
		d.ctl.Raise(ErrorCANRxFault)
	}
}

// Poll handles every queued frame and returns how many were processed.
func (d *Dispatcher) Poll(now uint32) int {
	n := 0
	for {
		f, ok := d.rx.Pop()
		if !ok {
			return n
		}
		d.Handle(f, now)
		n++
	}
}

// Handle decodes and executes one frame.
func (d *Dispatcher) Handle(f can.Frame, now uint32) {
	m, err := d.dialect.Decode(f)
	if err != nil {
		atomic.AddUint32(&d.rxErrors, 1)
		return
	}

	dev := d.ctl.DeviceID()
	if m.Device != dev {
		if m.Device == BroadcastDevice && m.Type == protocol.IDEstop {
			d.ctl.Estop()
		}
		return
	}
	atomic.AddUint32(&d.handled, 1)

	switch m.Type {
	case protocol.IDEstop:
		d.ctl.Estop()
	case protocol.IDInfo:
		reply := protocol.InfoReply(dev, protocol.Info{
			Firmware: protocol.Firmware,
			Device:   dev,
			Protocol: protocol.Version,
			Variant:  d.dialect.Variant(),
		})
		d.reply(&m, &reply)
	case protocol.IDSafetyWatchdog:
		d.ctl.Feed(now)
	case protocol.IDMode:
		d.handleMode(&m)
	case protocol.IDFlash:
		d.handleFlash(&m)
	case protocol.IDParamRead:
		d.handleParams(&m, false, now)
	case protocol.IDParamWrite:
		d.handleParams(&m, true, now)
	case protocol.IDPing:
		reply := protocol.Simple(protocol.IDPing, dev)
		d.reply(&m, &reply)
	}
}

func (d *Dispatcher) handleMode(m *protocol.Message) {
	if mode, clearErrs, ok := protocol.DecodeModeRequest(m); ok {
		if clearErrs {
			d.ctl.ClearErrors()
		}
		d.ctl.SetMode(Mode(mode))
	}
	reply := protocol.ModeReply(m.Device, uint8(d.ctl.Mode()), uint32(d.ctl.Errors()))
	d.reply(m, &reply)
}

func (d *Dispatcher) handleFlash(m *protocol.Message) {
	op, ok := protocol.DecodeFlashRequest(m)
	if !ok {
		return
	}
	var err error
	switch op {
	case protocol.FlashStore:
		err = StoreImage(d.ctl, d.tel)
	case protocol.FlashReload:
		err = LoadImage(d.ctl, d.tel, d.ctl.cfg.LoadFlags)
	}
	success := err == nil
	RecordEvent(EvtFlash, uint32(op), boolWord(success))
	if !success {
		DebugAsync("[FLASH] " + err.Error())
	}
	reply := protocol.FlashReply(m.Device, op, success)
	d.reply(m, &reply)
}

func (d *Dispatcher) handleParams(m *protocol.Message, write bool, now uint32) {
	reply := *m
	mode := d.ctl.Mode()
	for i := uint8(0); i < m.N; i++ {
		code := m.Commands[i]
		var w uint32
		var err error
		if write {
			w, err = d.params.Write(code, m.Words[i], mode)
		} else {
			w, err = d.params.Read(code)
		}
		if err == ErrUnknownParam {
			atomic.AddUint32(&d.rxErrors, 1)
			return
		}
		if err != nil {
			RecordEvent(EvtParamRejected, uint32(code), uint32(mode))
		}
		reply.Words[i] = w
	}
	if write {
		d.ctl.Feed(now)
	}
	d.reply(m, &reply)
}

// reply sends out with the legacy function id of the request echoed.
func (d *Dispatcher) reply(req, out *protocol.Message) {
	out.Function = req.Function
	d.send(out)
}

func (d *Dispatcher) send(m *protocol.Message) error {
	if d.sender == nil {
		return ErrNoSender
	}
	f, err := d.dialect.Encode(m)
	if err == nil {
		err = d.sender.Send(f)
	}
	if err != nil {
		atomic.AddUint32(&d.txErrors, 1)
	}
	return err
}

// Stats returns the number of handled frames and the receive and transmit
// error counts.
func (d *Dispatcher) Stats() (handled, rxErrors, txErrors uint32) {
	return atomic.LoadUint32(&d.handled), atomic.LoadUint32(&d.rxErrors), atomic.LoadUint32(&d.txErrors)
}

// Dropped returns how many frames the receive queue has lost.
func (d *Dispatcher) Dropped() uint32 { return d.rx.Dropped() }

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
