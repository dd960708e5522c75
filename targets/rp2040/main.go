//go:build rp2040

package main

import (
	"device/rp"
	"machine"
	"runtime/interrupt"
	"time"

	"gorecoil/core"
	"gorecoil/targets/pio"
)

// Recoil board pinout
const (
	pinPhaseA   = machine.GPIO0 // PWM0 A
	pinPhaseB   = machine.GPIO1 // PWM0 B
	pinPhaseC   = machine.GPIO2 // PWM1 A
	pinGateEN   = machine.GPIO3
	pinEncSDA   = machine.GPIO4
	pinEncSCL   = machine.GPIO5
	pinCANCS    = machine.GPIO9
	pinCANINT   = machine.GPIO20
	pinCANReset = machine.GPIO21
	pinStatus   = machine.GPIO25
	pinShuntA   = machine.ADC0
	pinShuntB   = machine.ADC1
	pinShuntC   = machine.ADC2
	pinBusSense = machine.ADC3

	canBus = "spi1a"
)

var (
	node      *core.Node
	bridge    *PhaseBridge
	link      *CANLink
	wrapMask  uint32
	loopFault uint32
)

func main() {
	// Disable the watchdog left over from a previous reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	core.SetDebugWriter(usbDebugWriter)
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	cfg := core.DefaultConfig()
	board, storage, err := initBoard(cfg)
	if err != nil {
		halt("[BOOT] board: " + err.Error())
	}

	link, err = NewCANLink(rp2040SPIBuses[canBus], pinCANCS, pinCANINT, pinCANReset)
	if err != nil {
		halt("[BOOT] can: " + err.Error())
	}

	node, err = core.NewNode(cfg, board, link)
	if err != nil {
		halt("[BOOT] node: " + err.Error())
	}
	storage.Energized = func() bool { return !node.Controller.Mode().IsSafe() }

	now := UpdateSystemTime()
	node.Boot(now)

	if led, err := pio.NewStatusLED(pinStatus); err != nil {
		core.DebugPrintln("[BOOT] status led: " + err.Error())
	} else {
		led.Schedule(&node.Scheduler, node.Controller, now)
	}

	startCommutation()
	run(cfg)
}

// initBoard brings up the bridge, the current sensing, the angle sensor and
// the flash image store.
func initBoard(cfg core.Config) (core.Board, *FlashStorage, error) {
	var err error
	bridge, err = NewPhaseBridge(pinPhaseA, pinPhaseB, pinPhaseC, pinGateEN, uint32(cfg.CommutationFreq))
	if err != nil {
		return core.Board{}, nil, err
	}
	adc, err := NewShuntADC(pinShuntA, pinShuntB, pinShuntC, pinBusSense)
	if err != nil {
		return core.Board{}, nil, err
	}
	board := core.Board{
		Phases: bridge,
		ADC:    adc,
	}
	// a missing sensor leaves the node reachable over CAN with the
	// encoder fault latched by the first ticks
	enc, err := NewEncoder(machine.I2C0, pinEncSDA, pinEncSCL, cfg.EncoderPrecisionBits)
	if err != nil {
		core.DebugPrintln("[BOOT] encoder: " + err.Error())
	}
	if enc != nil {
		board.Encoder = enc
	}
	storage := NewFlashStorage()
	board.Storage = storage
	return board, storage, nil
}

// startCommutation runs the current loop from the wrap interrupt of the
// phase A slice, once per PWM period.
func startCommutation() {
	wrapMask = 1 << bridge.WrapSlice()
	rp.PWM.INTR.Set(wrapMask)
	rp.PWM.INTE.SetBits(wrapMask)

	intr := interrupt.New(rp.IRQ_PWM_IRQ_WRAP, func(interrupt.Interrupt) {
		rp.PWM.INTR.Set(wrapMask)
		node.Controller.CommutationTick()
	})
	intr.SetPriority(0x00)
	intr.Enable()
}

// run is the task loop: the encoder and position ticks on their own
// periods, then CAN traffic and the scheduler.
func run(cfg core.Config) {
	encoderPeriod := core.TimerFromHz(uint32(cfg.EncoderUpdateFreq))
	positionPeriod := core.TimerFromHz(uint32(cfg.PositionUpdateFreq))
	now := UpdateSystemTime()
	nextEncoder, nextPosition := now, now

	for {
		// Recover from panics in the task loop to keep the node on the bus
		func() {
			defer func() {
				if r := recover(); r != nil {
					loopFault++
					node.Controller.Raise(core.ErrorGeneral)
				}
			}()

			now := UpdateSystemTime()
			if int32(now-nextEncoder) >= 0 {
				node.Controller.EncoderTick()
				nextEncoder = advance(nextEncoder, encoderPeriod, now)
			}
			if int32(now-nextPosition) >= 0 {
				node.Controller.PositionTick(now)
				nextPosition = advance(nextPosition, positionPeriod, now)
			}

			link.Poll(node.Dispatcher.Receive)
			node.Poll(now)
		}()
	}
}

// advance moves a deadline one period on, skipping missed periods rather
// than running them back to back.
func advance(deadline, period, now uint32) uint32 {
	deadline += period
	if int32(now-deadline) >= 0 {
		deadline = now + period
	}
	return deadline
}

// halt keeps reporting a boot failure. The bridge is never enabled.
func halt(msg string) {
	for {
		core.DebugPrintln(msg)
		time.Sleep(time.Second)
	}
}
