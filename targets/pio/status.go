//go:build rp2040

package pio

// Status LED driven by a PIO state machine. The task loop pushes one word
// per burst and the state machine does all of the timing, so a slow CAN
// poll never stretches a blink.

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gorecoil/core"
)

// buildBlinkProgram creates the blink program using AssemblerV0.
// Each pulled word is the number of blinks minus one.
func buildBlinkProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(), // 1: out x, 16
		// blink:
		asm.Set(rp2pio.SetDestPins, 1).Encode(),            // 2: set pins, 1
		asm.Set(rp2pio.SetDestY, 7).Encode(),               // 3: set y, 7
		asm.Jmp(4, rp2pio.JmpYNZeroDec).Delay(31).Encode(), // 4: jmp y--, 4 [31]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),            // 5: set pins, 0
		asm.Set(rp2pio.SetDestY, 7).Encode(),               // 6: set y, 7
		asm.Jmp(7, rp2pio.JmpYNZeroDec).Delay(31).Encode(), // 7: jmp y--, 7 [31]
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(),           // 8: jmp x--, 2
		// .wrap
	}
}

const (
	blinkPIOOrigin = 0 // jump targets are absolute

	// slowest clock: about 0.5 ms per cycle at 125 MHz, so one on or off
	// phase of 8 x 32 cycles lasts about 130 ms
	blinkClkDiv = 65535
)

// StatusLED blinks an error code on one pin.
type StatusLED struct {
	pio *rp2pio.PIO
	sm  rp2pio.StateMachine
	pin machine.Pin
}

// NewStatusLED loads the blink program on PIO1 and starts its state
// machine with the LED off.
func NewStatusLED(pin machine.Pin) (*StatusLED, error) {
	pioHW := rp2pio.PIO1
	l := &StatusLED{
		pio: pioHW,
		sm:  pioHW.StateMachine(0),
		pin: pin,
	}
	l.sm.TryClaim()

	program := buildBlinkProgram()
	offset, err := l.pio.AddProgram(program, blinkPIOOrigin)
	if err != nil {
		return nil, err
	}

	pin.Configure(machine.PinConfig{Mode: l.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(blinkClkDiv, 0)

	// pin directions must be set after Init
	l.sm.Init(offset, cfg)
	l.sm.SetPindirsConsecutive(pin, 1, true)
	l.sm.SetPinsConsecutive(pin, 1, false)
	l.sm.SetEnabled(true)
	return l, nil
}

// Show starts a burst of n blinks. It never waits: a burst that is still
// queued makes it a no-op.
func (l *StatusLED) Show(n uint32) {
	if n == 0 || l.sm.IsTxFIFOFull() {
		return
	}
	l.sm.TxPut(n - 1)
}

// Schedule reports the error set of src once per StatusPeriodMS from the
// scheduler.
func (l *StatusLED) Schedule(s *core.Scheduler, src interface{ Errors() core.ErrorCode }, now uint32) {
	period := core.TimerFromMS(StatusPeriodMS)
	s.Schedule(&core.Timer{
		WakeTime: now + period,
		Handler: func(t *core.Timer) uint8 {
			l.Show(BlinkCount(src.Errors()))
			t.WakeTime += period
			return core.SF_RESCHEDULE
		},
	})
}
