//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks every interrupt and returns the previous state.
// Multi-field updates shared with the control loops run between this and
// restoreInterrupts.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
