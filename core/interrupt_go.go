//go:build !tinygo

package core

// State stands in for the saved interrupt mask on host builds
type State uintptr

// disableInterrupts is a no-op on host builds, where the control loops are
// driven synchronously by tests and simulations
func disableInterrupts() State {
	return 0
}

// restoreInterrupts is a no-op on host builds
func restoreInterrupts(state State) {}
