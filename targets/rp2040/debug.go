//go:build rp2040

package main

import "machine"

// maxDebugWriteFailures marks the host as gone; writes stop until it sends
// something
const maxDebugWriteFailures = 10

var debugWriteFailures uint32

// InitUSB configures machine.Serial, which is USB CDC on the RP2040.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// usbDebugWriter is installed as the core debug writer. A detached host
// fills the CDC buffer, so after repeated failures lines are dropped
// instead of blocking the task loop.
func usbDebugWriter(s string) {
	if debugWriteFailures >= maxDebugWriteFailures {
		if machine.Serial.Buffered() == 0 {
			return
		}
		debugWriteFailures = 0
	}
	if !writeAll([]byte(s)) || !writeAll([]byte("\r\n")) {
		debugWriteFailures++
		return
	}
	debugWriteFailures = 0
}

func writeAll(p []byte) bool {
	for len(p) > 0 {
		n, err := machine.Serial.Write(p)
		if err != nil || n == 0 {
			return false
		}
		p = p[n:]
	}
	return true
}
