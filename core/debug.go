package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a controller event for post-mortem analysis
type Event struct {
	Type   uint8  // Event type code
	Clock  uint32 // System clock at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event type codes
const (
	EvtModeChange    = 1 // v1 = from, v2 = to
	EvtModeRejected  = 2 // v1 = current, v2 = requested
	EvtFault         = 3 // v1 = new flags, v2 = all flags
	EvtEstop         = 4 // v1 = mode at the time
	EvtWatchdog      = 5 // v1 = timeout ms
	EvtCalibration   = 6 // v1 = stage, v2 = 1 on success
	EvtFlash         = 7 // v1 = op, v2 = 1 on success
	EvtParamRejected = 8 // v1 = command, v2 = mode
	EvtErrorsCleared = 9 // v1 = flags cleared
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	eventRing     [EventRingSize]Event
	eventRingHead uint8

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugEnabled && debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordEvent captures an event in the ring buffer. Safe from interrupts.
func RecordEvent(eventType uint8, value1, value2 uint32) {
	state := disableInterrupts()
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:   eventType,
		Clock:  GetTime(),
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	restoreInterrupts(state)
}

// Events returns the recorded events, oldest first.
func Events() []Event {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	out := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Type != 0 {
			out = append(out, evt)
		}
	}
	return out
}

// LastEvent returns the most recent event of the given type.
func LastEvent(eventType uint8) (Event, bool) {
	evts := Events()
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Type == eventType {
			return evts[i], true
		}
	}
	return Event{}, false
}

func eventName(t uint8) string {
	switch t {
	case EvtModeChange:
		return "MODE"
	case EvtModeRejected:
		return "MODE_REJECTED"
	case EvtFault:
		return "FAULT"
	case EvtEstop:
		return "ESTOP"
	case EvtWatchdog:
		return "WATCHDOG"
	case EvtCalibration:
		return "CALIBRATION"
	case EvtFlash:
		return "FLASH"
	case EvtParamRejected:
		return "PARAM_REJECTED"
	case EvtErrorsCleared:
		return "CLEARED"
	}
	return "UNKNOWN"
}

// DumpEvents outputs the event ring (call on shutdown/error)
func DumpEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[EVENT] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[EVENT] " + eventName(evt.Type) +
			" clock=" + utoa(evt.Clock) +
			" v1=0x" + hex32(evt.Value1) +
			" v2=0x" + hex32(evt.Value2))
	}
	debugPrintln("[EVENT] === End Dump ===")
}

// ClearEvents clears the event ring
func ClearEvents() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
}
