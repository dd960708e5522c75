package core

// ErrorCode is a set of fault flags. Flags accumulate until explicitly cleared.
type ErrorCode uint32

const (
	ErrorNone            ErrorCode = 0
	ErrorGeneral         ErrorCode = 1 << 0
	ErrorEstop           ErrorCode = 1 << 1
	ErrorInitialization  ErrorCode = 1 << 2
	ErrorCalibration     ErrorCode = 1 << 3
	ErrorPowerstage      ErrorCode = 1 << 4
	ErrorInvalidMode     ErrorCode = 1 << 5
	ErrorWatchdogTimeout ErrorCode = 1 << 6
	ErrorOverVoltage     ErrorCode = 1 << 7
	ErrorOverCurrent     ErrorCode = 1 << 8
	ErrorOverTemperature ErrorCode = 1 << 9
	ErrorCANRxFault      ErrorCode = 1 << 10
	ErrorCANTxFault      ErrorCode = 1 << 11
	ErrorI2CFault        ErrorCode = 1 << 12

	errorBits = 13
)

var errorNames = [errorBits]string{
	"general",
	"estop",
	"initialization",
	"calibration",
	"powerstage",
	"invalid_mode",
	"watchdog_timeout",
	"over_voltage",
	"over_current",
	"over_temperature",
	"can_rx_fault",
	"can_tx_fault",
	"i2c_fault",
}

// idleOnly holds the flags that only require the motor to stop driving.
// Every other flag forces Disabled.
const idleOnly = ErrorInvalidMode | ErrorCalibration

func (e ErrorCode) Has(flag ErrorCode) bool { return e&flag != 0 }

func (e ErrorCode) With(flag ErrorCode) ErrorCode { return e | flag }

func (e ErrorCode) Without(flag ErrorCode) ErrorCode { return e &^ flag }

// ForcesDisable reports whether any flag in e requires the Disabled mode
// rather than Idle.
func (e ErrorCode) ForcesDisable() bool {
	return e&^idleOnly != 0
}

// SafeMode returns the mode a controller in mode m must fall back to given e.
// A clean error set leaves m untouched, and Disabled is never raised to Idle.
func (e ErrorCode) SafeMode(m Mode) Mode {
	switch {
	case e == ErrorNone:
		return m
	case e.ForcesDisable() || m == ModeDisabled:
		return ModeDisabled
	default:
		return ModeIdle
	}
}

// Lowest returns the index of the lowest set flag, or -1.
func (e ErrorCode) Lowest() int {
	for i := 0; i < errorBits; i++ {
		if e&(1<<uint(i)) != 0 {
			return i
		}
	}
	return -1
}

// Names lists the set flags.
func (e ErrorCode) Names() []string {
	var names []string
	for i := 0; i < errorBits; i++ {
		if e&(1<<uint(i)) != 0 {
			names = append(names, errorNames[i])
		}
	}
	return names
}

func (e ErrorCode) String() string {
	if e == ErrorNone {
		return "none"
	}
	s := ""
	for _, n := range e.Names() {
		if s != "" {
			s += "|"
		}
		s += n
	}
	if unknown := e >> errorBits; unknown != 0 {
		if s != "" {
			s += "|"
		}
		s += "0x" + hex32(uint32(unknown<<errorBits))
	}
	return s
}
