package core

import (
	"errors"
	"sync"

	"github.com/chewxy/math32"

	"gorecoil/protocol"
)

// WriteGate reports whether a parameter may be written in a mode.
type WriteGate func(Mode) bool

// Param is one entry of the parameter table. Values travel as the raw
// 32-bit word of a parameter frame; Read and Write do the conversion.
type Param struct {
	Code     protocol.Command
	Name     string
	Read     func() uint32
	Write    func(w uint32) bool // nil for read-only fields
	Writable WriteGate           // nil means any mode
}

var (
	ErrUnknownParam  = errors.New("unknown parameter")
	ErrParamReadOnly = errors.New("parameter is read-only")
	ErrParamRejected = errors.New("parameter write rejected in this mode")
)

// ParamTable maps command codes to accessors. It is filled once at boot
// and read by the dispatcher.
type ParamTable struct {
	mu     sync.RWMutex
	params map[protocol.Command]*Param
}

// NewParamTable creates an empty table
func NewParamTable() *ParamTable {
	return &ParamTable{
		params: make(map[protocol.Command]*Param),
	}
}

// Register adds or replaces an accessor. The name defaults to the protocol name.
func (t *ParamTable) Register(p Param) {
	if p.Name == "" {
		p.Name = p.Code.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.params[p.Code] = &p
}

// Get retrieves an accessor by code
func (t *ParamTable) Get(code protocol.Command) (*Param, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.params[code]
	return p, ok
}

// Count returns the number of registered parameters
func (t *ParamTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.params)
}

// Read returns the current word of code.
func (t *ParamTable) Read(code protocol.Command) (uint32, error) {
	p, ok := t.Get(code)
	if !ok {
		return 0, ErrUnknownParam
	}
	return p.Read(), nil
}

// Write stores w if the field is writable in mode and returns the value the
// field holds afterwards. A refused write still returns the current value.
func (t *ParamTable) Write(code protocol.Command, w uint32, mode Mode) (uint32, error) {
	p, ok := t.Get(code)
	if !ok {
		return 0, ErrUnknownParam
	}
	if p.Write == nil {
		return p.Read(), ErrParamReadOnly
	}
	if p.Writable != nil && !p.Writable(mode) {
		return p.Read(), ErrParamRejected
	}
	if !p.Write(w) {
		return p.Read(), ErrParamRejected
	}
	return p.Read(), nil
}

// Write gates

func anyMode(Mode) bool { return true }

func whileStopped(m Mode) bool { return m.IsSafe() }

func inMode(want Mode) WriteGate {
	return func(m Mode) bool { return m == want }
}

// Accessor helpers

func readOnly(code protocol.Command, read func() uint32) Param {
	return Param{Code: code, Read: read}
}

// floatCell exposes a setpoint or gain. Words that are not finite numbers
// are refused so they never reach the loops.
func floatCell(code protocol.Command, cell *Float32, gate WriteGate) Param {
	return Param{
		Code: code,
		Read: cell.Bits,
		Write: func(w uint32) bool {
			if !finite(protocol.WordFloat32(w)) {
				return false
			}
			cell.SetBits(w)
			return true
		},
		Writable: gate,
	}
}

// floatBound is floatCell for travel bounds, where an infinity lifts the
// bound. NaN is still refused.
func floatBound(code protocol.Command, cell *Float32, gate WriteGate) Param {
	return Param{
		Code: code,
		Read: cell.Bits,
		Write: func(w uint32) bool {
			if math32.IsNaN(protocol.WordFloat32(w)) {
				return false
			}
			cell.SetBits(w)
			return true
		},
		Writable: gate,
	}
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

func floatRO(code protocol.Command, cell *Float32) Param {
	return readOnly(code, cell.Bits)
}

func floatFunc(code protocol.Command, read func() float32, write func(float32) bool, gate WriteGate) Param {
	p := Param{
		Code:     code,
		Read:     func() uint32 { return protocol.Float32Word(read()) },
		Writable: gate,
	}
	if write != nil {
		p.Write = func(w uint32) bool {
			v := protocol.WordFloat32(w)
			return finite(v) && write(v)
		}
	}
	return p
}

func int32Func(code protocol.Command, read func() int32, write func(int32) bool, gate WriteGate) Param {
	p := Param{
		Code:     code,
		Read:     func() uint32 { return protocol.Int32Word(read()) },
		Writable: gate,
	}
	if write != nil {
		p.Write = func(w uint32) bool { return write(protocol.WordInt32(w)) }
	}
	return p
}

func uint32Func(code protocol.Command, read func() uint32, write func(uint32) bool, gate WriteGate) Param {
	return Param{Code: code, Read: read, Write: write, Writable: gate}
}
