package core

import (
	"math"
	"sync/atomic"
)

// Float32 is a float32 stored in one 32-bit word so that an interrupt of any
// priority can read or write it without tearing.
type Float32 struct {
	bits uint32
}

func (f *Float32) Load() float32 {
	return math.Float32frombits(atomic.LoadUint32(&f.bits))
}

func (f *Float32) Store(v float32) {
	atomic.StoreUint32(&f.bits, math.Float32bits(v))
}

// Bits returns the raw IEEE-754 word, as carried in parameter frames.
func (f *Float32) Bits() uint32 {
	return atomic.LoadUint32(&f.bits)
}

// SetBits stores a raw IEEE-754 word.
func (f *Float32) SetBits(w uint32) {
	atomic.StoreUint32(&f.bits, w)
}
