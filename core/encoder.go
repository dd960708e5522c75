package core

import (
	"sync/atomic"

	"gorecoil/foc"
)

// EncoderSample is one published rotor state.
type EncoderSample struct {
	Sin, Cos   float32 // electrical angle, flux offset applied
	Electrical float32 // rad in [0, 2π)
	Raw        int32   // single-turn ticks, direction applied
	NRotations int32
	Position   float32 // rad, multi-turn, position offset applied
	Velocity   float32 // rad/s, filtered
}

// Encoder turns raw angle ticks into position, velocity and electrical angle.
//
// Update runs only from the encoder tick. Readers at any priority call
// Sample, which returns the last fully written slot of a double buffer.
type Encoder struct {
	samples   [2]EncoderSample
	published uint32 // atomic index into samples

	cpr             uint32 // atomic
	direction       int8
	polePairs       uint32 // atomic
	fluxOffset      Float32
	positionOffset  Float32
	filterBandwidth Float32
	filterAlpha     Float32
	sampleHz        float32

	// writer state
	nRotations   int32 // atomic; CAN may overwrite it while the loops are stopped
	prevRaw      int32
	prevPosition float32
	velocity     float32
	primed       bool
}

// NewEncoder builds an encoder for a 2^bits tick sensor sampled at sampleHz.
func NewEncoder(bits uint8, direction int8, sampleHz, bandwidthHz float32) *Encoder {
	e := &Encoder{
		direction: direction,
		sampleHz:  sampleHz,
	}
	atomic.StoreUint32(&e.cpr, 1<<bits)
	atomic.StoreUint32(&e.polePairs, 1)
	e.SetFilterBandwidth(bandwidthHz)
	return e
}

// Sample returns the most recently published state.
func (e *Encoder) Sample() EncoderSample {
	return e.samples[atomic.LoadUint32(&e.published)]
}

// Update consumes one raw reading.
func (e *Encoder) Update(raw uint16) {
	cpr := int32(atomic.LoadUint32(&e.cpr))
	if cpr <= 0 {
		return
	}
	ticks := int32(raw) % cpr
	if e.direction < 0 {
		ticks = (cpr - ticks) % cpr
	}

	n := atomic.LoadInt32(&e.nRotations)
	if e.primed {
		delta := ticks - e.prevRaw
		if delta > cpr/2 {
			n--
		} else if delta < -cpr/2 {
			n++
		}
		atomic.StoreInt32(&e.nRotations, n)
	}
	e.prevRaw = ticks

	turn := float32(ticks) / float32(cpr)
	position := (float32(n)+turn)*foc.TwoPi - e.positionOffset.Load()

	if e.primed {
		raw := (position - e.prevPosition) * e.sampleHz
		e.velocity += e.filterAlpha.Load() * (raw - e.velocity)
	}
	e.prevPosition = position
	e.primed = true

	pp := float32(atomic.LoadUint32(&e.polePairs))
	elec := foc.WrapAngle(turn*foc.TwoPi*pp - e.fluxOffset.Load())
	sin, cos := foc.SinCos(elec)

	slot := 1 - atomic.LoadUint32(&e.published)
	e.samples[slot] = EncoderSample{
		Sin:        sin,
		Cos:        cos,
		Electrical: elec,
		Raw:        ticks,
		NRotations: n,
		Position:   position,
		Velocity:   e.velocity,
	}
	atomic.StoreUint32(&e.published, slot)
}

// MechanicalAngle returns the single-turn angle of the last sample in rad.
func (e *Encoder) MechanicalAngle() float32 {
	s := e.Sample()
	return float32(s.Raw) / float32(e.CPR()) * foc.TwoPi
}

func (e *Encoder) CPR() int32 { return int32(atomic.LoadUint32(&e.cpr)) }

// SetCPR changes the counts per revolution. Only valid while stopped.
func (e *Encoder) SetCPR(cpr int32) {
	if cpr > 0 {
		atomic.StoreUint32(&e.cpr, uint32(cpr))
		e.primed = false
	}
}

func (e *Encoder) SetPolePairs(pp uint16) {
	if pp > 0 {
		atomic.StoreUint32(&e.polePairs, uint32(pp))
	}
}

func (e *Encoder) PolePairs() uint16 { return uint16(atomic.LoadUint32(&e.polePairs)) }

func (e *Encoder) NRotations() int32 { return atomic.LoadInt32(&e.nRotations) }

// SetNRotations overwrites the turn counter. Only valid while stopped.
func (e *Encoder) SetNRotations(n int32) { atomic.StoreInt32(&e.nRotations, n) }

// SetFilterBandwidth sets the velocity filter cutoff.
func (e *Encoder) SetFilterBandwidth(hz float32) {
	e.filterBandwidth.Store(hz)
	e.filterAlpha.Store(foc.LowPassAlpha(hz, e.sampleHz))
}

func (e *Encoder) FilterBandwidth() float32 { return e.filterBandwidth.Load() }

func (e *Encoder) FluxOffset() float32 { return e.fluxOffset.Load() }

func (e *Encoder) SetFluxOffset(rad float32) { e.fluxOffset.Store(rad) }

func (e *Encoder) PositionOffset() float32 { return e.positionOffset.Load() }

func (e *Encoder) SetPositionOffset(rad float32) { e.positionOffset.Store(rad) }
