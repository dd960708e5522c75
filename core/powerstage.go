package core

import (
	"github.com/chewxy/math32"

	"gorecoil/foc"
)

// ADC scaling for the reference board: 12-bit converter on 3.3 V, bus
// divider 18k/169k, current amplifier gain 16 across 3 mΩ shunts.
const (
	ADCResolution         = 4096
	ADCReadingCoefficient = 3.3 / ADCResolution
	ADCBusVoltageCoeff    = ADCReadingCoefficient * ((18. + 169.) / 18.)
	ADCPhaseCurrentCoeff  = (ADCReadingCoefficient / 16.) / 0.003
	ADCOffsetSamples      = 64
	defaultADCCurrentZero = ADCResolution / 2
)

// Powerstage converts ADC codes to physical units, filters the bus
// voltage and checks electrical limits. Sample and Check run in the
// commutation interrupt.
type Powerstage struct {
	currentCoeff float32
	busCoeff     float32

	offsetA, offsetB, offsetC float32

	busVoltage      Float32
	busAlpha        Float32
	filterBandwidth Float32
	sampleHz        float32
	primed          bool

	ThresholdLow     Float32
	ThresholdHigh    Float32
	OverCurrentLimit Float32

	phaseOrder int8
}

// NewPowerstage creates a power stage model for a loop running at sampleHz.
func NewPowerstage(cfg *Config) *Powerstage {
	p := &Powerstage{
		currentCoeff: ADCPhaseCurrentCoeff,
		busCoeff:     ADCBusVoltageCoeff,
		offsetA:      defaultADCCurrentZero,
		offsetB:      defaultADCCurrentZero,
		offsetC:      defaultADCCurrentZero,
		sampleHz:     cfg.CommutationFreq,
		phaseOrder:   1,
	}
	p.SetFilterBandwidth(cfg.BusVoltageFilterBandwidth)
	p.ThresholdLow.Store(cfg.VoltageThresholdLow)
	p.ThresholdHigh.Store(cfg.VoltageThresholdHigh)
	p.OverCurrentLimit.Store(cfg.OverCurrentLimit)
	return p
}

// SetCoefficients overrides the ADC scaling, for boards with other shunts.
func (p *Powerstage) SetCoefficients(ampsPerCode, voltsPerCode float32) {
	p.currentCoeff = ampsPerCode
	p.busCoeff = voltsPerCode
}

// SetPhaseOrder swaps phases B and C when order is -1.
func (p *Powerstage) SetPhaseOrder(order int8) {
	if order == -1 {
		p.phaseOrder = -1
	} else {
		p.phaseOrder = 1
	}
}

// CalibrateOffsets averages the phase readings with the bridge off to find
// the zero-current codes. Must run before the commutation interrupt starts.
func (p *Powerstage) CalibrateOffsets(adc ADCDriver, samples int) error {
	if samples <= 0 {
		samples = ADCOffsetSamples
	}
	var sa, sb, sc float32
	for i := 0; i < samples; i++ {
		a, b, c, err := adc.ReadPhases()
		if err != nil {
			return err
		}
		sa += float32(a)
		sb += float32(b)
		sc += float32(c)
	}
	n := float32(samples)
	p.offsetA, p.offsetB, p.offsetC = sa/n, sb/n, sc/n
	return nil
}

// Offsets returns the zero-current ADC codes.
func (p *Powerstage) Offsets() (a, b, c float32) {
	return p.offsetA, p.offsetB, p.offsetC
}

// Sample reads the ADC and returns phase currents and the filtered bus voltage.
func (p *Powerstage) Sample(adc ADCDriver) (ia, ib, ic, vbus float32, err error) {
	ra, rb, rc, err := adc.ReadPhases()
	if err != nil {
		return 0, 0, 0, p.busVoltage.Load(), err
	}
	rv, err := adc.ReadBus()
	if err != nil {
		return 0, 0, 0, p.busVoltage.Load(), err
	}

	ia = (float32(ra) - p.offsetA) * p.currentCoeff
	ib = (float32(rb) - p.offsetB) * p.currentCoeff
	ic = (float32(rc) - p.offsetC) * p.currentCoeff
	if p.phaseOrder < 0 {
		ib, ic = ic, ib
	}

	return ia, ib, ic, p.filterBus(float32(rv) * p.busCoeff), nil
}

func (p *Powerstage) filterBus(v float32) float32 {
	if !p.primed {
		p.primed = true
		p.busVoltage.Store(v)
		return v
	}
	filtered := p.busVoltage.Load()
	filtered += p.busAlpha.Load() * (v - filtered)
	p.busVoltage.Store(filtered)
	return filtered
}

// BusVoltage returns the filtered bus voltage.
func (p *Powerstage) BusVoltage() float32 { return p.busVoltage.Load() }

// SetFilterBandwidth sets the bus voltage filter cutoff.
func (p *Powerstage) SetFilterBandwidth(hz float32) {
	p.filterBandwidth.Store(hz)
	p.busAlpha.Store(foc.LowPassAlpha(hz, p.sampleHz))
}

func (p *Powerstage) FilterBandwidth() float32 { return p.filterBandwidth.Load() }

// Check returns the fault flags raised by the given sample.
// Undervoltage is reported as a power stage fault.
func (p *Powerstage) Check(ia, ib, ic, vbus float32) ErrorCode {
	var e ErrorCode
	if vbus > p.ThresholdHigh.Load() {
		e |= ErrorOverVoltage
	}
	if vbus < p.ThresholdLow.Load() {
		e |= ErrorPowerstage
	}
	limit := p.OverCurrentLimit.Load()
	if limit > 0 && (math32.Abs(ia) > limit || math32.Abs(ib) > limit || math32.Abs(ic) > limit) {
		e |= ErrorOverCurrent
	}
	return e
}

// Apply converts centred phase voltages to duty cycles and writes them.
func (p *Powerstage) Apply(phases PhaseDriver, va, vb, vc, vbus float32) {
	da := foc.Duty(va, vbus)
	db := foc.Duty(vb, vbus)
	dc := foc.Duty(vc, vbus)
	if p.phaseOrder < 0 {
		db, dc = dc, db
	}
	phases.SetDuty(da, db, dc)
}
