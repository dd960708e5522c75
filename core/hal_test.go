package core

import (
	"errors"

	"go.einride.tech/can"
)

// fakeADC returns fixed physical values converted to codes with the
// default board coefficients.
type fakeADC struct {
	ia, ib, ic float32
	vbus       float32
	err        error
}

func currentCode(i float32) uint16 {
	return uint16(defaultADCCurrentZero + i/ADCPhaseCurrentCoeff + 0.5)
}

func (f *fakeADC) ReadPhases() (a, b, c uint16, err error) {
	if f.err != nil {
		return 0, 0, 0, f.err
	}
	return currentCode(f.ia), currentCode(f.ib), currentCode(f.ic), nil
}

func (f *fakeADC) ReadBus() (uint16, error) {
	if f.err != nil {
		return 0, f.err
	}
	return uint16(f.vbus/ADCBusVoltageCoeff + 0.5), nil
}

type fakePhases struct {
	a, b, c float32
	enabled bool
	writes  int
}

func (f *fakePhases) SetDuty(a, b, c float32) {
	f.a, f.b, f.c = a, b, c
	f.writes++
}

func (f *fakePhases) Enable()  { f.enabled = true }
func (f *fakePhases) Disable() { f.enabled = false }

type fakeEncoder struct {
	raw uint16
	err error
}

func (f *fakeEncoder) ReadRaw() (uint16, error) { return f.raw, f.err }

type memStorage struct {
	data []byte
}

func (m *memStorage) ReadImage(p []byte) (int, error) {
	if m.data == nil {
		return 0, errors.New("empty")
	}
	return copy(p, m.data), nil
}

func (m *memStorage) WriteImage(p []byte) error {
	m.data = append(m.data[:0], p...)
	return nil
}

type captureSender struct {
	frames []can.Frame
	err    error
}

func (s *captureSender) Send(f can.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *captureSender) last() can.Frame {
	if len(s.frames) == 0 {
		return can.Frame{}
	}
	return s.frames[len(s.frames)-1]
}

type testBoard struct {
	adc     *fakeADC
	phases  *fakePhases
	encoder *fakeEncoder
	storage *memStorage
}

func newTestBoard() *testBoard {
	return &testBoard{
		adc:     &fakeADC{vbus: 24},
		phases:  &fakePhases{},
		encoder: &fakeEncoder{},
		storage: &memStorage{},
	}
}

func (b *testBoard) board() Board {
	return Board{Phases: b.phases, ADC: b.adc, Encoder: b.encoder, Storage: b.storage}
}

// testConfig is the default configuration for a 24 V board.
func testConfig() Config {
	return Config{
		NominalBusVoltage: 24,
		WatchdogEnabled:   true,
		LoadFlags:         LoadAll,
	}
}

// newTestController returns a controller on a 24 V fake board.
func newTestController(cfg Config) (*Controller, *testBoard) {
	tb := newTestBoard()
	c, err := NewController(cfg, tb.board())
	if err != nil {
		panic(err)
	}
	return c, tb
}

// enter walks from Disabled into mode through Idle.
func enter(c *Controller, mode Mode) bool {
	if !c.SetMode(ModeIdle) {
		return false
	}
	return c.SetMode(mode)
}
