package core

import (
	"errors"

	"gorecoil/protocol"
)

// LoadFlags select which sections of the flash image are applied at boot.
type LoadFlags uint8

const (
	LoadID LoadFlags = 1 << iota
	LoadConfig
	LoadCalibration

	LoadAll = LoadID | LoadConfig | LoadCalibration
)

// Config holds the board-level settings fixed at boot. Fields that may be
// tuned at runtime live in their owning component as atomic cells.
type Config struct {
	DeviceID uint8
	Variant  protocol.Variant

	EncoderDirection     int8
	EncoderPrecisionBits uint8
	NominalBusVoltage    float32

	// loop rates (Hz)
	CommutationFreq    float32
	EncoderUpdateFreq  float32
	PositionUpdateFreq float32

	// filter cutoffs (Hz)
	CurrentLoopBandwidth      float32
	EncoderFilterBandwidth    float32
	BusVoltageFilterBandwidth float32

	WatchdogEnabled   bool
	WatchdogTimeoutMS uint32
	FastFrameRateHz   uint32
	DebugModeEnabled  bool

	VoltageThresholdLow  float32
	VoltageThresholdHigh float32
	CurrentLimit         float32
	OverCurrentLimit     float32

	LoadFlags LoadFlags
}

// Board defaults
const (
	DefaultDeviceID             = protocol.DefaultDevice
	DefaultEncoderPrecisionBits = 12
	DefaultNominalBusVoltage    = 12
	DefaultCommutationFreq      = 20000
	DefaultEncoderUpdateFreq    = 10000
	DefaultPositionUpdateFreq   = 2000
	DefaultLoopBandwidth        = 1000
	DefaultWatchdogTimeoutMS    = 100
	DefaultFastFrameRateHz      = 100
	DefaultCurrentLimit         = 10
	DefaultOverCurrentLimit     = 30
)

var ErrConfig = errors.New("invalid controller configuration")

// DefaultConfig returns the configuration used when flash holds nothing.
func DefaultConfig() Config {
	cfg := Config{
		WatchdogEnabled: true,
		LoadFlags:       LoadAll,
	}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if cfg.DeviceID == 0 {
		cfg.DeviceID = DefaultDeviceID
	}
	if cfg.EncoderDirection == 0 {
		cfg.EncoderDirection = 1
	}
	if cfg.EncoderPrecisionBits == 0 {
		cfg.EncoderPrecisionBits = DefaultEncoderPrecisionBits
	}
	if cfg.NominalBusVoltage == 0 {
		cfg.NominalBusVoltage = DefaultNominalBusVoltage
	}
	if cfg.CommutationFreq == 0 {
		cfg.CommutationFreq = DefaultCommutationFreq
	}
	if cfg.EncoderUpdateFreq == 0 {
		cfg.EncoderUpdateFreq = DefaultEncoderUpdateFreq
	}
	if cfg.PositionUpdateFreq == 0 {
		cfg.PositionUpdateFreq = DefaultPositionUpdateFreq
	}
	if cfg.CurrentLoopBandwidth == 0 {
		cfg.CurrentLoopBandwidth = DefaultLoopBandwidth
	}
	if cfg.EncoderFilterBandwidth == 0 {
		cfg.EncoderFilterBandwidth = DefaultLoopBandwidth
	}
	if cfg.BusVoltageFilterBandwidth == 0 {
		cfg.BusVoltageFilterBandwidth = DefaultLoopBandwidth
	}
	if cfg.WatchdogTimeoutMS == 0 {
		cfg.WatchdogTimeoutMS = DefaultWatchdogTimeoutMS
	}
	if cfg.WatchdogTimeoutMS > MaxWatchdogTimeoutMS {
		cfg.WatchdogTimeoutMS = MaxWatchdogTimeoutMS
	}
	if cfg.FastFrameRateHz == 0 {
		cfg.FastFrameRateHz = DefaultFastFrameRateHz
	}
	// thresholds bracket the nominal bus voltage
	if cfg.VoltageThresholdLow == 0 {
		cfg.VoltageThresholdLow = cfg.NominalBusVoltage * 0.5
	}
	if cfg.VoltageThresholdHigh == 0 {
		cfg.VoltageThresholdHigh = cfg.NominalBusVoltage * 2
	}
	if cfg.CurrentLimit == 0 {
		cfg.CurrentLimit = DefaultCurrentLimit
	}
	if cfg.OverCurrentLimit == 0 {
		cfg.OverCurrentLimit = DefaultOverCurrentLimit
	}
}

// Validate rejects configurations the loops cannot run with.
func (c *Config) Validate() error {
	switch {
	case !protocol.ValidDeviceID(c.DeviceID):
		return protocol.ErrInvalidDeviceID
	case c.EncoderDirection != 1 && c.EncoderDirection != -1:
		return ErrConfig
	case c.EncoderPrecisionBits == 0 || c.EncoderPrecisionBits > 16:
		return ErrConfig
	case c.CommutationFreq <= 0 || c.EncoderUpdateFreq <= 0 || c.PositionUpdateFreq <= 0:
		return ErrConfig
	case c.VoltageThresholdLow >= c.VoltageThresholdHigh:
		return ErrConfig
	}
	return nil
}
