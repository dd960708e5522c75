// Package config loads the host tuning file: which bus to open and the
// parameters to push to each controller on it.
package config

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"gorecoil/core"
	"gorecoil/host/client"
	"gorecoil/protocol"
)

// LinkConfig selects the CAN interface.
type LinkConfig struct {
	Kind    string `json:"kind"`    // socketcan, slcan or sim
	Address string `json:"address"` // interface name or serial device
	Bitrate int    `json:"bitrate"`
}

// DeviceConfig is the tuning of one controller.
type DeviceConfig struct {
	Variant string `json:"variant"`

	// Profile names a motor preset whose constants are written before Params.
	Profile string `json:"profile,omitempty"`

	// Params maps command names to values, e.g. "current_limit": 8.
	Params map[string]float64 `json:"params"`

	// Store persists the configuration to flash after it is applied.
	Store bool `json:"store"`

	HeartbeatMS int `json:"heartbeat_ms"`
}

// Config is the whole tuning file. Devices are keyed by bus address.
type Config struct {
	Link    LinkConfig              `json:"link"`
	Devices map[string]DeviceConfig `json:"devices"`
}

// Load parses a JSON tuning file and fills in defaults.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse tuning file")
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read tuning file")
	}
	cfg, err := Load(data)
	return cfg, errors.Wrap(err, path)
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(cfg *Config) {
	if cfg.Link.Kind == "" {
		cfg.Link.Kind = "socketcan"
	}
	if cfg.Link.Address == "" && cfg.Link.Kind == "socketcan" {
		cfg.Link.Address = "can0"
	}
	if cfg.Link.Bitrate == 0 {
		cfg.Link.Bitrate = 1000000
	}

	for id, dev := range cfg.Devices {
		if dev.Variant == "" {
			dev.Variant = protocol.VariantStandard.String()
		}
		if dev.HeartbeatMS == 0 {
			dev.HeartbeatMS = int(client.DefaultHeartbeat.Milliseconds())
		}
		cfg.Devices[id] = dev
	}
}

// Validate checks device addresses, variants and parameter names.
func (c *Config) Validate() error {
	keys := make([]string, 0, len(c.Devices))
	for key := range c.Devices {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs error
	for _, key := range keys {
		dev := c.Devices[key]
		id, err := parseID(key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		v, err := protocol.ParseVariant(dev.Variant)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "device %d", id))
		} else if v == protocol.VariantLegacy && id > protocol.LegacyMaxDevice {
			errs = multierr.Append(errs, errors.Errorf("device %d: legacy boards use ids up to %d", id, protocol.LegacyMaxDevice))
		}
		if _, err := dev.Writes(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "device %d", id))
		}
	}
	return errs
}

func parseID(key string) (uint8, error) {
	n, err := strconv.ParseUint(key, 10, 8)
	if err != nil || !protocol.ValidDeviceID(uint8(n)) {
		return 0, errors.Errorf("device key %q is not a bus address", key)
	}
	return uint8(n), nil
}

// DeviceIDs returns the valid configured addresses in ascending order.
func (c *Config) DeviceIDs() []uint8 {
	var ids []uint8
	for key := range c.Devices {
		if id, err := parseID(key); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Device returns the configuration of one address.
func (c *Config) Device(id uint8) (DeviceConfig, bool) {
	d, ok := c.Devices[strconv.Itoa(int(id))]
	return d, ok
}

// VariantOf returns the parsed variant of a device.
func (d DeviceConfig) VariantOf() protocol.Variant {
	v, _ := protocol.ParseVariant(d.Variant)
	return v
}

// Writes converts the profile and the parameter map into the ordered list
// of writes the client performs: profile constants first, then the
// explicit parameters by command code.
func (d DeviceConfig) Writes() ([]client.Param, error) {
	var out []client.Param
	if d.Profile != "" {
		p, err := core.LookupProfile(d.Profile)
		if err != nil {
			return nil, errors.Wrapf(err, "profile %q", d.Profile)
		}
		out = append(out, ProfileWrites(p)...)
	}

	var errs error
	var params []client.Param
	for name, v := range d.Params {
		cmd, ok := protocol.LookupName(name)
		if !ok {
			errs = multierr.Append(errs, errors.Errorf("unknown parameter %q", name))
			continue
		}
		w, err := word(cmd.Encoding(), v)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, name))
			continue
		}
		params = append(params, client.Param{Command: cmd, Word: w})
	}
	if errs != nil {
		return nil, errs
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Command < params[j].Command })
	return append(out, params...), nil
}

func word(enc protocol.Encoding, v float64) (uint32, error) {
	switch enc {
	case protocol.EncInt32:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, errors.Errorf("%v is not an int32", v)
		}
		return protocol.Int32Word(int32(v)), nil
	case protocol.EncUint32:
		if v != math.Trunc(v) || v < 0 || v > math.MaxUint32 {
			return 0, errors.Errorf("%v is not a uint32", v)
		}
		return uint32(v), nil
	}
	return protocol.Float32Word(float32(v)), nil
}

// ProfileWrites returns the parameter writes that load p into a controller.
// The flux offset is left to calibration.
func ProfileWrites(p core.MotorProfile) []client.Param {
	f := protocol.Float32Word
	return []client.Param{
		{Command: protocol.CmdMotorPolePairs, Word: uint32(p.PolePairs)},
		{Command: protocol.CmdMotorKV, Word: f(p.KV)},
		{Command: protocol.CmdMotorPhaseOrder, Word: protocol.Int32Word(int32(p.PhaseOrder))},
		{Command: protocol.CmdMotorPhaseResistance, Word: f(p.PhaseResistance)},
		{Command: protocol.CmdMotorPhaseInductance, Word: f(p.PhaseInductance)},
		{Command: protocol.CmdMotorCalibrationCurrent, Word: f(p.CalibrationCurrent)},
	}
}
