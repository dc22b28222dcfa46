package kernel

import (
	"bytes"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DriverPolicy decides what happens when two sync processes defer a write
// to the same signal on one clock edge.
type DriverPolicy string

const (
	// LastWins keeps the write of the later-registered process.
	LastWins DriverPolicy = "last-wins"
	// Strict fails the edge with ErrMultipleDrivers.
	Strict DriverPolicy = "strict"
)

type Config struct {
	// CombLimit bounds evaluations of one comb process per delta. Zero uses
	// the number of comb processes in the design.
	CombLimit int `yaml:"comb_limit"`
	// DeltaLimit bounds delta iterations of one settle.
	DeltaLimit int `yaml:"delta_limit"`
	// InstantLimit bounds task resumptions within one simulated instant.
	InstantLimit int          `yaml:"instant_limit"`
	Drivers      DriverPolicy `yaml:"drivers"`
	// Timescale is the unit of VCD timestamps, e.g. "1ns".
	Timescale string `yaml:"timescale"`
	LogLevel  string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		DeltaLimit:   10_000,
		InstantLimit: 1_000_000,
		Drivers:      LastWins,
		Timescale:    "1ns",
		LogLevel:     "info",
	}
}

// LoadConfig reads a YAML file over the defaults. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.CombLimit < 0 {
		return configErrorf("comb_limit must not be negative")
	}
	if c.DeltaLimit <= 0 {
		return configErrorf("delta_limit must be positive")
	}
	if c.InstantLimit <= 0 {
		return configErrorf("instant_limit must be positive")
	}
	switch c.Drivers {
	case LastWins, Strict:
	default:
		return configErrorf("unknown driver policy %q", c.Drivers)
	}
	if _, err := ParseTime(c.Timescale); err != nil {
		return configErrorf("timescale: %v", err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return l, configErrorf("log_level: %v", err)
	}
	return l, nil
}

// TimescaleUnit returns Timescale as a Time.
func (c Config) TimescaleUnit() Time {
	t, err := ParseTime(c.Timescale)
	if err != nil || t == 0 {
		return NS
	}
	return t
}
