package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/sim"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/camsim/digital"
)

// RunConfig holds the options of one simulation run.
type RunConfig struct {
	Seed      int64   `yaml:"seed"`
	MaxCycles uint64  `yaml:"max_cycles"`
	LogLevel  string  `yaml:"log_level"`
	LogFile   string  `yaml:"log_file"`
	FreqMHz   float64 `yaml:"freq_mhz"`

	// Monitor serves the akita monitoring page while the scheduler runs.
	Monitor bool `yaml:"monitor"`
}

// DefaultRunConfig returns the options used when a field is not set.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Seed:      0,
		MaxCycles: 10_000_000,
		LogLevel:  "info",
		LogFile:   "camsim.json.log",
		FreqMHz:   1000,
	}
}

// LoadRunConfig reads a YAML run config from path.
func LoadRunConfig(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, errors.Wrapf(err, "reading run config %s", path)
	}

	c, err := ParseRunConfig(data)
	if err != nil {
		return RunConfig{}, errors.Wrapf(err, "run config %s", path)
	}

	return c, nil
}

// ParseRunConfig decodes a YAML run config. Missing fields keep their
// default values.
func ParseRunConfig(data []byte) (RunConfig, error) {
	c := DefaultRunConfig()

	if err := yaml.Unmarshal(data, &c); err != nil {
		return RunConfig{}, errors.Wrap(err, "decoding yaml")
	}

	if c.FreqMHz <= 0 {
		return RunConfig{}, errors.Errorf("freq_mhz must be positive, got %g",
			c.FreqMHz)
	}

	if _, err := c.Level(); err != nil {
		return RunConfig{}, err
	}

	return c, nil
}

// Level returns the slog level named by LogLevel.
func (c RunConfig) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "trace":
		return digital.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	default:
		return 0, errors.Errorf("unknown log level %q", c.LogLevel)
	}
}

// Freq returns the scheduler clock.
func (c RunConfig) Freq() sim.Freq {
	return sim.Freq(c.FreqMHz) * sim.MHz
}
