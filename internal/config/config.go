// Package config defines process configuration and builds the QC suite from it.
//
// Conventions:
//   - New returns a Config filled with defaults; Load layers file and env on top.
//   - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/okian/stationqc/internal/domain/qc"
	"github.com/okian/stationqc/internal/domain/spatial"
	"github.com/okian/stationqc/internal/synth"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// MetricsAddr is the listen address of the /metrics endpoint, e.g. ":9090".
	// Empty disables the endpoint.
	MetricsAddr string `koanf:"metrics_addr"`

	// WorkerCount sets the number of QC workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// Metric selects the station distance: geodetic or planar.
	Metric string `koanf:"metric"`

	// TopN is how many of the worst assessments a run reports.
	TopN int `koanf:"top_n"`

	// Synth configures the synthetic network used by the demo runner.
	Synth synth.Options `koanf:"synth"`

	// Tests holds per-test settings.
	Tests Tests `koanf:"tests"`
}

// Tests holds the configuration of every QC test the suite can run.
type Tests struct {
	Range    RangeConfig    `koanf:"range"`
	Special  SpecialConfig  `koanf:"special_values"`
	Step     StepConfig     `koanf:"step"`
	Dip      WindowConfig   `koanf:"dip"`
	Spike    WindowConfig   `koanf:"spike"`
	Flatline FlatlineConfig `koanf:"flatline"`
	Buddy    BuddyConfig    `koanf:"buddy"`
}

// RangeConfig configures qc.RangeTest.
type RangeConfig struct {
	Enabled bool      `koanf:"enabled"`
	Hard    qc.Bounds `koanf:"hard"`
	Soft    qc.Bounds `koanf:"soft"`
}

// SpecialConfig configures qc.SpecialValuesTest.
type SpecialConfig struct {
	Enabled bool      `koanf:"enabled"`
	Values  []float64 `koanf:"values"`
}

// StepConfig configures qc.StepTest.
type StepConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Before     time.Duration `koanf:"before"`
	Thresholds qc.Thresholds `koanf:"thresholds"`
}

// WindowConfig configures the dip and spike tests.
type WindowConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Window     qc.Window     `koanf:"window"`
	Thresholds qc.Thresholds `koanf:"thresholds"`
}

// FlatlineConfig configures qc.FlatlineTest. Thresholds are run lengths.
type FlatlineConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Before     time.Duration `koanf:"before"`
	MinPoints  int           `koanf:"min_points"`
	Thresholds qc.Thresholds `koanf:"thresholds"`
}

// BuddyConfig configures qc.BuddyTest.
type BuddyConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxCount     int           `koanf:"max_count"`
	MaxRadius    float64       `koanf:"max_radius"`
	MinNeighbors int           `koanf:"min_neighbors"`
	Thresholds   qc.Thresholds `koanf:"thresholds"`
	MinSpread    float64       `koanf:"min_spread"`
	Weighting    string        `koanf:"weighting"`
	Power        float64       `koanf:"power"`
	ElevGradient float64       `koanf:"elev_gradient"`
	MaxElevDiff  float64       `koanf:"max_elev_diff"`
}

// New creates a Config with defaults tuned for hourly air temperature.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		MetricsAddr: ":9090",
		WorkerCount: runtime.NumCPU(),
		QueueSize:   4096,
		Metric:      "geodetic",
		TopN:        10,
		Synth:       synth.DefaultOptions(),
		Tests: Tests{
			Range: RangeConfig{
				Enabled: true,
				Hard:    qc.Bounds{Min: -60, Max: 50},
				Soft:    qc.Bounds{Min: -45, Max: 40},
			},
			Special: SpecialConfig{Enabled: true, Values: []float64{-999, -9999}},
			Step: StepConfig{
				Enabled:    true,
				Before:     3 * time.Hour,
				Thresholds: qc.Thresholds{Warn: 4, Fail: 7},
			},
			Dip: WindowConfig{
				Enabled:    true,
				Window:     qc.Window{Before: 3 * time.Hour, After: 3 * time.Hour},
				Thresholds: qc.Thresholds{Warn: 3, Fail: 6},
			},
			Spike: WindowConfig{
				Enabled:    true,
				Window:     qc.Window{Before: 3 * time.Hour, After: 3 * time.Hour},
				Thresholds: qc.Thresholds{Warn: 8, Fail: 12},
			},
			Flatline: FlatlineConfig{
				Enabled:    true,
				Before:     12 * time.Hour,
				MinPoints:  3,
				Thresholds: qc.Thresholds{Warn: 4, Fail: 6},
			},
			Buddy: BuddyConfig{
				Enabled:      true,
				MaxCount:     8,
				MaxRadius:    30_000,
				MinNeighbors: 3,
				Thresholds:   qc.Thresholds{Warn: 3, Fail: 5},
				MinSpread:    0.5,
				Weighting:    "elevation_adjusted",
				Power:        2,
			},
		},
	}
}

// Validate checks the process settings and that the enabled tests form a
// valid suite.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, invalid("log_level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, invalid("log_format %q", c.LogFormat))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, invalid("worker_count=%d must be positive", c.WorkerCount))
	}
	if c.QueueSize < 1 {
		errs = append(errs, invalid("queue_size=%d must be positive", c.QueueSize))
	}
	if c.TopN < 1 {
		errs = append(errs, invalid("top_n=%d must be positive", c.TopN))
	}
	if _, err := spatial.ParseMetric(c.Metric); err != nil {
		errs = append(errs, invalid("metric: %v", err))
	}
	if err := c.Synth.Validate(); err != nil {
		errs = append(errs, invalid("synth: %v", err))
	}
	if _, err := c.Suite(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SpatialMetric returns the parsed distance metric.
func (c *Config) SpatialMetric() (spatial.Metric, error) {
	m, err := spatial.ParseMetric(c.Metric)
	if err != nil {
		return m, invalid("metric: %v", err)
	}
	return m, nil
}

// Suite builds the QC suite from the enabled tests, in the order range,
// special values, step, dip, spike, flatline, buddy.
func (c *Config) Suite() (*qc.Suite, error) {
	t := c.Tests
	var tests []qc.Test
	if t.Range.Enabled {
		tests = append(tests, qc.RangeTest{Hard: t.Range.Hard, Soft: t.Range.Soft})
	}
	if t.Special.Enabled {
		tests = append(tests, qc.SpecialValuesTest{Values: t.Special.Values})
	}
	if t.Step.Enabled {
		tests = append(tests, qc.StepTest{Before: t.Step.Before, Thresholds: t.Step.Thresholds})
	}
	if t.Dip.Enabled {
		tests = append(tests, qc.DipTest{Window: t.Dip.Window, Thresholds: t.Dip.Thresholds})
	}
	if t.Spike.Enabled {
		tests = append(tests, qc.SpikeTest{Window: t.Spike.Window, Thresholds: t.Spike.Thresholds})
	}
	if t.Flatline.Enabled {
		tests = append(tests, qc.FlatlineTest{
			Before:     t.Flatline.Before,
			MinPoints:  t.Flatline.MinPoints,
			Thresholds: t.Flatline.Thresholds,
		})
	}
	if t.Buddy.Enabled {
		mode, err := qc.ParseWeightingMode(t.Buddy.Weighting)
		if err != nil {
			return nil, invalid("tests.buddy: %v", err)
		}
		tests = append(tests, qc.BuddyTest{
			Query:        spatial.QuerySpec{MaxCount: t.Buddy.MaxCount, MaxRadius: t.Buddy.MaxRadius},
			MinNeighbors: t.Buddy.MinNeighbors,
			Thresholds:   t.Buddy.Thresholds,
			MinSpread:    t.Buddy.MinSpread,
			Weighting: qc.Weighting{
				Mode:         mode,
				Power:        t.Buddy.Power,
				ElevGradient: t.Buddy.ElevGradient,
				MaxElevDiff:  t.Buddy.MaxElevDiff,
			},
		})
	}
	s, err := qc.NewSuite(tests...)
	if err != nil {
		return nil, invalid("tests: %v", err)
	}
	return s, nil
}
