// Package qc implements the quality control tests run against single
// observations and the suite that combines their flags.
//
// Tests read from the run's caches and never modify them. Data that is too
// sparse to judge yields flag.Inconclusive; malformed configuration or a
// reference to an unknown station is returned as an error.
package qc

import (
	"fmt"
	"math"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/series"
	"github.com/okian/stationqc/internal/domain/spatial"
)

// Env is the read-only view of a run handed to every test.
type Env struct {
	Spatial *spatial.Cache
	Series  *series.Cache
}

func (e Env) series() (*series.Cache, error) {
	if e.Series == nil {
		return nil, fmt.Errorf("env has no series cache: %w", model.ErrInvalidInput)
	}
	return e.Series, nil
}

func (e Env) spatial() (*spatial.Cache, error) {
	if e.Spatial == nil {
		return nil, fmt.Errorf("env has no spatial cache: %w", model.ErrInvalidInput)
	}
	return e.Spatial, nil
}

// Test is a single QC check.
type Test interface {
	Name() string
	Evaluate(env Env, obs model.Observation) (Outcome, error)
}

// validator is implemented by tests whose configuration can be wrong.
type validator interface {
	Validate() error
}

// Outcome is what a test concludes about one observation.
type Outcome struct {
	Flag     flag.Flag
	Score    float64
	HasScore bool
}

func inconclusive() Outcome {
	return Outcome{Flag: flag.Inconclusive}
}

func scored(stat float64, th Thresholds) Outcome {
	return Outcome{Flag: th.Classify(stat), Score: stat, HasScore: true}
}

// Thresholds are the two ascending severity cut-offs of a statistic.
type Thresholds struct {
	Warn float64 `koanf:"warn"`
	Fail float64 `koanf:"fail"`
}

// Validate requires 0 <= Warn <= Fail.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Warn) || math.IsNaN(t.Fail) || t.Warn < 0 || t.Warn > t.Fail {
		return fmt.Errorf("thresholds warn=%g fail=%g must satisfy 0 <= warn <= fail: %w", t.Warn, t.Fail, model.ErrInvalidInput)
	}
	return nil
}

// Classify maps a non-negative statistic to a flag. The Fail cut-off is
// checked first; NaN means the statistic could not be computed.
func (t Thresholds) Classify(stat float64) flag.Flag {
	switch {
	case math.IsNaN(stat):
		return flag.Inconclusive
	case stat >= t.Fail:
		return flag.Fail
	case stat >= t.Warn:
		return flag.Warn
	default:
		return flag.Pass
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func label(custom, fallback string) string {
	if custom != "" {
		return custom
	}
	return fallback
}
