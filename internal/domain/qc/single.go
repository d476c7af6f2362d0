package qc

import (
	"fmt"
	"math"
	"slices"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
)

// Bounds is an inclusive value range.
type Bounds struct {
	Min float64 `koanf:"min"`
	Max float64 `koanf:"max"`
}

// Contains reports whether v lies in [Min, Max].
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// RangeTest compares a value against a hard plausible range and a soft
// expected range nested inside it.
type RangeTest struct {
	Label string
	Hard  Bounds
	Soft  Bounds
}

// WindDirectionRange accepts directions in [0, 360] and warns on values that
// are only off by a wrap-around.
func WindDirectionRange() RangeTest {
	return RangeTest{Label: "wind_direction_range", Hard: Bounds{-20, 380}, Soft: Bounds{0, 360}}
}

// HumidityRange accepts relative humidity in [5, 100] and warns on small
// supersaturation readings.
func HumidityRange() RangeTest {
	return RangeTest{Label: "humidity_range", Hard: Bounds{5, 105}, Soft: Bounds{5, 100}}
}

func (t RangeTest) Name() string { return label(t.Label, "range") }

// Validate requires Hard.Min <= Soft.Min <= Soft.Max <= Hard.Max.
func (t RangeTest) Validate() error {
	vals := []float64{t.Hard.Min, t.Soft.Min, t.Soft.Max, t.Hard.Max}
	if slices.ContainsFunc(vals, math.IsNaN) || !slices.IsSorted(vals) {
		return fmt.Errorf("%s: soft range %v must nest in hard range %v: %w", t.Name(), t.Soft, t.Hard, model.ErrInvalidInput)
	}
	return nil
}

func (t RangeTest) Evaluate(_ Env, obs model.Observation) (Outcome, error) {
	v := obs.Value
	switch {
	case !finite(v) || !t.Hard.Contains(v):
		return Outcome{Flag: flag.Fail}, nil
	case !t.Soft.Contains(v):
		return Outcome{Flag: flag.Warn}, nil
	default:
		return Outcome{Flag: flag.Pass}, nil
	}
}

// SpecialValuesTest fails values that a sensor emits as error codes.
type SpecialValuesTest struct {
	Label  string
	Values []float64
}

func (t SpecialValuesTest) Name() string { return label(t.Label, "special_values") }

func (t SpecialValuesTest) Evaluate(_ Env, obs model.Observation) (Outcome, error) {
	if slices.Contains(t.Values, obs.Value) {
		return Outcome{Flag: flag.Fail}, nil
	}
	return Outcome{Flag: flag.Pass}, nil
}
