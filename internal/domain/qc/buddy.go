package qc

import (
	"fmt"
	"math"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/spatial"
	"gonum.org/v1/gonum/stat"
)

// Standard atmosphere lapse rate, in units per metre of elevation.
const DefaultElevGradient = -0.0065

// WeightingMode selects how neighbour values are combined into the expected
// value.
type WeightingMode uint8

const (
	// InverseDistance weights raw neighbour values by 1/d^Power.
	InverseDistance WeightingMode = iota
	// ElevationAdjusted first moves each neighbour value to the target's
	// elevation along ElevGradient, then weights like InverseDistance.
	ElevationAdjusted
)

// ParseWeightingMode converts "inverse_distance" or "elevation_adjusted".
func ParseWeightingMode(s string) (WeightingMode, error) {
	switch s {
	case "", "inverse_distance":
		return InverseDistance, nil
	case "elevation_adjusted":
		return ElevationAdjusted, nil
	default:
		return InverseDistance, fmt.Errorf("unknown weighting mode %q: %w", s, model.ErrInvalidInput)
	}
}

func (m WeightingMode) String() string {
	switch m {
	case InverseDistance:
		return "inverse_distance"
	case ElevationAdjusted:
		return "elevation_adjusted"
	default:
		return fmt.Sprintf("weighting(%d)", uint8(m))
	}
}

// Weighting configures the expected value of a buddy check. The zero value
// is plain inverse-distance squared weighting.
type Weighting struct {
	Mode  WeightingMode
	Power float64 // distance exponent, 2 when zero
	// ElevGradient is the value change per metre climbed, DefaultElevGradient
	// when zero. Only used by ElevationAdjusted.
	ElevGradient float64
	// MaxElevDiff drops neighbours further apart in elevation when > 0.
	// Only used by ElevationAdjusted.
	MaxElevDiff float64
}

func (w Weighting) power() float64 {
	if w.Power == 0 {
		return 2
	}
	return w.Power
}

func (w Weighting) gradient() float64 {
	if w.ElevGradient == 0 {
		return DefaultElevGradient
	}
	return w.ElevGradient
}

// BuddyTest compares a value with what its neighbours reported at the same
// time. The score is |observed - expected| / spread, where expected is the
// distance weighted neighbour mean and spread the neighbour standard
// deviation, inflated by sqrt(1+1/n) and floored at MinSpread.
type BuddyTest struct {
	Label        string
	Query        spatial.QuerySpec
	MinNeighbors int
	Thresholds   Thresholds
	MinSpread    float64
	Weighting    Weighting
}

func (t BuddyTest) Name() string { return label(t.Label, "buddy") }

// Validate checks the query and weighting configuration.
func (t BuddyTest) Validate() error {
	if err := t.Query.Validate(); err != nil {
		return fmt.Errorf("%s: %w", t.Name(), err)
	}
	w := t.Weighting
	switch {
	case t.MinNeighbors < 1:
		return fmt.Errorf("%s: min neighbors %d must be positive: %w", t.Name(), t.MinNeighbors, model.ErrInvalidInput)
	case t.MinSpread < 0 || math.IsNaN(t.MinSpread):
		return fmt.Errorf("%s: min spread %g must not be negative: %w", t.Name(), t.MinSpread, model.ErrInvalidInput)
	case w.Mode != InverseDistance && w.Mode != ElevationAdjusted:
		return fmt.Errorf("%s: %s: %w", t.Name(), w.Mode, model.ErrInvalidInput)
	case w.Power < 0 || w.MaxElevDiff < 0 || !finite(w.ElevGradient):
		return fmt.Errorf("%s: weighting %+v out of range: %w", t.Name(), w, model.ErrInvalidInput)
	}
	return t.Thresholds.Validate()
}

type buddy struct {
	value    float64
	distance float64
}

func (t BuddyTest) Evaluate(env Env, obs model.Observation) (Outcome, error) {
	sc, err := env.spatial()
	if err != nil {
		return Outcome{}, err
	}
	res, err := sc.Neighbors(obs.StationID, t.Query)
	if err != nil {
		return Outcome{}, err
	}
	target, err := sc.Station(obs.StationID)
	if err != nil {
		return Outcome{}, err
	}

	buddies := t.collect(target, res)
	if len(buddies) < t.MinNeighbors || len(buddies) == 0 || !finite(obs.Value) {
		return inconclusive(), nil
	}

	expected := t.expected(buddies)
	spread := math.Max(spreadOf(buddies), t.MinSpread)
	residual := math.Abs(obs.Value - expected)
	if spread == 0 {
		if residual == 0 {
			return Outcome{Flag: flag.Pass, Score: 0, HasScore: true}, nil
		}
		return Outcome{Flag: flag.Fail, Score: math.Inf(1), HasScore: true}, nil
	}
	return scored(residual/spread, t.Thresholds), nil
}

// collect keeps neighbours with a usable value, adjusted for elevation when
// configured.
func (t BuddyTest) collect(target model.Station, res spatial.Result) []buddy {
	w := t.Weighting
	out := make([]buddy, 0, res.Len())
	for i := 0; i < res.Len(); i++ {
		n := res.At(i)
		if !n.HasValue || !finite(n.Value) {
			continue
		}
		v := n.Value
		if w.Mode == ElevationAdjusted {
			diff := target.Elev - n.Station.Elev
			if w.MaxElevDiff > 0 && math.Abs(diff) > w.MaxElevDiff {
				continue
			}
			v += diff * w.gradient()
		}
		out = append(out, buddy{value: v, distance: n.Distance})
	}
	return out
}

// expected is the inverse distance weighted mean. Co-located neighbours
// dominate completely: if any exist their plain mean is used.
func (t BuddyTest) expected(buddies []buddy) float64 {
	var colocated []float64
	for _, b := range buddies {
		if b.distance == 0 {
			colocated = append(colocated, b.value)
		}
	}
	if len(colocated) > 0 {
		return stat.Mean(colocated, nil)
	}

	p := t.Weighting.power()
	values := make([]float64, len(buddies))
	weights := make([]float64, len(buddies))
	for i, b := range buddies {
		values[i] = b.value
		weights[i] = math.Pow(b.distance, -p)
	}
	return stat.Mean(values, weights)
}

func spreadOf(buddies []buddy) float64 {
	n := len(buddies)
	if n < 2 {
		return 0
	}
	values := make([]float64, n)
	for i, b := range buddies {
		values[i] = b.value
	}
	// stat.Variance is the unbiased estimate; scale back to population
	// variance before inflating by 1+1/n.
	pop := stat.Variance(values, nil) * float64(n-1) / float64(n)
	return math.Sqrt(pop * (1 + 1/float64(n)))
}
