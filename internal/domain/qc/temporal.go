package qc

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/series"
)

// spikeShape is the largest allowed asymmetry of a spike: the two jumps may
// differ by less than this fraction of their sum.
const spikeShape = 0.35

// Window is how far a temporal test looks around its target.
type Window struct {
	Before time.Duration `koanf:"before"`
	After  time.Duration `koanf:"after"`
}

func (w Window) spec(center time.Time) series.WindowSpec {
	return series.WindowSpec{Center: center, Before: w.Before, After: w.After}
}

// neighbours holds the samples right before and after a target time.
type neighbours struct {
	prev, next       model.Observation
	hasPrev, hasNext bool
}

func around(env Env, obs model.Observation, w Window) (neighbours, error) {
	sc, err := env.series()
	if err != nil {
		return neighbours{}, err
	}
	win, err := sc.Window(obs.StationID, w.spec(obs.Time))
	if err != nil {
		return neighbours{}, err
	}
	i, found := win.IndexOf(obs.Time)
	var n neighbours
	if i > 0 {
		n.prev, n.hasPrev = win.At(i-1), true
	}
	next := i
	if found {
		next++
	}
	if next < win.Len() {
		n.next, n.hasNext = win.At(next), true
	}
	return n, nil
}

// DipTest flags a value that departs from the mean of its immediate
// predecessor and successor.
type DipTest struct {
	Label      string
	Window     Window
	Thresholds Thresholds
}

func (t DipTest) Name() string { return label(t.Label, "dip") }

// Validate checks that the window reaches both sides of the target.
func (t DipTest) Validate() error {
	if t.Window.Before <= 0 || t.Window.After <= 0 {
		return fmt.Errorf("%s: window before and after must be positive: %w", t.Name(), model.ErrInvalidInput)
	}
	return t.Thresholds.Validate()
}

func (t DipTest) Evaluate(env Env, obs model.Observation) (Outcome, error) {
	n, err := around(env, obs, t.Window)
	if err != nil {
		return Outcome{}, err
	}
	if !n.hasPrev || !n.hasNext || !finite(obs.Value) || !finite(n.prev.Value) || !finite(n.next.Value) {
		return inconclusive(), nil
	}
	dev := math.Abs(obs.Value - (n.prev.Value+n.next.Value)/2)
	return scored(dev, t.Thresholds), nil
}

// StepTest flags a jump from the previous value.
type StepTest struct {
	Label      string
	Before     time.Duration
	Thresholds Thresholds
}

func (t StepTest) Name() string { return label(t.Label, "step") }

// Validate checks that the test can see a predecessor.
func (t StepTest) Validate() error {
	if t.Before <= 0 {
		return fmt.Errorf("%s: before must be positive: %w", t.Name(), model.ErrInvalidInput)
	}
	return t.Thresholds.Validate()
}

func (t StepTest) Evaluate(env Env, obs model.Observation) (Outcome, error) {
	n, err := around(env, obs, Window{Before: t.Before})
	if err != nil {
		return Outcome{}, err
	}
	if !n.hasPrev || !finite(obs.Value) || !finite(n.prev.Value) {
		return inconclusive(), nil
	}
	return scored(math.Abs(obs.Value-n.prev.Value), t.Thresholds), nil
}

// SpikeTest flags a roughly symmetric up-and-down excursion. When the target
// is a strict local extremum and its two jumps differ by less than 35% of
// their sum, the statistic is that sum; otherwise it is zero.
type SpikeTest struct {
	Label      string
	Window     Window
	Thresholds Thresholds
}

func (t SpikeTest) Name() string { return label(t.Label, "spike") }

// Validate checks that the window reaches both sides of the target.
func (t SpikeTest) Validate() error {
	if t.Window.Before <= 0 || t.Window.After <= 0 {
		return fmt.Errorf("%s: window before and after must be positive: %w", t.Name(), model.ErrInvalidInput)
	}
	return t.Thresholds.Validate()
}

func (t SpikeTest) Evaluate(env Env, obs model.Observation) (Outcome, error) {
	n, err := around(env, obs, t.Window)
	if err != nil {
		return Outcome{}, err
	}
	if !n.hasPrev || !n.hasNext || !finite(obs.Value) || !finite(n.prev.Value) || !finite(n.next.Value) {
		return inconclusive(), nil
	}
	x, a, b := obs.Value, n.prev.Value, n.next.Value
	var stat float64
	if (a < x && b < x) || (a > x && b > x) {
		d1, d2 := math.Abs(x-a), math.Abs(b-x)
		if math.Abs(d1-d2) < spikeShape*(d1+d2) {
			stat = d1 + d2
		}
	}
	return scored(stat, t.Thresholds), nil
}

// FlatlineTest flags a sensor stuck on one value. The statistic is the
// number of consecutive identical values ending at the target.
type FlatlineTest struct {
	Label      string
	Before     time.Duration
	MinPoints  int
	Thresholds Thresholds
}

func (t FlatlineTest) Name() string { return label(t.Label, "flatline") }

// Validate checks the look-back configuration.
func (t FlatlineTest) Validate() error {
	if t.Before <= 0 || t.MinPoints < 2 {
		return fmt.Errorf("%s: before must be positive and min points at least 2: %w", t.Name(), model.ErrInvalidInput)
	}
	return t.Thresholds.Validate()
}

func (t FlatlineTest) Evaluate(env Env, obs model.Observation) (Outcome, error) {
	sc, err := env.series()
	if err != nil {
		return Outcome{}, err
	}
	win, err := sc.Window(obs.StationID, series.WindowSpec{Center: obs.Time, Before: t.Before})
	if err != nil {
		return Outcome{}, err
	}
	// points strictly before the target, newest last
	end, _ := win.IndexOf(obs.Time)
	if end+1 < t.MinPoints || !finite(obs.Value) {
		return inconclusive(), nil
	}
	run := 1
	for i := end - 1; i >= 0 && win.At(i).Value == obs.Value; i-- {
		run++
	}
	return scored(float64(run), t.Thresholds), nil
}
