package series

import (
	"fmt"
	"slices"
	"time"

	"github.com/okian/stationqc/internal/domain/model"
)

// WindowSpec selects the observations in [Center-Before, Center+After].
type WindowSpec struct {
	Center time.Time
	Before time.Duration
	After  time.Duration
}

// Validate reports negative durations as ErrInvalidInput.
func (w WindowSpec) Validate() error {
	if w.Before < 0 || w.After < 0 {
		return fmt.Errorf("window before=%s after=%s must not be negative: %w", w.Before, w.After, model.ErrInvalidInput)
	}
	return nil
}

// Start is the inclusive lower bound of the window.
func (w WindowSpec) Start() time.Time { return w.Center.Add(-w.Before) }

// End is the inclusive upper bound of the window.
func (w WindowSpec) End() time.Time { return w.Center.Add(w.After) }

// windowKey identifies a window by instant, so equal times in different
// locations share an entry.
type windowKey struct {
	station string
	center  int64
	before  time.Duration
	after   time.Duration
}

func newWindowKey(station string, w WindowSpec) windowKey {
	return windowKey{station: station, center: w.Center.UnixNano(), before: w.Before, after: w.After}
}

func (k windowKey) String() string {
	return fmt.Sprintf("%q/%d-%d+%d", k.station, k.center, int64(k.before), int64(k.after))
}

// Window is an immutable ascending run of one station's observations.
type Window struct {
	items []model.Observation
}

// Len returns the number of observations in the window.
func (w Window) Len() int { return len(w.items) }

// At returns the i-th observation.
func (w Window) At(i int) model.Observation { return w.items[i] }

// All returns a copy of the observations.
func (w Window) All() []model.Observation { return slices.Clone(w.items) }

// Values returns the observed values in time order.
func (w Window) Values() []float64 {
	out := make([]float64, len(w.items))
	for i, o := range w.items {
		out[i] = o.Value
	}
	return out
}

// IndexOf returns the position of the observation taken at t.
func (w Window) IndexOf(t time.Time) (int, bool) {
	return search(w.items, t)
}

func search(obs []model.Observation, t time.Time) (int, bool) {
	return slices.BinarySearchFunc(obs, t, func(o model.Observation, t time.Time) int {
		return o.Time.Compare(t)
	})
}
