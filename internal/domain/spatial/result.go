package spatial

import (
	"fmt"
	"math"
	"slices"

	"github.com/okian/stationqc/internal/domain/model"
)

// QuerySpec describes a neighbour query.
//
// MaxCount alone asks for the k nearest stations, MaxRadius alone for every
// station within the radius, and both together for the k nearest within the
// radius. The queried station is excluded unless IncludeSelf is set.
type QuerySpec struct {
	MaxCount    int
	MaxRadius   float64
	IncludeSelf bool
}

// Validate reports malformed specs as ErrInvalidInput.
func (q QuerySpec) Validate() error {
	switch {
	case q.MaxCount < 0:
		return fmt.Errorf("max count %d is negative: %w", q.MaxCount, model.ErrInvalidInput)
	case q.MaxRadius < 0 || math.IsNaN(q.MaxRadius):
		return fmt.Errorf("max radius %g is negative: %w", q.MaxRadius, model.ErrInvalidInput)
	case q.MaxCount == 0 && q.MaxRadius == 0:
		return fmt.Errorf("neither max count nor max radius set: %w", model.ErrInvalidInput)
	}
	return nil
}

func (q QuerySpec) String() string {
	return fmt.Sprintf("k=%d,r=%g,self=%t", q.MaxCount, q.MaxRadius, q.IncludeSelf)
}

type neighborKey struct {
	station string
	spec    QuerySpec
}

func (k neighborKey) String() string {
	return fmt.Sprintf("%q/%s", k.station, k.spec)
}

// Neighbor is a station near the queried one together with the value it
// reported, if any.
type Neighbor struct {
	Station  model.Station
	Distance float64
	Value    float64
	HasValue bool
}

// Result is an immutable list of neighbours ordered by ascending distance,
// ties broken by ascending station id.
type Result struct {
	items []Neighbor
}

// Len returns the number of neighbours.
func (r Result) Len() int { return len(r.items) }

// At returns the i-th neighbour.
func (r Result) At(i int) Neighbor { return r.items[i] }

// All returns a copy of the neighbours.
func (r Result) All() []Neighbor { return slices.Clone(r.items) }

// Values returns the values of the neighbours that have one, in order.
func (r Result) Values() []float64 {
	out := make([]float64, 0, len(r.items))
	for _, n := range r.items {
		if n.HasValue {
			out = append(out, n.Value)
		}
	}
	return out
}

// IDs returns the neighbour station ids in order.
func (r Result) IDs() []string {
	out := make([]string, len(r.items))
	for i, n := range r.items {
		out[i] = n.Station.ID
	}
	return out
}

// ValueSource supplies the current value of a station.
type ValueSource interface {
	Value(stationID string) (float64, bool)
}

// Values is a map-backed ValueSource.
type Values map[string]float64

// Value implements ValueSource.
func (v Values) Value(stationID string) (float64, bool) {
	x, ok := v[stationID]
	return x, ok
}
