package spatial

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/okian/stationqc/internal/domain/model"
)

// R-tree tuning and geometry constants.
const (
	treeDim         = 3
	treeMinChildren = 25
	treeMaxChildren = 50
	pointTolerance  = 1e-9
	// EarthRadius is the sphere radius used by the geodetic metric, in metres.
	EarthRadius = 6_371_000.0
)

// indexed is a station stored in the R-tree. loc is the tree-space position:
// ECEF metres for Geodetic, (lon, lat, 0) for Planar.
type indexed struct {
	pos     int
	station model.Station
	loc     rtreego.Point
}

func (p *indexed) Bounds() rtreego.Rect {
	return p.loc.ToRect(pointTolerance)
}

// candidate is a resolved neighbour before values are attached.
type candidate struct {
	station  model.Station
	distance float64
}

// index is a static point index over one run's stations. It is only reachable
// through Cache so nobody can query an index detached from its cache.
type index struct {
	metric Metric
	tree   *rtreego.Rtree
	byID   map[string]*indexed
}

func newIndex(stations []model.Station, metric Metric) (*index, error) {
	if !metric.valid() {
		return nil, fmt.Errorf("metric %d: %w", metric, model.ErrInvalidInput)
	}
	idx := &index{
		metric: metric,
		byID:   make(map[string]*indexed, len(stations)),
	}
	items := make([]rtreego.Spatial, 0, len(stations))
	for i, s := range stations {
		if s.ID == "" {
			return nil, fmt.Errorf("station #%d has empty id: %w", i, model.ErrInvalidInput)
		}
		if _, dup := idx.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station %q: %w", s.ID, model.ErrInvalidInput)
		}
		if err := metric.check(s); err != nil {
			return nil, fmt.Errorf("station %q: %w", s.ID, err)
		}
		p := &indexed{pos: i, station: s, loc: metric.project(s)}
		idx.byID[s.ID] = p
		items = append(items, p)
	}
	idx.tree = rtreego.NewTree(treeDim, treeMinChildren, treeMaxChildren, items...)
	return idx, nil
}

func (x *index) lookup(id string) (*indexed, error) {
	p, ok := x.byID[id]
	if !ok {
		return nil, fmt.Errorf("station %q: %w", id, model.ErrUnknownStation)
	}
	return p, nil
}

func (x *index) size() int {
	return len(x.byID)
}

// nearestK returns up to k stations nearest to id, ordered by ascending
// distance then ascending id. The queried station is skipped unless
// includeSelf is set, in which case it is the first result.
func (x *index) nearestK(id string, k int, includeSelf bool) ([]candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k=%d must be positive: %w", k, model.ErrInvalidInput)
	}
	origin, err := x.lookup(id)
	if err != nil {
		return nil, err
	}

	// The tree orders by tree-space distance, which is monotonic in the metric
	// but says nothing about ties. Take the k-th distance from the tree's
	// answer and gather everything up to it so ties resolve by id.
	want := k
	if !includeSelf {
		want++
	}
	var dists []float64
	for _, s := range x.tree.NearestNeighbors(want, origin.loc) {
		p, ok := s.(*indexed)
		if !ok || p == nil {
			continue
		}
		if p == origin && !includeSelf {
			continue
		}
		dists = append(dists, x.metric.distance(origin.station, p.station))
	}
	if len(dists) == 0 {
		return nil, nil
	}
	slices.Sort(dists)
	// Fewer candidates than requested means the whole set qualifies.
	kth := math.Inf(1)
	if len(dists) >= k {
		kth = dists[k-1]
	}

	out := x.collect(origin, kth, includeSelf)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// withinRadius returns every station with distance <= r from id, ordered by
// ascending distance then ascending id.
func (x *index) withinRadius(id string, r float64, includeSelf bool) ([]candidate, error) {
	if r < 0 || math.IsNaN(r) {
		return nil, fmt.Errorf("radius=%g must not be negative: %w", r, model.ErrInvalidInput)
	}
	origin, err := x.lookup(id)
	if err != nil {
		return nil, err
	}
	return x.collect(origin, r, includeSelf), nil
}

// collect gathers all stations within r of origin and sorts them.
func (x *index) collect(origin *indexed, r float64, includeSelf bool) []candidate {
	var hits []rtreego.Spatial
	bb, err := x.metric.box(origin.loc, r)
	if err != nil || math.IsInf(r, 1) || x.metric.coversAll(r) {
		hits = make([]rtreego.Spatial, 0, len(x.byID))
		for _, p := range x.byID {
			hits = append(hits, p)
		}
	} else {
		hits = x.tree.SearchIntersect(bb)
	}

	out := make([]candidate, 0, len(hits))
	for _, s := range hits {
		p, ok := s.(*indexed)
		if !ok || p == nil {
			continue
		}
		if p == origin && !includeSelf {
			continue
		}
		d := x.metric.distance(origin.station, p.station)
		if d > r {
			continue
		}
		out = append(out, candidate{station: p.station, distance: d})
	}
	slices.SortFunc(out, func(a, b candidate) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.station.ID, b.station.ID)
	})
	return out
}
