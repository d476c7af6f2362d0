// Package spatial answers memoized neighbour queries over a fixed set of
// stations.
package spatial

import (
	"fmt"

	"github.com/okian/stationqc/internal/domain/memo"
	"github.com/okian/stationqc/internal/domain/model"
)

const defaultName = "spatial"

// Cache memoizes neighbour queries for one run. The station index is built
// once and never changes; results are computed on first request and reused.
// It is safe for concurrent use.
type Cache struct {
	idx    *index
	values ValueSource
	memo   *memo.Table[neighborKey, Result]
	name   string
}

// New indexes stations and returns a cache over them. values may be nil, in
// which case neighbours carry no values.
func New(stations []model.Station, values ValueSource, opts ...Option) (*Cache, error) {
	s := settings{metric: Geodetic, name: defaultName}
	for _, opt := range opts {
		opt(&s)
	}
	idx, err := newIndex(stations, s.metric)
	if err != nil {
		return nil, fmt.Errorf("build spatial index: %w", err)
	}
	return &Cache{
		idx:    idx,
		values: values,
		memo:   memo.New[neighborKey, Result](memo.WithName(s.name)),
		name:   s.name,
	}, nil
}

// WithValues returns a cache over the same index reading neighbour values
// from values. The new cache starts with an empty memo table.
func (c *Cache) WithValues(values ValueSource) *Cache {
	return &Cache{
		idx:    c.idx,
		values: values,
		memo:   memo.New[neighborKey, Result](memo.WithName(c.name)),
		name:   c.name,
	}
}

// Neighbors returns the neighbours of stationID selected by q.
func (c *Cache) Neighbors(stationID string, q QuerySpec) (Result, error) {
	if _, err := c.idx.lookup(stationID); err != nil {
		return Result{}, err
	}
	if err := q.Validate(); err != nil {
		return Result{}, err
	}
	return c.memo.GetOrCompute(neighborKey{station: stationID, spec: q}, func() (Result, error) {
		return c.compute(stationID, q)
	})
}

func (c *Cache) compute(stationID string, q QuerySpec) (Result, error) {
	var (
		found []candidate
		err   error
	)
	switch {
	case q.MaxRadius > 0:
		found, err = c.idx.withinRadius(stationID, q.MaxRadius, q.IncludeSelf)
		if err == nil && q.MaxCount > 0 && len(found) > q.MaxCount {
			found = found[:q.MaxCount]
		}
	default:
		found, err = c.idx.nearestK(stationID, q.MaxCount, q.IncludeSelf)
	}
	if err != nil {
		return Result{}, err
	}

	items := make([]Neighbor, len(found))
	for i, f := range found {
		items[i] = Neighbor{Station: f.station, Distance: f.distance}
		if c.values != nil {
			items[i].Value, items[i].HasValue = c.values.Value(f.station.ID)
		}
	}
	return Result{items: items}, nil
}

// Station returns the indexed station with the given id.
func (c *Cache) Station(id string) (model.Station, error) {
	p, err := c.idx.lookup(id)
	if err != nil {
		return model.Station{}, err
	}
	return p.station, nil
}

// Len returns the number of indexed stations.
func (c *Cache) Len() int { return c.idx.size() }

// Metric returns the distance metric of the index.
func (c *Cache) Metric() Metric { return c.idx.metric }

// Memoized returns the number of stored query results.
func (c *Cache) Memoized() int64 { return c.memo.Size() }
