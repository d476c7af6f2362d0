// Package series serves memoized time windows over per-station observation
// histories.
package series

import (
	"fmt"
	"slices"
	"time"

	"github.com/okian/stationqc/internal/domain/memo"
	"github.com/okian/stationqc/internal/domain/model"
)

// Cache holds every station's series for one run and memoizes window
// lookups. It is safe for concurrent use.
type Cache struct {
	series map[string][]model.Observation
	memo   *memo.Table[windowKey, Window]
}

// New copies the given series into a cache. Each series must be strictly
// ascending in time and every observation must belong to the station it is
// filed under.
func New(input map[string][]model.Observation, opts ...Option) (*Cache, error) {
	s := settings{name: "series"}
	for _, opt := range opts {
		opt(&s)
	}

	series := make(map[string][]model.Observation, len(input))
	for id, obs := range input {
		if id == "" {
			return nil, fmt.Errorf("series with empty station id: %w", model.ErrInvalidInput)
		}
		for i, o := range obs {
			if o.StationID != id {
				return nil, fmt.Errorf("series %q: observation #%d belongs to %q: %w", id, i, o.StationID, model.ErrInvalidInput)
			}
			if i > 0 && !o.Time.After(obs[i-1].Time) {
				return nil, fmt.Errorf("series %q: observation #%d at %s is not after %s: %w",
					id, i, o.Time.Format(time.RFC3339Nano), obs[i-1].Time.Format(time.RFC3339Nano), model.ErrInvalidInput)
			}
		}
		series[id] = slices.Clone(obs)
	}

	return &Cache{
		series: series,
		memo:   memo.New[windowKey, Window](memo.WithName(s.name)),
	}, nil
}

// Window returns the observations of stationID inside w. A window with no
// data is empty, not an error.
func (c *Cache) Window(stationID string, w WindowSpec) (Window, error) {
	obs, ok := c.series[stationID]
	if !ok {
		return Window{}, fmt.Errorf("series %q: %w", stationID, model.ErrUnknownStation)
	}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return c.memo.GetOrCompute(newWindowKey(stationID, w), func() (Window, error) {
		lo, _ := search(obs, w.Start())
		hi, found := search(obs, w.End())
		if found {
			hi++
		}
		if hi < lo {
			return Window{}, fmt.Errorf("series %q: window bounds %d > %d: %w", stationID, lo, hi, model.ErrInternalInconsistency)
		}
		return Window{items: obs[lo:hi:hi]}, nil
	})
}

// Observation returns the observation of stationID taken exactly at t.
func (c *Cache) Observation(stationID string, t time.Time) (model.Observation, bool) {
	obs := c.series[stationID]
	i, ok := search(obs, t)
	if !ok {
		return model.Observation{}, false
	}
	return obs[i], true
}

// Stations returns the ids of all stations with a series, sorted.
func (c *Cache) Stations() []string {
	ids := make([]string, 0, len(c.series))
	for id := range c.series {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of observations recorded for stationID.
func (c *Cache) Len(stationID string) int {
	return len(c.series[stationID])
}

// Memoized returns the number of stored windows.
func (c *Cache) Memoized() int64 {
	return c.memo.Size()
}

// At returns the values every station reported at exactly t.
func (c *Cache) At(t time.Time) Snapshot {
	return Snapshot{cache: c, at: t}
}

// Snapshot reads station values at a fixed instant. It satisfies
// spatial.ValueSource.
type Snapshot struct {
	cache *Cache
	at    time.Time
}

// Value returns the value stationID reported at the snapshot time.
func (s Snapshot) Value(stationID string) (float64, bool) {
	o, ok := s.cache.Observation(stationID, s.at)
	if !ok {
		return 0, false
	}
	return o.Value, true
}

// Time returns the snapshot instant.
func (s Snapshot) Time() time.Time { return s.at }
