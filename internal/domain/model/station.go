// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// Station is a fixed-location source of observations.
// In planar mode Lon is used as X and Lat as Y.
type Station struct {
	ID   string
	Lat  float64
	Lon  float64
	Elev float64 // metres
}

// Observation is a single value reported by a station at a point in time.
// Meta is optional and must be treated as read-only once handed to a cache.
type Observation struct {
	StationID string
	Time      time.Time
	Value     float64
	Meta      map[string]string
}

// Key identifies the observation within a run.
func (o Observation) Key() string {
	return ObservationKey(o.StationID, o.Time)
}

// ObservationKey renders the identity of an observation as station@unixnano.
func ObservationKey(stationID string, t time.Time) string {
	return stationID + "@" + strconv.FormatInt(t.UnixNano(), 10)
}

func (o Observation) String() string {
	return fmt.Sprintf("%s@%s=%g", o.StationID, o.Time.UTC().Format(time.RFC3339), o.Value)
}
