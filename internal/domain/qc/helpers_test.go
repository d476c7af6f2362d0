package qc_test

import (
	"testing"
	"time"

	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/series"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func hourly(station string, values ...float64) []model.Observation {
	out := make([]model.Observation, len(values))
	for i, v := range values {
		out[i] = model.Observation{StationID: station, Time: t0.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return out
}

func seriesCache(t *testing.T, obs ...[]model.Observation) *series.Cache {
	t.Helper()
	input := make(map[string][]model.Observation, len(obs))
	for _, o := range obs {
		input[o[0].StationID] = o
	}
	c, err := series.New(input)
	if err != nil {
		t.Fatalf("series cache: %v", err)
	}
	return c
}
