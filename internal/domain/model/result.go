package model

import (
	"math"
	"time"

	"github.com/okian/stationqc/internal/domain/flag"
)

// TestResult is the outcome of one QC test for one observation.
type TestResult struct {
	StationID string
	Time      time.Time
	Test      string
	Flag      flag.Flag
	Score     float64 // diagnostic statistic, meaningful only when HasScore
	HasScore  bool
}

// Assessment gathers every test result for an observation and their combination.
type Assessment struct {
	Observation Observation
	Results     []TestResult
	Flag        flag.Flag
}

// Key identifies the assessed observation.
func (a Assessment) Key() string {
	return a.Observation.Key()
}

// Score returns the largest diagnostic score among results with the
// combined flag's severity. Results without a score are ignored; NaN scores
// count as absent. Returns 0 when nothing qualifies.
func (a Assessment) Score() float64 {
	best := math.Inf(-1)
	for _, r := range a.Results {
		if !r.HasScore || math.IsNaN(r.Score) || r.Flag != a.Flag {
			continue
		}
		if r.Score > best {
			best = r.Score
		}
	}
	if math.IsInf(best, -1) {
		return 0
	}
	return best
}

// Result returns the result produced by the named test.
func (a Assessment) Result(test string) (TestResult, bool) {
	for _, r := range a.Results {
		if r.Test == test {
			return r, true
		}
	}
	return TestResult{}, false
}
