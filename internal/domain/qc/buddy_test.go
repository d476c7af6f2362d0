package qc_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/qc"
	"github.com/okian/stationqc/internal/domain/spatial"
	. "github.com/smartystreets/goconvey/convey"
)

// cross places four buddies one unit from T and a loner far away.
func cross() []model.Station {
	return []model.Station{
		{ID: "T", Lon: 0, Lat: 0, Elev: 1000},
		{ID: "A", Lon: 1, Lat: 0},
		{ID: "B", Lon: 0, Lat: 1},
		{ID: "C", Lon: -1, Lat: 0},
		{ID: "D", Lon: 0, Lat: -1},
		{ID: "far", Lon: 100, Lat: 100},
	}
}

func planarEnv(t *testing.T, stations []model.Station, values spatial.Values) qc.Env {
	t.Helper()
	c, err := spatial.New(stations, values, spatial.WithMetric(spatial.Planar))
	if err != nil {
		t.Fatalf("spatial cache: %v", err)
	}
	return qc.Env{Spatial: c}
}

func TestBuddyTest(t *testing.T) {
	buddy := qc.BuddyTest{
		Query:        spatial.QuerySpec{MaxRadius: 1.5},
		MinNeighbors: 3,
		Thresholds:   qc.Thresholds{Warn: 2, Fail: 4},
	}

	Convey("Given a buddy test over four equidistant neighbours", t, func() {
		So(buddy.Validate(), ShouldBeNil)
		env := planarEnv(t, cross(), spatial.Values{"A": 10, "B": 12, "C": 10, "D": 12})

		// expected 11, population std 1, inflated by sqrt(1.25)
		spread := math.Sqrt(1.25)

		Convey("When the value matches the neighbourhood", func() {
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: 11})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Pass)
			So(out.Score, ShouldAlmostEqual, 0, 1e-12)
		})

		Convey("When the value is moderately off", func() {
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: 13.5})
			So(err, ShouldBeNil)
			So(out.Score, ShouldAlmostEqual, 2.5/spread, 1e-9)
			So(out.Flag, ShouldEqual, flag.Warn)
		})

		Convey("When the value is far off", func() {
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: 20})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Fail)
		})

		Convey("When the value itself is missing", func() {
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: math.NaN()})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
		})

		Convey("When the station is unknown", func() {
			_, err := buddy.Evaluate(env, model.Observation{StationID: "X", Value: 1})
			So(errors.Is(err, model.ErrUnknownStation), ShouldBeTrue)
		})
	})

	Convey("Given a station with no neighbours in range", t, func() {
		env := planarEnv(t, cross(), spatial.Values{"A": 10, "B": 12, "C": 10, "D": 12, "far": 1})

		Convey("Then the outcome is inconclusive whatever the value", func() {
			for _, v := range []float64{1, 1e9, -1e9} {
				out, err := buddy.Evaluate(env, model.Observation{StationID: "far", Value: v})
				So(err, ShouldBeNil)
				So(out.Flag, ShouldEqual, flag.Inconclusive)
			}
		})
	})

	Convey("Given neighbours where only two report a value", t, func() {
		env := planarEnv(t, cross(), spatial.Values{"A": 10, "B": math.NaN(), "C": 10})

		Convey("Then there are too few buddies", func() {
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: 10})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
		})
	})

	Convey("Given neighbours that all agree", t, func() {
		env := planarEnv(t, cross(), spatial.Values{"A": 10, "B": 10, "C": 10, "D": 10})

		Convey("When the value agrees too", func() {
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: 10})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Pass)
		})

		Convey("When the value differs without a spread floor", func() {
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: 10.1})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Fail)
			So(math.IsInf(out.Score, 1), ShouldBeTrue)
		})

		Convey("When the spread is floored", func() {
			floored := buddy
			floored.MinSpread = 0.5
			out, err := floored.Evaluate(env, model.Observation{StationID: "T", Value: 11})
			So(err, ShouldBeNil)
			So(out.Score, ShouldAlmostEqual, 2, 1e-12)
			So(out.Flag, ShouldEqual, flag.Warn)
		})
	})

	Convey("Given a neighbour at the same location", t, func() {
		stations := append(cross(), model.Station{ID: "T2", Lon: 0, Lat: 0})
		env := planarEnv(t, stations, spatial.Values{"A": 10, "B": 12, "C": 10, "D": 12, "T2": 30})

		Convey("Then the co-located value is the expectation", func() {
			loose := buddy
			loose.Thresholds = qc.Thresholds{Warn: 100, Fail: 200}
			out, err := loose.Evaluate(env, model.Observation{StationID: "T", Value: 30})
			So(err, ShouldBeNil)
			So(out.Score, ShouldAlmostEqual, 0, 1e-12)
		})
	})

	Convey("Given nearer neighbours", t, func() {
		stations := []model.Station{
			{ID: "T"},
			{ID: "near", Lon: 1},
			{ID: "mid", Lon: -2},
			{ID: "far", Lat: 4},
		}
		env := planarEnv(t, stations, spatial.Values{"near": 0, "mid": 10, "far": 10})
		knn := buddy
		knn.Query = spatial.QuerySpec{MaxCount: 3}
		knn.MinSpread = 1
		knn.Thresholds = qc.Thresholds{Warn: 100, Fail: 200}

		Convey("Then they dominate the weighted expectation", func() {
			// weights 1, 1/4, 1/16
			expected := (0*1 + 10*0.25 + 10*0.0625) / (1 + 0.25 + 0.0625)
			out, err := knn.Evaluate(env, model.Observation{StationID: "T", Value: expected})
			So(err, ShouldBeNil)
			So(out.Score, ShouldAlmostEqual, 0, 1e-9)
		})
	})
}

func TestBuddyElevationWeighting(t *testing.T) {
	Convey("Given a mountain station among valley neighbours", t, func() {
		env := planarEnv(t, cross(), spatial.Values{"A": 10, "B": 10, "C": 10, "D": 10})
		buddy := qc.BuddyTest{
			Query:        spatial.QuerySpec{MaxRadius: 1.5},
			MinNeighbors: 3,
			MinSpread:    1,
			Thresholds:   qc.Thresholds{Warn: 2, Fail: 4},
			Weighting:    qc.Weighting{Mode: qc.ElevationAdjusted},
		}
		So(buddy.Validate(), ShouldBeNil)

		Convey("When neighbours are lapse-rate adjusted", func() {
			// 1000 m higher at -0.0065/m is 6.5 colder
			out, err := buddy.Evaluate(env, model.Observation{StationID: "T", Value: 3.5})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Pass)

			plain := buddy
			plain.Weighting = qc.Weighting{}
			out, err = plain.Evaluate(env, model.Observation{StationID: "T", Value: 3.5})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Fail)
		})

		Convey("When the elevation gap exceeds the limit", func() {
			limited := buddy
			limited.Weighting.MaxElevDiff = 500
			out, err := limited.Evaluate(env, model.Observation{StationID: "T", Value: 3.5})
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
		})
	})

	Convey("Given weighting mode names", t, func() {
		m, err := qc.ParseWeightingMode("elevation_adjusted")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, qc.ElevationAdjusted)
		So(m.String(), ShouldEqual, "elevation_adjusted")
		_, err = qc.ParseWeightingMode("kriging")
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
	})
}

func TestBuddyValidate(t *testing.T) {
	Convey("Given malformed buddy configurations", t, func() {
		valid := qc.BuddyTest{Query: spatial.QuerySpec{MaxCount: 5}, MinNeighbors: 2, Thresholds: qc.Thresholds{Warn: 1, Fail: 2}}
		So(valid.Validate(), ShouldBeNil)

		noQuery := valid
		noQuery.Query = spatial.QuerySpec{}
		So(errors.Is(noQuery.Validate(), model.ErrInvalidInput), ShouldBeTrue)

		noMin := valid
		noMin.MinNeighbors = 0
		So(errors.Is(noMin.Validate(), model.ErrInvalidInput), ShouldBeTrue)

		badSpread := valid
		badSpread.MinSpread = -1
		So(errors.Is(badSpread.Validate(), model.ErrInvalidInput), ShouldBeTrue)

		badMode := valid
		badMode.Weighting.Mode = qc.WeightingMode(9)
		So(errors.Is(badMode.Validate(), model.ErrInvalidInput), ShouldBeTrue)
	})
}
