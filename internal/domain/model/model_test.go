package model_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestObservationKey(t *testing.T) {
	convey.Convey("Given observations at the same instant in different zones", t, func() {
		utc := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		local := utc.In(time.FixedZone("CET", 3600))
		a := model.Observation{StationID: "SN18700", Time: utc}
		b := model.Observation{StationID: "SN18700", Time: local}

		convey.Convey("Then their keys are equal", func() {
			convey.So(a.Key(), convey.ShouldEqual, b.Key())
			convey.So(a.Key(), convey.ShouldEqual, model.ObservationKey("SN18700", utc))
		})

		convey.Convey("Then a different station yields a different key", func() {
			c := model.Observation{StationID: "SN18701", Time: utc}
			convey.So(c.Key(), convey.ShouldNotEqual, a.Key())
		})
	})
}

func TestAssessmentScore(t *testing.T) {
	convey.Convey("Given an assessment with mixed results", t, func() {
		a := model.Assessment{
			Flag: flag.Warn,
			Results: []model.TestResult{
				{Test: "range", Flag: flag.Pass, Score: 99, HasScore: true},
				{Test: "dip", Flag: flag.Warn, Score: 3.5, HasScore: true},
				{Test: "step", Flag: flag.Warn, Score: 4, HasScore: true},
				{Test: "buddy", Flag: flag.Warn, Score: math.NaN(), HasScore: true},
				{Test: "flatline", Flag: flag.Warn},
			},
		}

		convey.Convey("Then the score is the largest among results at the combined severity", func() {
			convey.So(a.Score(), convey.ShouldEqual, 4)
		})

		convey.Convey("Then results can be looked up by test name", func() {
			r, ok := a.Result("dip")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(r.Score, convey.ShouldEqual, 3.5)
			_, ok = a.Result("sct")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given an assessment without scores", t, func() {
		a := model.Assessment{Flag: flag.Inconclusive, Results: []model.TestResult{{Test: "buddy", Flag: flag.Inconclusive}}}
		convey.So(a.Score(), convey.ShouldEqual, 0)
	})
}
