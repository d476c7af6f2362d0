package qc_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/qc"
	"github.com/okian/stationqc/internal/domain/spatial"
	"github.com/smartystreets/goconvey/convey"
)

func suiteTests() []qc.Test {
	return []qc.Test{
		qc.RangeTest{Hard: qc.Bounds{Min: -50, Max: 50}, Soft: qc.Bounds{Min: -30, Max: 35}},
		qc.DipTest{Window: qc.Window{Before: time.Hour, After: time.Hour}, Thresholds: qc.Thresholds{Warn: 3, Fail: 5}},
		qc.StepTest{Before: time.Hour, Thresholds: qc.Thresholds{Warn: 4, Fail: 8}},
		qc.BuddyTest{Query: spatial.QuerySpec{MaxRadius: 1.5}, MinNeighbors: 3, Thresholds: qc.Thresholds{Warn: 2, Fail: 4}},
	}
}

func TestSuite(t *testing.T) {
	convey.Convey("Given a suite of range, dip, step and buddy tests", t, func() {
		obs := hourly("T", 10, 10, 7, 10, 10)
		sc := seriesCache(t, obs)
		sp, err := spatial.New(cross(), spatial.Values{}, spatial.WithMetric(spatial.Planar))
		convey.So(err, convey.ShouldBeNil)
		env := qc.Env{Spatial: sp, Series: sc}

		suite, err := qc.NewSuite(suiteTests()...)
		convey.So(err, convey.ShouldBeNil)
		convey.So(suite.Names(), convey.ShouldResemble, []string{"range", "dip", "step", "buddy"})

		convey.Convey("When evaluating the shallow dip", func() {
			a, err := suite.Evaluate(env, obs[2])
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then every test reports and the worst flag wins", func() {
				convey.So(a.Results, convey.ShouldHaveLength, 4)
				convey.So(a.Results[0].Flag, convey.ShouldEqual, flag.Pass)
				convey.So(a.Results[1].Flag, convey.ShouldEqual, flag.Warn)
				convey.So(a.Results[2].Flag, convey.ShouldEqual, flag.Pass)
				convey.So(a.Results[3].Flag, convey.ShouldEqual, flag.Inconclusive)
				convey.So(a.Flag, convey.ShouldEqual, flag.Warn)
				convey.So(a.Results[1].StationID, convey.ShouldEqual, "T")
				convey.So(a.Results[1].Time, convey.ShouldEqual, obs[2].Time)
				convey.So(a.Score(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the tests run in reverse order", func() {
			tests := suiteTests()
			reversed := make([]qc.Test, 0, len(tests))
			for i := len(tests) - 1; i >= 0; i-- {
				reversed = append(reversed, tests[i])
			}
			other, err := qc.NewSuite(reversed...)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then every observation gets the same combined flag", func() {
				for _, o := range obs {
					a, err := suite.Evaluate(env, o)
					convey.So(err, convey.ShouldBeNil)
					b, err := other.Evaluate(env, o)
					convey.So(err, convey.ShouldBeNil)
					convey.So(b.Flag, convey.ShouldEqual, a.Flag)
				}
			})
		})

		convey.Convey("When the observation's station is unknown", func() {
			_, err := suite.Evaluate(env, model.Observation{StationID: "ghost", Time: t0, Value: 1})

			convey.Convey("Then the structural error is returned, not a flag", func() {
				convey.So(errors.Is(err, model.ErrUnknownStation), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given an empty suite", t, func() {
		suite, err := qc.NewSuite()
		convey.So(err, convey.ShouldBeNil)
		a, err := suite.Evaluate(qc.Env{}, model.Observation{StationID: "T"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(a.Flag, convey.ShouldEqual, flag.Pass)
		convey.So(suite.Len(), convey.ShouldEqual, 0)
	})
}

func TestNewSuiteRejects(t *testing.T) {
	convey.Convey("Given invalid suites", t, func() {
		convey.Convey("When two tests share a name", func() {
			_, err := qc.NewSuite(qc.HumidityRange(), qc.HumidityRange())
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When thresholds are inverted", func() {
			_, err := qc.NewSuite(qc.StepTest{Before: time.Hour, Thresholds: qc.Thresholds{Warn: 5, Fail: 3}})
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When a test is nil", func() {
			_, err := qc.NewSuite(nil)
			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When labels make duplicates distinct", func() {
			a, b := qc.HumidityRange(), qc.HumidityRange()
			b.Label = "humidity_range_2m"
			_, err := qc.NewSuite(a, b)
			convey.So(err, convey.ShouldBeNil)
		})
	})
}
