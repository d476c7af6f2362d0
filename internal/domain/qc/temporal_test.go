package qc_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/qc"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDipTest(t *testing.T) {
	dip := qc.DipTest{Window: qc.Window{Before: time.Hour, After: time.Hour}, Thresholds: qc.Thresholds{Warn: 3, Fail: 5}}

	Convey("Given a dip test with thresholds 3 and 5", t, func() {
		So(dip.Validate(), ShouldBeNil)
		So(dip.Name(), ShouldEqual, "dip")

		cases := []struct {
			name   string
			values []float64
			flag   flag.Flag
			score  float64
		}{
			{"a deep dip", []float64{10, 10, 3, 10, 10}, flag.Fail, 7},
			{"a shallow dip", []float64{10, 10, 7, 10, 10}, flag.Warn, 3},
			{"a flat series", []float64{10, 10, 10, 10, 10}, flag.Pass, 0},
			{"a deviation exactly at the fail threshold", []float64{10, 10, 15, 10, 10}, flag.Fail, 5},
		}
		for _, tc := range cases {
			Convey("When the middle value is "+tc.name, func() {
				obs := hourly("SN1", tc.values...)
				env := qc.Env{Series: seriesCache(t, obs)}
				out, err := dip.Evaluate(env, obs[2])

				So(err, ShouldBeNil)
				So(out.Flag, ShouldEqual, tc.flag)
				So(out.HasScore, ShouldBeTrue)
				So(out.Score, ShouldEqual, tc.score)
			})
		}

		Convey("When the target has no successor", func() {
			obs := hourly("SN1", 10, 10, 3)
			out, err := dip.Evaluate(qc.Env{Series: seriesCache(t, obs)}, obs[2])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
		})

		Convey("When the neighbours are outside the window", func() {
			obs := hourly("SN1", 10, 3, 10)
			obs[1].Time = t0.Add(4 * time.Hour)
			obs[2].Time = t0.Add(6 * time.Hour)
			out, err := dip.Evaluate(qc.Env{Series: seriesCache(t, obs)}, obs[1])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
		})

		Convey("When a neighbour is missing its value", func() {
			obs := hourly("SN1", 10, math.NaN(), 3, 10)
			out, err := dip.Evaluate(qc.Env{Series: seriesCache(t, obs)}, obs[2])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
		})

		Convey("When the station has no series", func() {
			obs := hourly("SN1", 10, 10, 10)
			_, err := dip.Evaluate(qc.Env{Series: seriesCache(t, obs)}, model.Observation{StationID: "SN2", Time: t0})
			So(errors.Is(err, model.ErrUnknownStation), ShouldBeTrue)
		})

		Convey("When the env has no series cache", func() {
			_, err := dip.Evaluate(qc.Env{}, model.Observation{StationID: "SN1", Time: t0})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When the window is one-sided", func() {
			bad := dip
			bad.Window.After = 0
			So(errors.Is(bad.Validate(), model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestStepTest(t *testing.T) {
	step := qc.StepTest{Before: 2 * time.Hour, Thresholds: qc.Thresholds{Warn: 3, Fail: 5}}

	Convey("Given a step test", t, func() {
		So(step.Validate(), ShouldBeNil)
		obs := hourly("SN1", 10, 14, 4)
		env := qc.Env{Series: seriesCache(t, obs)}

		Convey("When the value rises by 4", func() {
			out, err := step.Evaluate(env, obs[1])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Warn)
			So(out.Score, ShouldEqual, 4)
		})

		Convey("When the value drops by 10", func() {
			out, err := step.Evaluate(env, obs[2])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Fail)
		})

		Convey("When there is no predecessor", func() {
			out, err := step.Evaluate(env, obs[0])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
			So(out.HasScore, ShouldBeFalse)
		})
	})
}

func TestSpikeTest(t *testing.T) {
	spike := qc.SpikeTest{Window: qc.Window{Before: time.Hour, After: time.Hour}, Thresholds: qc.Thresholds{Warn: 5, Fail: 10}}

	Convey("Given a spike test", t, func() {
		So(spike.Validate(), ShouldBeNil)

		Convey("When the target is a symmetric peak", func() {
			obs := hourly("SN1", 10, 20, 11)
			out, err := spike.Evaluate(qc.Env{Series: seriesCache(t, obs)}, obs[1])
			So(err, ShouldBeNil)
			So(out.Score, ShouldEqual, 19)
			So(out.Flag, ShouldEqual, flag.Fail)
		})

		Convey("When the target is a small symmetric trough", func() {
			obs := hourly("SN1", 10, 7, 10)
			out, err := spike.Evaluate(qc.Env{Series: seriesCache(t, obs)}, obs[1])
			So(err, ShouldBeNil)
			So(out.Score, ShouldEqual, 6)
			So(out.Flag, ShouldEqual, flag.Warn)
		})

		Convey("When the series is a ramp", func() {
			obs := hourly("SN1", 10, 20, 30)
			out, err := spike.Evaluate(qc.Env{Series: seriesCache(t, obs)}, obs[1])
			So(err, ShouldBeNil)
			So(out.Score, ShouldEqual, 0)
			So(out.Flag, ShouldEqual, flag.Pass)
		})

		Convey("When the excursion is lopsided like a step", func() {
			obs := hourly("SN1", 10, 20, 19)
			out, err := spike.Evaluate(qc.Env{Series: seriesCache(t, obs)}, obs[1])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Pass)
		})
	})
}

func TestFlatlineTest(t *testing.T) {
	flat := qc.FlatlineTest{Before: 10 * time.Hour, MinPoints: 4, Thresholds: qc.Thresholds{Warn: 3, Fail: 5}}

	Convey("Given a flatline test", t, func() {
		So(flat.Validate(), ShouldBeNil)
		obs := hourly("SN1", 1, 2, 5, 5, 5, 5, 5, 5)
		env := qc.Env{Series: seriesCache(t, obs)}

		Convey("When the value repeated four times", func() {
			out, err := flat.Evaluate(env, obs[5])
			So(err, ShouldBeNil)
			So(out.Score, ShouldEqual, 4)
			So(out.Flag, ShouldEqual, flag.Warn)
		})

		Convey("When the value repeated six times", func() {
			out, err := flat.Evaluate(env, obs[7])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Fail)
		})

		Convey("When the value just changed", func() {
			out, err := flat.Evaluate(env, obs[3])
			So(err, ShouldBeNil)
			So(out.Score, ShouldEqual, 2)
			So(out.Flag, ShouldEqual, flag.Pass)
		})

		Convey("When the history is too short", func() {
			out, err := flat.Evaluate(env, obs[2])
			So(err, ShouldBeNil)
			So(out.Flag, ShouldEqual, flag.Inconclusive)
		})

		Convey("When min points is below two", func() {
			bad := flat
			bad.MinPoints = 1
			So(errors.Is(bad.Validate(), model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}
