package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	service "github.com/okian/stationqc/internal/app"
	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/qc"
	"github.com/okian/stationqc/internal/domain/spatial"
	"github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// crossBatch lays out a centre station with four planar neighbours one unit
// away. Every station reports 10 each hour except the centre at hour 2.
func crossBatch() service.Batch {
	stations := []model.Station{
		{ID: "A", Lon: 0, Lat: 0},
		{ID: "N", Lon: 0, Lat: 1},
		{ID: "S", Lon: 0, Lat: -1},
		{ID: "E", Lon: 1, Lat: 0},
		{ID: "W", Lon: -1, Lat: 0},
	}
	var obs []model.Observation
	for _, s := range stations {
		for h := 0; h < 5; h++ {
			v := 10.0
			if s.ID == "A" && h == 2 {
				v = 30
			}
			obs = append(obs, model.Observation{StationID: s.ID, Time: t0.Add(time.Duration(h) * time.Hour), Value: v})
		}
	}
	return service.Batch{Stations: stations, Observations: obs}
}

func crossSuite() *qc.Suite {
	s, err := qc.NewSuite(
		qc.StepTest{Before: 2 * time.Hour, Thresholds: qc.Thresholds{Warn: 3, Fail: 6}},
		qc.BuddyTest{
			Query:        spatial.QuerySpec{MaxCount: 4},
			MinNeighbors: 3,
			Thresholds:   qc.Thresholds{Warn: 2, Fail: 4},
			MinSpread:    0.5,
		},
	)
	if err != nil {
		panic(err)
	}
	return s
}

// brokenTest reports a corrupted cache for one station.
type brokenTest struct{ station string }

func (brokenTest) Name() string { return "broken" }

func (b brokenTest) Evaluate(_ qc.Env, obs model.Observation) (qc.Outcome, error) {
	if obs.StationID == b.station {
		return qc.Outcome{}, model.ErrInternalInconsistency
	}
	return qc.Outcome{Flag: flag.Pass}, nil
}

func TestServiceRun(t *testing.T) {
	convey.Convey("Given a service over a planar cross of stations", t, func() {
		clock := clockwork.NewFakeClockAt(t0.Add(24 * time.Hour))
		svc, err := service.New(crossSuite(),
			service.WithMetric(spatial.Planar),
			service.WithWorkerCount(3),
			service.WithQueueSize(4),
			service.WithClock(clock),
			service.WithTopN(2),
		)
		convey.So(err, convey.ShouldBeNil)
		ctx := context.Background()

		convey.Convey("When every observation is assessed", func() {
			report, err := svc.Run(ctx, crossBatch())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the report covers all observations in station/time order", func() {
				convey.So(report.RunID, convey.ShouldNotEqual, uuid.Nil)
				convey.So(report.StartedAt, convey.ShouldEqual, clock.Now())
				convey.So(report.Assessed(), convey.ShouldEqual, 25)
				convey.So(report.Errors, convey.ShouldBeEmpty)
				convey.So(report.Assessments[0].Observation.StationID, convey.ShouldEqual, "A")
				convey.So(report.Assessments[0].Observation.Time, convey.ShouldEqual, t0)
				convey.So(report.Assessments[24].Observation.StationID, convey.ShouldEqual, "W")
			})

			convey.Convey("Then the counts add up", func() {
				convey.So(report.Counts[flag.Fail], convey.ShouldEqual, 2)
				convey.So(report.Counts[flag.Inconclusive], convey.ShouldEqual, 5)
				convey.So(report.Counts[flag.Pass], convey.ShouldEqual, 18)
				total := 0
				for _, n := range report.Counts {
					total += n
				}
				convey.So(total, convey.ShouldEqual, report.Assessed())
			})

			convey.Convey("Then the outlier and its rebound are the worst", func() {
				convey.So(report.Worst, convey.ShouldHaveLength, 2)
				first := report.Worst[0].Assessment
				convey.So(first.Key(), convey.ShouldEqual, model.ObservationKey("A", t0.Add(2*time.Hour)))
				buddy, ok := first.Result("buddy")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(buddy.Flag, convey.ShouldEqual, flag.Fail)
				convey.So(report.Worst[1].Assessment.Key(), convey.ShouldEqual, model.ObservationKey("A", t0.Add(3*time.Hour)))
			})

			convey.Convey("Then neighbours of the outlier are not blamed for it", func() {
				for _, a := range report.Assessments {
					if a.Observation.StationID != "A" {
						convey.So(a.Flag, convey.ShouldBeLessThan, flag.Warn)
					}
				}
			})
		})

		convey.Convey("When only some targets are requested", func() {
			b := crossBatch()
			b.Targets = b.Observations[:5]
			report, err := svc.Run(ctx, b)

			convey.Convey("Then only they are assessed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(report.Assessed(), convey.ShouldEqual, 5)
				for _, a := range report.Assessments {
					convey.So(a.Observation.StationID, convey.ShouldEqual, "A")
				}
			})
		})

		convey.Convey("When a target belongs to an unknown station", func() {
			b := crossBatch()
			stray := model.Observation{StationID: "ZZ", Time: t0, Value: 1}
			b.Targets = append([]model.Observation{stray}, b.Observations[:3]...)
			report, err := svc.Run(ctx, b)

			convey.Convey("Then the error is reported and the rest still runs", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(report.Assessed(), convey.ShouldEqual, 3)
				convey.So(report.Errors, convey.ShouldHaveLength, 1)
				convey.So(report.Errors[0].Observation.StationID, convey.ShouldEqual, "ZZ")
				convey.So(errors.Is(report.Errors[0], model.ErrUnknownStation), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the batch has duplicate stations", func() {
			b := crossBatch()
			b.Stations = append(b.Stations, b.Stations[0])
			_, err := svc.Run(ctx, b)

			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When a station reports twice at the same instant", func() {
			b := crossBatch()
			b.Observations = append(b.Observations, b.Observations[0])
			_, err := svc.Run(ctx, b)

			convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
		})

		convey.Convey("When the context is already canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			report, err := svc.Run(canceled, crossBatch())

			convey.So(report, convey.ShouldBeNil)
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a suite that detects corrupted state", t, func() {
		suite, err := qc.NewSuite(brokenTest{station: "E"})
		convey.So(err, convey.ShouldBeNil)
		svc, err := service.New(suite, service.WithMetric(spatial.Planar), service.WithWorkerCount(2))
		convey.So(err, convey.ShouldBeNil)

		report, err := svc.Run(context.Background(), crossBatch())

		convey.Convey("Then the whole run is aborted", func() {
			convey.So(report, convey.ShouldBeNil)
			convey.So(errors.Is(err, model.ErrInternalInconsistency), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given no suite", t, func() {
		_, err := service.New(nil)
		convey.So(errors.Is(err, model.ErrInvalidInput), convey.ShouldBeTrue)
	})
}
