// Package service runs quality control over a batch of station observations:
// it builds the caches, fans the observations out to a worker pool and
// collects the assessments into a report.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/okian/stationqc/internal/adapters/mq/queue"
	"github.com/okian/stationqc/internal/adapters/mq/worker"
	"github.com/okian/stationqc/internal/adapters/repository"
	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/internal/domain/qc"
	"github.com/okian/stationqc/internal/domain/series"
	"github.com/okian/stationqc/internal/domain/spatial"
	"github.com/okian/stationqc/pkg/logger"
	"github.com/okian/stationqc/pkg/metrics"
)

const (
	defaultQueueSize = 4096
	defaultTopN      = 10
)

// Run statuses reported to metrics.
const (
	statusOK       = "ok"
	statusAborted  = "aborted"
	statusCanceled = "canceled"
	statusInvalid  = "invalid"
)

// Batch is the input of one run.
type Batch struct {
	Stations     []model.Station
	Observations []model.Observation
	// Targets lists the observations to assess. Nil means all of
	// Observations. Targets are looked up against the same caches, so they
	// normally belong to Observations.
	Targets []model.Observation
}

// ObservationError is a per-observation failure that did not stop the run.
type ObservationError struct {
	Observation model.Observation
	Err         error
}

func (e ObservationError) Error() string {
	return e.Observation.Key() + ": " + e.Err.Error()
}

func (e ObservationError) Unwrap() error { return e.Err }

// Report summarizes a finished run.
type Report struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	// Assessments is ordered by station id then time.
	Assessments []model.Assessment
	// Errors is ordered by observation key.
	Errors []ObservationError
	Counts map[flag.Flag]int
	// Worst lists the most severe assessments first.
	Worst []repository.Entry
}

// Assessed returns the number of assessed observations.
func (r *Report) Assessed() int { return len(r.Assessments) }

// Service runs QC batches with a fixed test suite.
type Service struct {
	suite       *qc.Suite
	workerCount int
	queueSize   int
	topN        int
	metric      spatial.Metric
	clock       clockwork.Clock
	logger      logger.Logger
}

// New constructs a Service running suite.
func New(suite *qc.Suite, opts ...Option) (*Service, error) {
	if suite == nil {
		return nil, fmt.Errorf("nil suite: %w", model.ErrInvalidInput)
	}
	s := &Service{
		suite:       suite,
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		topN:        defaultTopN,
		metric:      spatial.Geodetic,
		clock:       clockwork.NewRealClock(),
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("qc-run")
	return s, nil
}

// Run assesses every target of b. Construction errors are returned before
// any work starts. Per-observation errors are collected in the report, except
// ErrInternalInconsistency which aborts the run.
func (s *Service) Run(ctx context.Context, b Batch) (*Report, error) {
	started := s.clock.Now()
	runID := uuid.New()
	runLog := []logger.Field{logger.String("run_id", runID.String())}

	sc, sp, err := s.buildCaches(b)
	if err != nil {
		metrics.RecordRun(statusInvalid, s.clock.Since(started))
		return nil, err
	}

	targets := b.Targets
	if targets == nil {
		targets = b.Observations
	}
	s.logger.Info(ctx, "run started", append(runLog,
		logger.Int("stations", sp.Len()),
		logger.Int("observations", len(b.Observations)),
		logger.Int("targets", len(targets)),
		logger.Int("workers", s.workerCount),
	)...)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	views := newViews(sp, sc)
	collector := &errorCollector{}
	store := repository.NewTreapStore(repository.WithSizeHint(len(targets)))
	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))

	eval := worker.EvaluatorFunc(func(_ context.Context, obs model.Observation) (model.Assessment, error) {
		a, err := s.suite.Evaluate(qc.Env{Spatial: views.at(obs.Time), Series: sc}, obs)
		if err != nil {
			return model.Assessment{}, err
		}
		for _, r := range a.Results {
			metrics.RecordTestFlag(r.Test, r.Flag.String())
		}
		return a, nil
	})
	onError := func(ctx context.Context, obs model.Observation, err error) {
		metrics.RecordObservationError(errorKind(err))
		collector.add(obs, err)
		if errors.Is(err, model.ErrInternalInconsistency) {
			cancel(err)
			return
		}
		s.logger.Warn(ctx, "observation not assessed",
			logger.String("observation", obs.Key()), logger.Error(err))
	}

	pool := worker.NewPool(s.workerCount, q, eval, store,
		worker.WithLogger(s.logger),
		worker.WithErrorHandler(onError),
	)
	pool.Start(runCtx)

	for _, obs := range targets {
		if err := q.Enqueue(runCtx, queue.Job{Observation: obs}); err != nil {
			break
		}
	}
	_ = q.Close()
	// Workers stop on their own once the queue drains or runCtx ends.
	_ = pool.Wait(context.Background())

	elapsed := s.clock.Since(started)
	if cause := context.Cause(runCtx); cause != nil {
		status := statusAborted
		if ctx.Err() != nil {
			status = statusCanceled
		}
		metrics.RecordRun(status, elapsed)
		s.logger.Error(ctx, "run stopped", append(runLog, logger.String("status", status), logger.Error(cause))...)
		return nil, fmt.Errorf("run %s: %w", runID, cause)
	}

	report := &Report{
		RunID:       runID,
		StartedAt:   started,
		Duration:    elapsed,
		Assessments: store.All(ctx),
		Errors:      collector.sorted(),
		Counts:      store.CountByFlag(ctx),
	}
	if store.Count(ctx) > 0 {
		worst, err := store.TopN(ctx, s.topN)
		if err != nil {
			return nil, fmt.Errorf("run %s: worst assessments: %w", runID, err)
		}
		report.Worst = worst
	}

	metrics.RecordRun(statusOK, elapsed)
	s.logger.Info(ctx, "run finished", append(runLog,
		logger.Int("assessed", report.Assessed()),
		logger.Int("errors", len(report.Errors)),
		logger.Int("fail", report.Counts[flag.Fail]),
		logger.Int("warn", report.Counts[flag.Warn]),
		logger.Duration("duration", elapsed),
	)...)
	return report, nil
}

// buildCaches groups observations per station and indexes the stations.
func (s *Service) buildCaches(b Batch) (*series.Cache, *spatial.Cache, error) {
	grouped := make(map[string][]model.Observation)
	for _, o := range b.Observations {
		grouped[o.StationID] = append(grouped[o.StationID], o)
	}
	for _, obs := range grouped {
		slices.SortStableFunc(obs, func(a, b model.Observation) int {
			return a.Time.Compare(b.Time)
		})
	}
	sc, err := series.New(grouped)
	if err != nil {
		return nil, nil, fmt.Errorf("series cache: %w", err)
	}
	sp, err := spatial.New(b.Stations, nil, spatial.WithMetric(s.metric))
	if err != nil {
		return nil, nil, fmt.Errorf("spatial cache: %w", err)
	}
	return sc, sp, nil
}

// views hands out one spatial cache per target instant, each reading
// neighbour values observed at exactly that instant.
type views struct {
	mu     sync.Mutex
	base   *spatial.Cache
	series *series.Cache
	byTime map[int64]*spatial.Cache
}

func newViews(base *spatial.Cache, sc *series.Cache) *views {
	return &views{base: base, series: sc, byTime: make(map[int64]*spatial.Cache)}
}

func (v *views) at(t time.Time) *spatial.Cache {
	key := t.UnixNano()
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.byTime[key]
	if !ok {
		c = v.base.WithValues(v.series.At(t))
		v.byTime[key] = c
	}
	return c
}

type errorCollector struct {
	mu   sync.Mutex
	errs []ObservationError
}

func (c *errorCollector) add(obs model.Observation, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, ObservationError{Observation: obs, Err: err})
}

func (c *errorCollector) sorted() []ObservationError {
	c.mu.Lock()
	out := slices.Clone(c.errs)
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b ObservationError) int {
		return cmp.Compare(a.Observation.Key(), b.Observation.Key())
	})
	return out
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrUnknownStation):
		return "unknown_station"
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrInternalInconsistency):
		return "internal_inconsistency"
	default:
		return "other"
	}
}
