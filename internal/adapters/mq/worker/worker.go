// Package worker assesses queued observations in parallel and hands the
// assessments to a sink.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/stationqc/internal/adapters/mq/queue"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/pkg/logger"
	"github.com/okian/stationqc/pkg/metrics"
)

// Evaluator assesses one observation.
type Evaluator interface {
	Evaluate(ctx context.Context, obs model.Observation) (model.Assessment, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, obs model.Observation) (model.Assessment, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, obs model.Observation) (model.Assessment, error) {
	return f(ctx, obs)
}

// Sink stores finished assessments.
type Sink interface {
	Put(ctx context.Context, a model.Assessment) error
}

// ErrorHandler receives the observation a worker failed on and the cause.
type ErrorHandler func(ctx context.Context, obs model.Observation, err error)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until the queue drains or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed
	// and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining the queue.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	eval    Evaluator
	sink    Sink
	onError ErrorHandler
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, eval Evaluator, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		eval:     eval,
		sink:     sink,
		onError:  func(context.Context, model.Observation, error) {},
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Debug(ctx, "job failed", logger.String("observation", j.Observation.Key()), logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Shutdown stops the worker and waits for Run to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: Job must be passed by value for channel semantics
	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)

	start := time.Now()
	a, err := w.eval.Evaluate(ctx, j.Observation)
	metrics.RecordEvaluationLatency(time.Since(start))
	if err != nil {
		metrics.RecordWorkerError()
		w.onError(ctx, j.Observation, err)
		return fmt.Errorf("evaluate %s: %w", j.Observation.Key(), err)
	}

	if err := w.sink.Put(ctx, a); err != nil {
		metrics.RecordWorkerError()
		w.onError(ctx, j.Observation, err)
		return fmt.Errorf("store %s: %w", j.Observation.Key(), err)
	}
	metrics.RecordObservationAssessed()
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers; NumCPU when < 1. opts are
// applied to every worker.
func NewPool(workerCount int, q Queue, eval Evaluator, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{}, opts...)
		workerOpts = append(workerOpts, WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, eval, sink, workerOpts...)
	}

	probe := &InMemoryWorker{logger: logger.Discard()}
	for _, opt := range opts {
		opt(probe)
	}
	pool.logger = probe.logger.Named("worker-pool")

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Wait blocks until every worker has returned, which happens once the
// queue is closed and drained or the run context is canceled.
func (p *Pool) Wait(ctx context.Context) error {
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown closes the queue, stops all workers and waits for them until ctx
// is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var timedOut int
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, ctx.Err())
	}
	return nil
}
