// Package worker drains captured events from the queues into the aggregator.
//
// Envelopes are sharded by tab id so each tab is always handled by the same
// worker, which keeps per-tab arrival order intact.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/abrantes/internal/adapters/mq/queue"
	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/pkg/logger"
	"github.com/okian/abrantes/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultQueueCapacity  = 10000
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Envelope abstracts what workers read off the queue.
type Envelope = model.Envelope

// Recorder folds a record into tab state.
type Recorder interface {
	RecordEvent(ctx context.Context, tabID int, rec model.EventRecord) (model.TabState, error)
}

// Queue defines how workers receive envelopes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Envelope
}

// Worker processes envelopes using the provided recorder.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing envelopes.
type InMemoryWorker struct {
	queue    Queue
	recorder Recorder
	name     string

	processed atomic.Int64
	failed    atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		recorder: recorder,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	envelopes := w.queue.Dequeue(ctx)
	for {
		// A stop wins over queued envelopes.
		select {
		case <-w.shutdown:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case env, ok := <-envelopes:
			if !ok {
				return
			}
			if err := w.process(ctx, env); err != nil {
				w.logger.Warn(ctx, "error processing envelope", logger.TabID(env.TabID), logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Processed returns the number of envelopes recorded successfully.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

// Failed returns the number of envelopes the recorder rejected.
func (w *InMemoryWorker) Failed() int64 {
	return w.failed.Load()
}

func (w *InMemoryWorker) stop() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process handles a single envelope.
func (w *InMemoryWorker) process(ctx context.Context, env Envelope) error { //nolint:gocritic // hugeParam: Envelope must be passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if _, err := w.recorder.RecordEvent(ctx, env.TabID, env.Record); err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "record_error")
		return fmt.Errorf("record %q for tab %d: %w", env.Record.EventName, env.TabID, err)
	}
	w.processed.Add(1)
	return nil
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	// Closed counts shards that no longer accept captures.
	Closed int `json:"closed"`
}

// Pool manages one worker per queue shard.
type Pool struct {
	workers []*InMemoryWorker
	queues  []queue.Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once

	logger logger.Logger
}

// NewPool creates a pool of workerCount shards sharing capacity between them.
// A non-positive workerCount defaults to runtime.NumCPU().
func NewPool(workerCount int, recorder Recorder, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	cfg := poolConfig{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("worker-pool")
	}

	perShard := (cfg.capacity + workerCount - 1) / workerCount
	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queues:   make([]queue.Queue, workerCount),
		shutdown: make(chan struct{}),
		logger:   cfg.logger,
	}
	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		pool.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(perShard))
		pool.workers[i] = NewInMemoryWorker(
			pool.queues[i],
			recorder,
			WithName(name),
			WithLogger(cfg.logger.Named(name)),
		)
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateQueueCapacity(perShard * workerCount)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))

	go p.startMetricsUpdater(ctx)
}

// Submit routes env to the shard owning its tab. It never blocks and
// returns false when that shard is full or closed.
func (p *Pool) Submit(ctx context.Context, env Envelope) bool { //nolint:gocritic // hugeParam: Envelope must be passed by value for channel semantics
	return p.queues[p.shard(env.TabID)].Enqueue(ctx, env)
}

func (p *Pool) shard(tabID int) int {
	return int(uint64(tabID) % uint64(len(p.queues)))
}

// Stats returns the current pool counters.
func (p *Pool) Stats(ctx context.Context) Stats {
	s := Stats{Workers: len(p.workers)}
	for _, q := range p.queues {
		s.Queued += q.Len(ctx)
		s.Capacity += q.Cap()
		if q.IsClosed() {
			s.Closed++
		}
	}
	for _, w := range p.workers {
		s.Processed += w.Processed()
		s.Failed += w.Failed()
	}
	return s
}

// startMetricsUpdater periodically publishes queue gauges.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics(ctx)
		}
	}
}

func (p *Pool) updateMetrics(ctx context.Context) {
	s := p.Stats(ctx)
	metrics.UpdateQueueSize(s.Queued)
	if s.Capacity > 0 {
		metrics.UpdateQueueUtilization(float64(s.Queued) / float64(s.Capacity))
	}
}

func (p *Pool) signal() {
	p.shutdownOnce.Do(func() { close(p.shutdown) })
}

// Stop stops all workers immediately, abandoning queued envelopes.
func (p *Pool) Stop() {
	p.signal()
	for _, w := range p.workers {
		w.stop()
	}
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown closes every queue and waits for the workers to drain them.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, q := range p.queues {
		if err := q.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
			continue
		case <-shutdownCtx.Done():
		}
		p.logger.Warn(ctx, "worker shutdown timed out, abandoning queued captures", logger.Int("worker_id", i))
		p.Stop()
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	p.signal()
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
