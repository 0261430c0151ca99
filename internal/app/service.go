// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/abrantes/internal/adapters/mq/worker"
	"github.com/okian/abrantes/internal/adapters/notify"
	"github.com/okian/abrantes/internal/adapters/repository"
	"github.com/okian/abrantes/internal/domain/aggregate"
	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
	"github.com/okian/abrantes/pkg/metrics"
)

const stopTimeout = 10 * time.Second

// Drop reasons for capture messages.
const (
	dropNoSender  = "no_sender_tab"
	dropMalformed = "malformed"
	dropInvalid   = "invalid"
	dropQueueFull = "queue_full"
	dropStopped   = "not_started"
)

// Service implements the API dependencies for the inspector.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	hub        *notify.Hub
	publishers []notify.Publisher
	fanout     notify.Fanout
	aggregator *aggregate.Aggregator
	pool       *worker.Pool

	// Configuration
	workerCount      int
	queueSize        int
	maxHistory       int
	subscriberBuffer int

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        10_000,
		maxHistory:       model.MaxHistory,
		subscriberBuffer: 64,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting inspector service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	s.hub = notify.NewHub(
		notify.WithSubscriberBuffer(s.subscriberBuffer),
		notify.WithHubLogger(s.logger.Named("hub")),
	)
	s.fanout = append(notify.Fanout{s.hub}, s.publishers...)
	s.aggregator = aggregate.New(
		aggregate.WithStore(s.store),
		aggregate.WithPublisher(s.fanout),
		aggregate.WithMaxHistory(s.maxHistory),
		aggregate.WithLogger(s.logger.Named("aggregator")),
	)

	restored, err := s.aggregator.Preload(ctx)
	if err != nil {
		s.logger.Warn(ctx, "could not restore persisted tabs", logger.Error(err))
	}

	s.pool = worker.NewPool(s.workerCount, s.aggregator,
		worker.WithQueueCapacity(s.queueSize),
		worker.WithPoolLogger(s.logger.Named("worker-pool")),
	)
	// Workers outlive the start context; Stop drains them.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "inspector service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("maxHistory", s.maxHistory),
		logger.Int("restoredTabs", restored),
	)

	return nil
}

// Stop drains queued captures, then closes publishers and the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping inspector service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	if err := s.fanout.Close(); err != nil {
		s.logger.Warn(ctx, "error closing publishers", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "inspector service stopped")
}

func (s *Service) running() (*aggregate.Aggregator, *worker.Pool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregator, s.pool, s.started
}

// HandleMessage routes one relay message. The boolean reports whether the
// sender gets a reply: capture notifications and unknown types get none,
// every well-formed request does, even when handling it panics.
func (s *Service) HandleMessage(ctx context.Context, msg types.Message, sender types.Sender) (types.Response, bool) {
	switch msg.Type {
	case types.MessageAbrantesEvent:
		s.handleCapture(ctx, msg, sender)
		return types.Response{}, false
	case types.MessageGetTabState:
		return s.handleRequest(ctx, msg, func(tabID int) types.Response {
			state := s.GetTabState(ctx, tabID)
			return types.OKResponse(&state)
		}), true
	case types.MessageClearTabState:
		return s.handleRequest(ctx, msg, func(tabID int) types.Response {
			s.ClearTab(ctx, tabID)
			return types.OKResponse(nil)
		}), true
	default:
		metrics.RecordRequest("unknown", "ignored")
		s.log().Debug(ctx, "ignoring message", logger.String("type", msg.Type))
		return types.Response{}, false
	}
}

func (s *Service) handleRequest(ctx context.Context, msg types.Message, fn func(tabID int) types.Response) (resp types.Response) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordRequest(msg.Type, "error")
			metrics.RecordErrorByComponent("service", "panic")
			s.log().Error(ctx, "request handler panicked", logger.String("type", msg.Type), logger.Any("panic", r))
			resp = types.ErrorResponse(fmt.Sprint(r))
		}
	}()

	tabID, ok := msg.TabIDValue()
	if !ok {
		metrics.RecordRequest(msg.Type, "missing_tab")
		return types.ErrorResponse(types.ErrMissingTabID)
	}
	if _, _, started := s.running(); !started {
		metrics.RecordRequest(msg.Type, "error")
		return types.ErrorResponse(ErrNotStarted.Error())
	}
	resp = fn(tabID)
	metrics.RecordRequest(msg.Type, "ok")
	return resp
}

func (s *Service) handleCapture(ctx context.Context, msg types.Message, sender types.Sender) {
	if !sender.HasTab {
		metrics.RecordEventDropped(dropNoSender)
		s.log().Debug(ctx, "capture without sender tab dropped")
		return
	}

	var rec model.EventRecord
	if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &rec) != nil {
		metrics.RecordEventDropped(dropMalformed)
		s.log().Debug(ctx, "malformed capture payload dropped", logger.TabID(sender.TabID))
		return
	}
	if err := rec.Validate(); err != nil {
		metrics.RecordEventDropped(dropInvalid)
		s.log().Debug(ctx, "invalid capture dropped", logger.TabID(sender.TabID), logger.Error(err))
		return
	}

	if !s.Enqueue(ctx, sender.TabID, rec) {
		s.log().Warn(ctx, "capture dropped", logger.TabID(sender.TabID), logger.String("event", rec.EventName))
	}
}

// Enqueue submits a record for asynchronous aggregation on its tab's shard.
func (s *Service) Enqueue(ctx context.Context, tabID int, rec model.EventRecord) bool {
	_, pool, started := s.running()
	if !started {
		metrics.RecordEventDropped(dropStopped)
		return false
	}
	ok := pool.Submit(ctx, model.Envelope{TabID: tabID, Record: rec, Received: time.Now()})
	if !ok {
		metrics.RecordEventDropped(dropQueueFull)
	}
	return ok
}

// GetTabState returns the aggregated state of a tab.
func (s *Service) GetTabState(ctx context.Context, tabID int) model.TabState {
	agg, _, started := s.running()
	if !started {
		return model.EmptyTabState()
	}
	return agg.GetTabState(ctx, tabID)
}

// ClearTab resets a tab to the empty state.
func (s *Service) ClearTab(ctx context.Context, tabID int) {
	if agg, _, started := s.running(); started {
		agg.ClearTab(ctx, tabID)
	}
}

// TabClosed releases everything held for a closed tab.
func (s *Service) TabClosed(ctx context.Context, tabID int) {
	if agg, _, started := s.running(); started {
		agg.TabClosed(ctx, tabID)
	}
}

// Subscribe follows state updates matching filter. The channel closes when
// cancel is called or the service stops.
func (s *Service) Subscribe(filter notify.Filter) (<-chan types.Update, func(), error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	ch, cancel := s.hub.Subscribe(filter)
	return ch, cancel, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"maxHistory":  s.maxHistory,
	}

	if s.started {
		ps := s.pool.Stats(context.Background())
		cached := len(s.aggregator.CachedTabs())

		stats["queueLength"] = ps.Queued
		stats["processed"] = ps.Processed
		stats["failed"] = ps.Failed
		stats["closedShards"] = ps.Closed
		stats["cachedTabs"] = cached
		stats["subscribers"] = s.hub.Subscribers()

		metrics.UpdateQueueSize(ps.Queued)
		metrics.UpdateTabsCached(cached)
	}

	return stats
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return logger.Get()
	}
	return s.logger
}
