// Package aggregate folds captured Abrantes events into per-tab state.
//
// The Aggregator owns an in-memory cache mirrored to a durable store. All
// mutations of one tab run under that tab's lock, so concurrent records for
// the same tab never lose increments.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/abrantes/internal/adapters/notify"
	"github.com/okian/abrantes/internal/adapters/repository"
	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
	"github.com/okian/abrantes/pkg/metrics"
)

const lockStripes = 64

// Clear reasons reported in metrics.
const (
	ReasonRequest   = "request"
	ReasonTabClosed = "tab_closed"
)

// Aggregator maintains TabState per tab.
type Aggregator struct {
	mu    sync.RWMutex
	cache map[int]model.TabState
	locks [lockStripes]sync.Mutex

	store      repository.Store
	publisher  notify.Publisher
	maxHistory int
	logger     logger.Logger
}

// New constructs an Aggregator. Without options it keeps state in memory
// and publishes nowhere.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		cache:      make(map[int]model.TabState),
		maxHistory: model.MaxHistory,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.store == nil {
		a.store = repository.NewMemoryStore()
	}
	if a.publisher == nil {
		a.publisher = notify.Noop{}
	}
	return a
}

func (a *Aggregator) tabLock(tabID int) *sync.Mutex {
	return &a.locks[uint64(tabID)%lockStripes]
}

// GetTabState returns the state of a tab, loading it from the store on a
// cache miss. Absence and storage failures both yield the empty state.
func (a *Aggregator) GetTabState(ctx context.Context, tabID int) model.TabState {
	l := a.tabLock(tabID)
	l.Lock()
	defer l.Unlock()
	return a.load(ctx, tabID)
}

// RecordEvent folds rec into the tab state, persists it and broadcasts the
// new state. Storage and broadcast failures are logged, not returned.
func (a *Aggregator) RecordEvent(ctx context.Context, tabID int, rec model.EventRecord) (model.TabState, error) {
	if err := rec.Validate(); err != nil {
		metrics.RecordEventDropped("invalid")
		return model.TabState{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	label := metrics.EventLabel(rec.EventName, model.IsRecognized(rec.EventName))
	metrics.RecordEventReceived(label)

	l := a.tabLock(tabID)
	l.Lock()
	defer l.Unlock()

	state := a.load(ctx, tabID)
	state.Apply(rec, a.maxHistory)
	a.put(tabID, state)

	if err := repository.SaveTabState(ctx, a.store, tabID, state); err != nil {
		a.warn(ctx, "failed to persist tab state", logger.TabID(tabID), logger.Error(err))
	}
	a.publish(ctx, tabID, state)
	metrics.RecordEventRecorded(label)

	return state.Clone(), nil
}

// ClearTab drops the state of a tab from cache and store and broadcasts the
// empty state.
func (a *Aggregator) ClearTab(ctx context.Context, tabID int) {
	a.clear(ctx, tabID, ReasonRequest)
}

// TabClosed releases everything held for a closed tab.
func (a *Aggregator) TabClosed(ctx context.Context, tabID int) {
	a.clear(ctx, tabID, ReasonTabClosed)
}

func (a *Aggregator) clear(ctx context.Context, tabID int, reason string) {
	l := a.tabLock(tabID)
	l.Lock()
	defer l.Unlock()

	a.mu.Lock()
	delete(a.cache, tabID)
	cached := len(a.cache)
	a.mu.Unlock()
	metrics.UpdateTabsCached(cached)

	if err := repository.DeleteTabState(ctx, a.store, tabID); err != nil {
		a.warn(ctx, "failed to delete tab state", logger.TabID(tabID), logger.Error(err))
	}
	metrics.RecordTabCleared(reason)
	a.publish(ctx, tabID, model.EmptyTabState())
}

// Preload warms the cache with every tab found in the store and returns how
// many were loaded.
func (a *Aggregator) Preload(ctx context.Context) (int, error) {
	ids, err := repository.PersistedTabs(ctx, a.store)
	if err != nil {
		return 0, fmt.Errorf("list persisted tabs: %w", err)
	}
	for _, id := range ids {
		a.GetTabState(ctx, id)
	}
	return len(ids), nil
}

// CachedTabs returns the ids of the tabs currently held in memory, sorted.
func (a *Aggregator) CachedTabs() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]int, 0, len(a.cache))
	for id := range a.cache {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// load returns a private copy of the tab state. Caller holds the tab lock.
func (a *Aggregator) load(ctx context.Context, tabID int) model.TabState {
	a.mu.RLock()
	state, ok := a.cache[tabID]
	a.mu.RUnlock()
	if ok {
		return state.Clone()
	}

	stored, found, err := repository.LoadTabState(ctx, a.store, tabID)
	switch {
	case err != nil:
		a.warn(ctx, "failed to load tab state, using empty state", logger.TabID(tabID), logger.Error(err))
		state = model.EmptyTabState()
	case !found:
		state = model.EmptyTabState()
	default:
		state = stored.Normalize(a.maxHistory)
	}
	a.put(tabID, state)
	return state.Clone()
}

func (a *Aggregator) put(tabID int, state model.TabState) {
	a.mu.Lock()
	a.cache[tabID] = state
	cached := len(a.cache)
	a.mu.Unlock()
	metrics.UpdateTabsCached(cached)
}

func (a *Aggregator) publish(ctx context.Context, tabID int, state model.TabState) {
	if err := a.publisher.Publish(ctx, types.NewUpdate(tabID, state.Clone())); err != nil && a.logger != nil {
		a.logger.Debug(ctx, "update not delivered", logger.TabID(tabID), logger.Error(err))
	}
}

func (a *Aggregator) warn(ctx context.Context, msg string, fields ...logger.Field) {
	if a.logger != nil {
		a.logger.Warn(ctx, msg, fields...)
	}
}
