package notify

import (
	"context"
	"sync"

	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
	"github.com/okian/abrantes/pkg/metrics"
)

const (
	defaultSubscriberBuffer = 64
	hubSink                 = "hub"
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSubscriberBuffer sets the per-subscriber channel size.
func WithSubscriberBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// WithHubLogger sets the logger used for dropped updates.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

type subscription struct {
	ch     chan types.Update
	filter Filter
}

// Hub is the in-process push channel. Subscribers that fall behind lose
// updates instead of stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
	closed bool
	logger logger.Logger
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[uint64]*subscription),
		buffer: defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a receiver for updates matching filter. The returned
// cancel function unsubscribes and closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(filter Filter) (<-chan types.Update, func()) {
	ch := make(chan types.Update, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = &subscription{ch: ch, filter: filter}
	count := len(h.subs)
	h.mu.Unlock()
	metrics.UpdateSubscribers(count)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			sub, ok := h.subs[id]
			if ok {
				delete(h.subs, id)
				close(sub.ch)
			}
			count := len(h.subs)
			h.mu.Unlock()
			metrics.UpdateSubscribers(count)
		})
	}
	return ch, cancel
}

// Publish offers u to every matching subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, u types.Update) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}

	for _, sub := range h.subs {
		if !sub.filter.Match(u) {
			continue
		}
		select {
		case sub.ch <- u:
			metrics.RecordNotificationPublished(hubSink)
		default:
			metrics.RecordNotificationDropped(hubSink)
			if h.logger != nil {
				h.logger.Debug(ctx, "subscriber full, update dropped", logger.TabID(u.TabID))
			}
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Further publishes return ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	metrics.UpdateSubscribers(0)
	return nil
}
