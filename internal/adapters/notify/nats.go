package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/metrics"
)

const natsSink = "nats"

// DefaultSubject is the subject prefix updates are published under.
const DefaultSubject = "abrantes.updates"

// Subject returns the subject for one tab, e.g. "abrantes.updates.42".
func Subject(prefix string, tabID int) string {
	return prefix + "." + strconv.Itoa(tabID)
}

// NATSPublisher publishes JSON-encoded updates to "<prefix>.<tabId>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url. An empty prefix falls back to DefaultSubject.
func NewNATSPublisher(url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	if prefix == "" {
		prefix = DefaultSubject
	}
	return &NATSPublisher{conn: nc, prefix: prefix}, nil
}

// Publish encodes u and hands it to the NATS client.
func (p *NATSPublisher) Publish(ctx context.Context, u types.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshaling update: %w", err)
	}
	if err := p.conn.Publish(Subject(p.prefix, u.TabID), data); err != nil {
		metrics.RecordNotificationDropped(natsSink)
		return fmt.Errorf("publishing update: %w", err)
	}
	metrics.RecordNotificationPublished(natsSink)
	return nil
}

// Flush waits until the server has processed everything published so far.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

// Close closes the connection.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives updates published by a NATSPublisher.
type NATSSubscriber struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSubscriber connects to NATS with automatic reconnection support.
func NewNATSSubscriber(url, prefix string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	if prefix == "" {
		prefix = DefaultSubject
	}
	return &NATSSubscriber{conn: nc, prefix: prefix}, nil
}

// Subscribe returns a channel of decoded updates matching filter. Undecodable
// messages are skipped. Call cancel to unsubscribe and close the channel.
func (s *NATSSubscriber) Subscribe(filter Filter) (<-chan types.Update, func(), error) {
	subject := s.prefix + ".*"
	if filter.HasTab {
		subject = Subject(s.prefix, filter.TabID)
	}

	ch := make(chan types.Update, defaultSubscriberBuffer)
	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		var u types.Update
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- u:
		default:
			// Drop update if channel is full to avoid blocking the NATS client.
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Close closes the connection.
func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
