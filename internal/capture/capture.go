// Package capture observes Abrantes events and forwards them to the relay.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

// Sender is the notify side of the relay. It must not block.
type Sender interface {
	Notify(ctx context.Context, senderTab int, msg types.Message)
}

// Capturer turns observed events into records for one tab.
type Capturer struct {
	tabID  int
	sender Sender
	chain  []Strategy
	now    func() time.Time
	logger logger.Logger
}

// NewCapturer creates a capturer attributing events to tabID.
func NewCapturer(tabID int, sender Sender, opts ...Option) *Capturer {
	c := &Capturer{
		tabID:  tabID,
		sender: sender,
		chain:  DefaultChain(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TabID returns the tab events are attributed to.
func (c *Capturer) TabID() int {
	return c.tabID
}

// Capture records one event observed on href. Unrecognised names are
// ignored. It reports whether a record was handed to the sender.
func (c *Capturer) Capture(ctx context.Context, name, href string, detail any) bool {
	if !model.IsRecognized(name) {
		return false
	}
	return c.send(ctx, model.EventRecord{
		EventName: name,
		Timestamp: c.now().UnixMilli(),
		Href:      href,
		Detail:    Clone(detail, c.chain),
	})
}

// bindingPayload is what the page listener passes through the binding.
type bindingPayload struct {
	EventName string          `json:"eventName"`
	Timestamp int64           `json:"timestamp"`
	Href      string          `json:"href"`
	Detail    json.RawMessage `json:"detail"`
}

// HandleBinding forwards a record reported by the in-page listener.
func (c *Capturer) HandleBinding(ctx context.Context, payload string) error {
	var p bindingPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("decoding binding payload: %w", err)
	}
	if !model.IsRecognized(p.EventName) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, p.EventName)
	}
	var detail any
	if len(p.Detail) > 0 {
		if err := json.Unmarshal(p.Detail, &detail); err != nil {
			detail = string(p.Detail)
		}
	}
	ts := p.Timestamp
	if ts <= 0 {
		ts = c.now().UnixMilli()
	}
	c.send(ctx, model.EventRecord{EventName: p.EventName, Timestamp: ts, Href: p.Href, Detail: detail})
	return nil
}

func (c *Capturer) send(ctx context.Context, rec model.EventRecord) bool {
	msg, err := types.NewEventMessage(rec)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug(ctx, "capture dropped", logger.TabID(c.tabID), logger.Error(err))
		}
		return false
	}
	c.sender.Notify(ctx, c.tabID, msg)
	return true
}
