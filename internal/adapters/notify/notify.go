// Package notify broadcasts tab state updates to interested parties.
//
// Delivery is at-most-once: a publisher never blocks the aggregator, and a
// slow or absent receiver simply misses updates.
package notify

import (
	"context"
	"errors"

	"github.com/okian/abrantes/internal/domain/types"
)

// Publisher delivers state updates.
type Publisher interface {
	Publish(ctx context.Context, u types.Update) error
	Close() error
}

// Filter selects which updates a subscriber receives.
type Filter struct {
	TabID  int
	HasTab bool
}

// AllTabs matches every update.
func AllTabs() Filter { return Filter{} }

// ForTab matches updates for tabID.
func ForTab(tabID int) Filter { return Filter{TabID: tabID, HasTab: true} }

// Match reports whether u passes the filter.
func (f Filter) Match(u types.Update) bool {
	return !f.HasTab || u.TabID == f.TabID
}

// Fanout publishes to several publishers, collecting every failure.
type Fanout []Publisher

// Publish sends u to every non-nil publisher.
func (f Fanout) Publish(ctx context.Context, u types.Update) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every non-nil publisher.
func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop is a Publisher that does nothing (used when no push transport is configured).
type Noop struct{}

func (Noop) Publish(ctx context.Context, u types.Update) error { return nil }

func (Noop) Close() error { return nil }
