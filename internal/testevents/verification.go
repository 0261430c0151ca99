package testevents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/pkg/logger"
)

// ErrMismatch is returned when a tab's aggregated state differs from the plan.
var ErrMismatch = errors.New("state mismatch")

// waitAndVerify polls every tab until its state matches the plan or the
// wait times out, then reports the tabs that never converged.
func waitAndVerify(ctx context.Context, config *Config, plan *Plan, stats *Stats) error {
	c := newClient(config)
	deadline := time.Now().Add(config.WaitTimeout)
	pending := sortedTabs(plan)
	lastErr := map[int]error{}

	for len(pending) > 0 {
		var next []int
		for _, tabID := range pending {
			resp, err := c.GetTabState(ctx, tabID)
			switch {
			case err != nil:
				lastErr[tabID] = err
			case !resp.OK || resp.State == nil:
				lastErr[tabID] = fmt.Errorf("get_tab_state: %s", resp.Error)
			default:
				lastErr[tabID] = compareState(plan.Expected[tabID], *resp.State)
			}
			if lastErr[tabID] != nil {
				next = append(next, tabID)
				continue
			}
			stats.TabsVerified++
			if config.Verbose {
				logger.Get().Info(ctx, "tab verified", logger.TabID(tabID))
			}
		}
		pending = next
		if len(pending) == 0 || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PollInterval):
		}
	}

	stats.TabsMismatched = len(pending)
	if len(pending) == 0 {
		logger.Get().Info(ctx, "result verification completed", logger.Int("tabs", stats.TabsVerified))
		return nil
	}
	errs := make([]error, 0, len(pending))
	for _, tabID := range pending {
		errs = append(errs, fmt.Errorf("tab %d: %w", tabID, lastErr[tabID]))
	}
	return errors.Join(errs...)
}

// compareState checks counters, last records and the bounded history.
func compareState(want, got model.TabState) error {
	for _, name := range model.EventNames() {
		w, g := want.Events[name], got.Events[name]
		if w.Count != g.Count {
			return fmt.Errorf("%w: %s count %d, want %d", ErrMismatch, name, g.Count, w.Count)
		}
		if (w.Last == nil) != (g.Last == nil) {
			return fmt.Errorf("%w: %s last presence differs", ErrMismatch, name)
		}
		if w.Last != nil && w.Last.Timestamp != g.Last.Timestamp {
			return fmt.Errorf("%w: %s last at %d, want %d", ErrMismatch, name, g.Last.Timestamp, w.Last.Timestamp)
		}
	}
	if len(want.History) != len(got.History) {
		return fmt.Errorf("%w: history length %d, want %d", ErrMismatch, len(got.History), len(want.History))
	}
	for i := range want.History {
		w, g := want.History[i], got.History[i]
		if w.EventName != g.EventName || w.Timestamp != g.Timestamp {
			return fmt.Errorf("%w: history[%d] is %s@%d, want %s@%d",
				ErrMismatch, i, g.EventName, g.Timestamp, w.EventName, w.Timestamp)
		}
	}
	return nil
}
