package testevents

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/okian/abrantes/internal/client"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

func newClient(config *Config) *client.Client {
	return client.New(config.BaseURL,
		client.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
		client.WithNotifyTimeout(config.Timeout),
		client.WithNotifyQueue(config.Tabs*config.EventsPerTab+1),
	)
}

// sortedTabs returns the tab ids of plan in ascending order.
func sortedTabs(plan *Plan) []int {
	tabs := make([]int, 0, len(plan.ByTab))
	for id := range plan.ByTab {
		tabs = append(tabs, id)
	}
	sort.Ints(tabs)
	return tabs
}

// clearTabs resets every simulated tab so runs are repeatable.
func clearTabs(ctx context.Context, config *Config, plan *Plan) error {
	c := newClient(config)
	for _, tabID := range sortedTabs(plan) {
		resp, err := c.ClearTabState(ctx, tabID)
		if err != nil {
			return fmt.Errorf("clearing tab %d: %w", tabID, err)
		}
		if !resp.OK {
			return fmt.Errorf("clearing tab %d: %s", tabID, resp.Error)
		}
	}
	return nil
}

// submitEvents sends captures concurrently. Each worker owns whole tabs so
// per-tab order is preserved on the wire.
func submitEvents(ctx context.Context, config *Config, plan *Plan, stats *Stats) error {
	logger.Get().Info(ctx, "submitting events",
		logger.Int("events", len(plan.Events)),
		logger.Int("workers", config.Workers))

	var (
		submitted int64
		dropped   int64
	)

	tabChan := make(chan int, config.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient(config)
			for tabID := range tabChan {
				for _, ev := range plan.ByTab[tabID] {
					if ctx.Err() != nil {
						break
					}
					msg, err := types.NewEventMessage(ev.Record)
					if err != nil {
						atomic.AddInt64(&dropped, 1)
						continue
					}
					c.Notify(ctx, tabID, msg)
					atomic.AddInt64(&submitted, 1)
				}
			}
			_ = c.Close()
			atomic.AddInt64(&dropped, c.Dropped())
		}()
	}

	go func() {
		defer close(tabChan)
		for _, tabID := range sortedTabs(plan) {
			select {
			case <-ctx.Done():
				return
			case tabChan <- tabID:
			}
		}
	}()

	wg.Wait()

	stats.EventsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.EventsDropped = int(atomic.LoadInt64(&dropped))

	logger.Get().Info(ctx, "event submission completed",
		logger.Int("submitted", stats.EventsSubmitted),
		logger.Int("dropped", stats.EventsDropped))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submission interrupted: %w", err)
	}
	return nil
}
