// Package popup implements the inspector query client: it tracks the
// displayed tab, re-reads its state on activation and on every matching
// push, and hands the result to a Renderer.
package popup

import (
	"context"
	"sync"

	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

// Requester is the request/response side of the relay.
type Requester interface {
	GetTabState(ctx context.Context, tabID int) (types.Response, error)
	ClearTabState(ctx context.Context, tabID int) (types.Response, error)
}

// Renderer displays the state of a tab.
type Renderer interface {
	Render(tabID int, state model.TabState) error
}

// QueryClient keeps one tab on display.
type QueryClient struct {
	requester  Requester
	renderer   Renderer
	maxHistory int
	logger     logger.Logger

	mu     sync.Mutex
	tabID  int
	hasTab bool
	state  model.TabState
}

// New creates a query client.
func New(requester Requester, renderer Renderer, opts ...Option) *QueryClient {
	q := &QueryClient{
		requester:  requester,
		renderer:   renderer,
		maxHistory: model.MaxHistory,
		state:      model.EmptyTabState(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Activate switches the display to tabID and renders its state.
func (q *QueryClient) Activate(ctx context.Context, tabID int) error {
	q.mu.Lock()
	q.tabID, q.hasTab = tabID, true
	q.mu.Unlock()
	return q.Refresh(ctx)
}

// TabID returns the displayed tab.
func (q *QueryClient) TabID() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tabID, q.hasTab
}

// State returns the last rendered state.
func (q *QueryClient) State() model.TabState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.Clone()
}

// Refresh requests the displayed tab's state and renders it. Any failure,
// including an ok:false reply, renders the empty default.
func (q *QueryClient) Refresh(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	state := model.EmptyTabState()
	if q.hasTab {
		resp, err := q.requester.GetTabState(ctx, q.tabID)
		switch {
		case err != nil:
			q.debug(ctx, "get_tab_state failed", logger.Error(err))
		case !resp.OK:
			q.debug(ctx, "get_tab_state rejected", logger.String("reason", resp.Error))
		case resp.State != nil:
			state = resp.State.Normalize(q.maxHistory)
		}
	}
	q.state = state
	return q.renderer.Render(q.tabID, state)
}

// HandleUpdate refreshes when u concerns the displayed tab. Updates for
// other tabs are ignored; updates without a tab always refresh.
func (q *QueryClient) HandleUpdate(ctx context.Context, u types.Update) (bool, error) {
	if u.Type != "" && u.Type != types.MessageEventUpdate {
		return false, nil
	}
	q.mu.Lock()
	skip := q.hasTab && u.TabID != 0 && u.TabID != q.tabID
	q.mu.Unlock()
	if skip {
		return false, nil
	}
	return true, q.Refresh(ctx)
}

// Clear clears the displayed tab and re-renders.
func (q *QueryClient) Clear(ctx context.Context) error {
	q.mu.Lock()
	tabID, ok := q.tabID, q.hasTab
	q.mu.Unlock()
	if !ok {
		return nil
	}
	if resp, err := q.requester.ClearTabState(ctx, tabID); err != nil {
		q.debug(ctx, "clear_tab_state failed", logger.Error(err))
	} else if !resp.OK {
		q.debug(ctx, "clear_tab_state rejected", logger.String("reason", resp.Error))
	}
	return q.Refresh(ctx)
}

// Follow handles updates until ctx is done or the channel closes.
func (q *QueryClient) Follow(ctx context.Context, updates <-chan types.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if _, err := q.HandleUpdate(ctx, u); err != nil {
				return err
			}
		}
	}
}

func (q *QueryClient) debug(ctx context.Context, msg string, fields ...logger.Field) {
	if q.logger == nil {
		return
	}
	q.logger.Debug(ctx, msg, append(fields, logger.TabID(q.tabID))...)
}
