package popup_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/internal/popup"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRequester struct {
	mu      sync.Mutex
	states  map[int]model.TabState
	gets    []int
	clears  []int
	failGet error
	reject  bool
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{states: map[int]model.TabState{}}
}

func (f *fakeRequester) GetTabState(ctx context.Context, tabID int) (types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, tabID)
	if f.failGet != nil {
		return types.Response{}, f.failGet
	}
	if f.reject {
		return types.ErrorResponse("storage unavailable"), nil
	}
	state, ok := f.states[tabID]
	if !ok {
		state = model.EmptyTabState()
	}
	return types.OKResponse(&state), nil
}

func (f *fakeRequester) ClearTabState(ctx context.Context, tabID int) (types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears = append(f.clears, tabID)
	delete(f.states, tabID)
	return types.OKResponse(nil), nil
}

func (f *fakeRequester) record(tabID int, rec model.EventRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[tabID]
	if !ok {
		state = model.EmptyTabState()
	}
	state.Apply(rec, model.MaxHistory)
	f.states[tabID] = state
}

func (f *fakeRequester) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

type recordingRenderer struct {
	mu      sync.Mutex
	renders []model.TabState
}

func (r *recordingRenderer) Render(tabID int, state model.TabState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, state)
	return nil
}

func (r *recordingRenderer) last() model.TabState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders[len(r.renders)-1]
}

func (r *recordingRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

func TestQueryClient(t *testing.T) {
	Convey("Given a query client", t, func() {
		req := newFakeRequester()
		ren := &recordingRenderer{}
		q := popup.New(req, ren)
		ctx := context.Background()

		Convey("Activation renders the tab's state", func() {
			req.record(7, model.EventRecord{EventName: model.EventTrack, Timestamp: 1})
			So(q.Activate(ctx, 7), ShouldBeNil)
			So(ren.count(), ShouldEqual, 1)
			So(ren.last().Events[model.EventTrack].Count, ShouldEqual, 1)
			id, ok := q.TabID()
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 7)
		})

		Convey("A failed request renders the empty default", func() {
			req.failGet = errors.New("relay down")
			So(q.Activate(ctx, 7), ShouldBeNil)
			So(ren.last().Total(), ShouldEqual, 0)
			So(ren.last().Events, ShouldContainKey, model.EventFormTrack)
		})

		Convey("An ok:false reply renders the empty default", func() {
			req.record(7, model.EventRecord{EventName: model.EventTrack, Timestamp: 1})
			req.reject = true
			So(q.Activate(ctx, 7), ShouldBeNil)
			So(ren.last().Total(), ShouldEqual, 0)
		})

		Convey("Updates", func() {
			So(q.Activate(ctx, 7), ShouldBeNil)

			Convey("for another tab are ignored", func() {
				handled, err := q.HandleUpdate(ctx, types.NewUpdate(8, model.EmptyTabState()))
				So(err, ShouldBeNil)
				So(handled, ShouldBeFalse)
				So(ren.count(), ShouldEqual, 1)
			})

			Convey("for the displayed tab trigger a re-read", func() {
				req.record(7, model.EventRecord{EventName: model.EventPersist, Timestamp: 2})
				handled, err := q.HandleUpdate(ctx, types.NewUpdate(7, model.EmptyTabState()))
				So(err, ShouldBeNil)
				So(handled, ShouldBeTrue)
				So(ren.last().Events[model.EventPersist].Count, ShouldEqual, 1)
				So(req.getCount(), ShouldEqual, 2)
			})

			Convey("without a tab trigger a re-read", func() {
				handled, err := q.HandleUpdate(ctx, types.Update{Type: types.MessageEventUpdate})
				So(err, ShouldBeNil)
				So(handled, ShouldBeTrue)
			})

			Convey("of another type are ignored", func() {
				handled, _ := q.HandleUpdate(ctx, types.Update{Type: "other", TabID: 7})
				So(handled, ShouldBeFalse)
			})
		})

		Convey("Clear is followed by a re-render", func() {
			req.record(7, model.EventRecord{EventName: model.EventTrack, Timestamp: 1})
			So(q.Activate(ctx, 7), ShouldBeNil)
			So(q.Clear(ctx), ShouldBeNil)
			So(req.clears, ShouldResemble, []int{7})
			So(ren.count(), ShouldEqual, 2)
			So(q.State().Total(), ShouldEqual, 0)
		})

		Convey("Clear without a tab does nothing", func() {
			So(q.Clear(ctx), ShouldBeNil)
			So(req.clears, ShouldBeEmpty)
		})

		Convey("Follow refreshes until the channel closes", func() {
			So(q.Activate(ctx, 3), ShouldBeNil)
			updates := make(chan types.Update, 3)
			updates <- types.NewUpdate(3, model.EmptyTabState())
			updates <- types.NewUpdate(4, model.EmptyTabState())
			updates <- types.NewUpdate(3, model.EmptyTabState())
			close(updates)
			So(q.Follow(ctx, updates), ShouldBeNil)
			So(ren.count(), ShouldEqual, 3)
		})

		Convey("Follow stops with the context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(q.Follow(cctx, make(chan types.Update)), ShouldEqual, context.Canceled)
		})
	})
}

func TestTextRenderer(t *testing.T) {
	Convey("Given a text renderer", t, func() {
		var buf bytes.Buffer
		r := popup.NewTextRenderer(&buf, popup.WithLocation(time.UTC))

		Convey("An empty tab shows the idle status", func() {
			So(r.Render(7, model.EmptyTabState()), ShouldBeNil)
			out := buf.String()
			So(out, ShouldStartWith, "Tab 7\nNo Abrantes events seen on this tab yet.\n")
			So(out, ShouldContainSubstring, "Count: 0")
			So(out, ShouldContainSubstring, "No data yet.")
			So(out, ShouldContainSubstring, "History (0 of 0, newest first)")
		})

		Convey("A busy tab shows counts, times and newest history first", func() {
			state := model.EmptyTabState()
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
			for i := 0; i < 25; i++ {
				state.Apply(model.EventRecord{
					EventName: model.EventTrack,
					Timestamp: base + int64(i)*1000,
					Href:      "https://shop.test/cart",
					Detail:    map[string]any{"seq": i},
				}, model.MaxHistory)
			}
			So(r.Render(7, state), ShouldBeNil)
			out := buf.String()
			So(out, ShouldStartWith, "Tab 7 · shop.test\nSeen 25 Abrantes events on this tab.\n")
			So(out, ShouldContainSubstring, "✓ abrantes:track")
			So(out, ShouldContainSubstring, "Last: 12:00:24")
			So(out, ShouldContainSubstring, "History (20 of 25, newest first)")
			So(strings.Index(out, "\"seq\": 24"), ShouldBeLessThan, strings.Index(out, "\"seq\": 23"))
			So(out, ShouldNotContainSubstring, "\"seq\": 4\n")
		})

		Convey("The clear-screen option prefixes each render", func() {
			r := popup.NewTextRenderer(&buf, popup.WithClearScreen(true))
			So(r.Render(1, model.EmptyTabState()), ShouldBeNil)
			So(buf.String(), ShouldStartWith, "\x1b[H\x1b[2J")
		})
	})
}

func TestStatusLine(t *testing.T) {
	state := model.EmptyTabState()
	if got := popup.StatusLine(state); got != "No Abrantes events seen on this tab yet." {
		t.Fatalf("empty status = %q", got)
	}
	state.Apply(model.EventRecord{EventName: model.EventTrack, Timestamp: 1}, model.MaxHistory)
	if got := popup.StatusLine(state); got != "Seen 1 Abrantes event on this tab." {
		t.Fatalf("single status = %q", got)
	}
}

func TestNewest(t *testing.T) {
	history := []model.EventRecord{{Timestamp: 1}, {Timestamp: 2}, {Timestamp: 3}}
	got := popup.Newest(history, 2)
	if len(got) != 2 || got[0].Timestamp != 3 || got[1].Timestamp != 2 {
		t.Fatalf("Newest = %+v", got)
	}
	if len(popup.Newest(nil, 20)) != 0 {
		t.Fatal("expected empty result")
	}
}
