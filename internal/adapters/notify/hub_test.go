package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/abrantes/internal/domain/model"
	"github.com/okian/abrantes/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func recv(ch <-chan types.Update) (types.Update, bool) {
	select {
	case u, ok := <-ch:
		return u, ok
	case <-time.After(time.Second):
		return types.Update{}, false
	}
}

func TestHub(t *testing.T) {
	Convey("Given a hub with one subscriber per tab and one for all tabs", t, func() {
		ctx := context.Background()
		hub := NewHub(WithSubscriberBuffer(2))
		defer func() { _ = hub.Close() }()

		tab7, cancel7 := hub.Subscribe(ForTab(7))
		defer cancel7()
		all, cancelAll := hub.Subscribe(AllTabs())
		defer cancelAll()

		So(hub.Subscribers(), ShouldEqual, 2)

		Convey("When an update for tab 7 is published", func() {
			So(hub.Publish(ctx, types.NewUpdate(7, model.EmptyTabState())), ShouldBeNil)

			Convey("Then both subscribers receive it", func() {
				u, ok := recv(tab7)
				So(ok, ShouldBeTrue)
				So(u.TabID, ShouldEqual, 7)
				u, ok = recv(all)
				So(ok, ShouldBeTrue)
				So(u.Type, ShouldEqual, types.MessageEventUpdate)
			})
		})

		Convey("When an update for another tab is published", func() {
			So(hub.Publish(ctx, types.NewUpdate(8, model.EmptyTabState())), ShouldBeNil)

			Convey("Then only the all-tabs subscriber receives it", func() {
				u, ok := recv(all)
				So(ok, ShouldBeTrue)
				So(u.TabID, ShouldEqual, 8)
				So(len(tab7), ShouldEqual, 0)
			})
		})

		Convey("When a subscriber falls behind", func() {
			for i := 0; i < 5; i++ {
				So(hub.Publish(ctx, types.NewUpdate(7, model.EmptyTabState())), ShouldBeNil)
			}

			Convey("Then extra updates are dropped without blocking", func() {
				So(len(tab7), ShouldEqual, 2)
			})
		})

		Convey("When a subscriber cancels twice", func() {
			cancel7()
			cancel7()

			Convey("Then its channel is closed and it is removed", func() {
				_, ok := <-tab7
				So(ok, ShouldBeFalse)
				So(hub.Subscribers(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a closed hub", t, func() {
		hub := NewHub()
		ch, cancel := hub.Subscribe(AllTabs())
		So(hub.Close(), ShouldBeNil)

		Convey("Then subscriber channels are closed and publishing fails", func() {
			_, ok := <-ch
			So(ok, ShouldBeFalse)
			cancel()
			So(errors.Is(hub.Publish(context.Background(), types.Update{}), ErrClosed), ShouldBeTrue)

			late, _ := hub.Subscribe(AllTabs())
			_, ok = <-late
			So(ok, ShouldBeFalse)
		})
	})
}

type recordingPublisher struct {
	got    []types.Update
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(ctx context.Context, u types.Update) error {
	r.got = append(r.got, u)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestFanout(t *testing.T) {
	Convey("Given a fanout over two publishers where one fails", t, func() {
		ok := &recordingPublisher{}
		bad := &recordingPublisher{err: errors.New("down")}
		f := Fanout{ok, nil, bad}

		err := f.Publish(context.Background(), types.NewUpdate(1, model.EmptyTabState()))

		Convey("Then every publisher is tried and the failure is reported", func() {
			So(err, ShouldNotBeNil)
			So(len(ok.got), ShouldEqual, 1)
			So(len(bad.got), ShouldEqual, 1)
		})

		Convey("Then close reaches every publisher", func() {
			So(f.Close(), ShouldNotBeNil)
			So(ok.closed, ShouldBeTrue)
			So(bad.closed, ShouldBeTrue)
		})
	})

	Convey("Noop accepts everything", t, func() {
		var p Publisher = Noop{}
		So(p.Publish(context.Background(), types.Update{}), ShouldBeNil)
		So(p.Close(), ShouldBeNil)
	})
}
