package model_test

import (
	"fmt"
	"testing"

	model "github.com/okian/abrantes/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func record(name string, i int) model.EventRecord {
	return model.EventRecord{
		EventName: name,
		Timestamp: int64(1_700_000_000_000 + i),
		Href:      "https://example.test/page",
		Detail:    map[string]any{"seq": float64(i)},
	}
}

func TestEmptyTabState(t *testing.T) {
	convey.Convey("Given an empty tab state", t, func() {
		state := model.EmptyTabState()

		convey.Convey("Then every recognised event is present and zeroed", func() {
			convey.So(len(state.Events), convey.ShouldEqual, 5)
			for _, name := range model.EventNames() {
				convey.So(state.Events[name].Count, convey.ShouldEqual, 0)
				convey.So(state.Events[name].Last, convey.ShouldBeNil)
			}
		})

		convey.Convey("And history is empty but not nil", func() {
			convey.So(state.History, convey.ShouldNotBeNil)
			convey.So(state.History, convey.ShouldBeEmpty)
		})
	})
}

func TestTabState_Apply(t *testing.T) {
	convey.Convey("Given a fresh tab state", t, func() {
		state := model.EmptyTabState()

		convey.Convey("When applying three track records", func() {
			for i := 1; i <= 3; i++ {
				state.Apply(record(model.EventTrack, i), model.MaxHistory)
			}

			convey.Convey("Then the counter and last record follow the calls", func() {
				convey.So(state.Events[model.EventTrack].Count, convey.ShouldEqual, 3)
				convey.So(state.Events[model.EventTrack].Last.Detail, convey.ShouldResemble, map[string]any{"seq": float64(3)})
				convey.So(state.History, convey.ShouldHaveLength, 3)
				convey.So(state.Total(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When applying more records than the history bound", func() {
			for i := 1; i <= 150; i++ {
				state.Apply(record(model.EventPersist, i), model.MaxHistory)
			}

			convey.Convey("Then history keeps the newest 100 in arrival order", func() {
				convey.So(state.History, convey.ShouldHaveLength, 100)
				convey.So(state.History[0].Timestamp, convey.ShouldEqual, record("", 51).Timestamp)
				convey.So(state.History[99].Timestamp, convey.ShouldEqual, record("", 150).Timestamp)
			})

			convey.Convey("And the counter is not reduced by eviction", func() {
				convey.So(state.Events[model.EventPersist].Count, convey.ShouldEqual, 150)
			})
		})

		convey.Convey("When applying an unrecognised event name", func() {
			state.Apply(record("abrantes:custom", 1), model.MaxHistory)

			convey.Convey("Then an entry is created for it", func() {
				convey.So(state.Events["abrantes:custom"].Count, convey.ShouldEqual, 1)
			})
		})
	})
}

func TestTabState_Normalize(t *testing.T) {
	convey.Convey("Given a partial state", t, func() {
		history := make([]model.EventRecord, 0, 120)
		for i := 0; i < 120; i++ {
			history = append(history, record(model.EventTrack, i))
		}
		state := model.TabState{History: history}

		convey.Convey("When normalising it", func() {
			out := state.Normalize(model.MaxHistory)

			convey.Convey("Then missing events are filled in and history is trimmed", func() {
				convey.So(len(out.Events), convey.ShouldEqual, 5)
				convey.So(out.History, convey.ShouldHaveLength, 100)
				convey.So(out.History[0].Timestamp, convey.ShouldEqual, history[20].Timestamp)
			})

			convey.Convey("And the original is left untouched", func() {
				convey.So(state.Events, convey.ShouldBeNil)
				convey.So(state.History, convey.ShouldHaveLength, 120)
			})
		})
	})
}

func TestEventRecord_Validate(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{model.EventTrack, false},
		{"", true},
		{"   ", true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("name=%q", tc.name), func(t *testing.T) {
			err := model.EventRecord{EventName: tc.name}.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestIsRecognized(t *testing.T) {
	for _, name := range model.EventNames() {
		if !model.IsRecognized(name) {
			t.Errorf("expected %s to be recognised", name)
		}
	}
	if model.IsRecognized("abrantes:unknown") {
		t.Error("unexpected recognised name")
	}
}
