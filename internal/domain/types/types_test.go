package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/abrantes/internal/domain/model"
	types "github.com/okian/abrantes/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseTabID(t *testing.T) {
	Convey("Given raw tab identifiers", t, func() {
		Convey("When the identifier is an integral number", func() {
			id, ok := types.ParseTabID(json.RawMessage(`7`))
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 7)

			id, ok = types.ParseTabID(json.RawMessage(` 12.0 `))
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 12)
		})

		Convey("When the identifier is beyond the 32-bit range", func() {
			id, ok := types.ParseTabID(json.RawMessage(`3000000000`))
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 3000000000)

			id, ok = types.ParseTabID(json.RawMessage(`3e9`))
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 3000000000)

			id, ok = types.ParseTabID(json.RawMessage(`9007199254740991`))
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, types.MaxTabID)
		})

		Convey("When the identifier exceeds the largest exact JSON integer", func() {
			for _, raw := range []string{`9007199254740992`, `1e300`, `-9007199254740992`} {
				_, ok := types.ParseTabID(json.RawMessage(raw))
				So(ok, ShouldBeFalse)
			}
		})

		Convey("When the identifier is missing or not a number", func() {
			for _, raw := range []string{``, `null`, `"7"`, `true`, `{}`, `1.5`, `not-json`, `7 8`} {
				_, ok := types.ParseTabID(json.RawMessage(raw))
				So(ok, ShouldBeFalse)
			}
		})
	})
}

func TestParseTabIDString(t *testing.T) {
	Convey("Given tab identifiers from headers and paths", t, func() {
		Convey("Decimal integers within range are accepted", func() {
			for raw, want := range map[string]int{"7": 7, " 42 ": 42, "3000000000": 3000000000, "9007199254740991": types.MaxTabID} {
				id, ok := types.ParseTabIDString(raw)
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, want)
			}
		})

		Convey("Anything else is rejected", func() {
			for _, raw := range []string{"", "abc", "1.5", "3e9", "9007199254740992", "99999999999999999999"} {
				_, ok := types.ParseTabIDString(raw)
				So(ok, ShouldBeFalse)
			}
		})

		Convey("Both forms agree on the same identifier", func() {
			fromHeader, ok := types.ParseTabIDString("3000000000")
			So(ok, ShouldBeTrue)
			fromBody, ok := types.ParseTabID(json.RawMessage(`3000000000`))
			So(ok, ShouldBeTrue)
			So(fromHeader, ShouldEqual, fromBody)
		})
	})
}

func TestMessageDecoding(t *testing.T) {
	Convey("Given a get_tab_state request from the popup", t, func() {
		var msg types.Message
		err := json.Unmarshal([]byte(`{"type":"get_tab_state","tabId":42}`), &msg)
		So(err, ShouldBeNil)

		Convey("Then the type and tab are recovered", func() {
			So(msg.Type, ShouldEqual, types.MessageGetTabState)
			id, ok := msg.TabIDValue()
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 42)
		})
	})

	Convey("Given a message built with NewTabMessage", t, func() {
		msg := types.NewTabMessage(types.MessageClearTabState, 3)
		data, err := json.Marshal(msg)
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, `{"type":"clear_tab_state","tabId":3}`)
	})

	Convey("Given a capture notification", t, func() {
		msg, err := types.NewEventMessage(model.EventRecord{EventName: model.EventTrack, Timestamp: 1, Href: "https://a.test/"})
		So(err, ShouldBeNil)

		Convey("Then the payload carries a null detail and no tab id", func() {
			So(msg.Type, ShouldEqual, types.MessageAbrantesEvent)
			So(string(msg.Payload), ShouldContainSubstring, `"detail":null`)
			_, ok := msg.TabIDValue()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestResponseEncoding(t *testing.T) {
	Convey("Given protocol responses", t, func() {
		Convey("A clear acknowledgement encodes as ok only", func() {
			data, _ := json.Marshal(types.OKResponse(nil))
			So(string(data), ShouldEqual, `{"ok":true}`)
		})

		Convey("An error response carries the error text", func() {
			data, _ := json.Marshal(types.ErrorResponse(types.ErrMissingTabID))
			So(string(data), ShouldEqual, `{"ok":false,"error":"Missing tabId"}`)
		})

		Convey("An update carries its type tag", func() {
			u := types.NewUpdate(9, model.EmptyTabState())
			So(u.Type, ShouldEqual, "abrantes_event_update")
			So(u.TabID, ShouldEqual, 9)
		})
	})
}
