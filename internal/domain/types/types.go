// Package types contains the relay protocol shared by capture, aggregator and inspector.
package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/okian/abrantes/internal/domain/model"
)

// Message types understood by the aggregator.
const (
	MessageAbrantesEvent = "abrantes_event"
	MessageGetTabState   = "get_tab_state"
	MessageClearTabState = "clear_tab_state"
	MessageEventUpdate   = "abrantes_event_update"
)

// ErrMissingTabID is the error text returned for requests without a numeric tabId.
const ErrMissingTabID = "Missing tabId"

// Message is the envelope sent over the relay. TabID and Payload stay raw so
// the router can apply its own shape checks.
type Message struct {
	Type    string          `json:"type"`
	TabID   json.RawMessage `json:"tabId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewTabMessage builds a request message addressed to tabID.
func NewTabMessage(msgType string, tabID int) Message {
	raw, _ := json.Marshal(tabID)
	return Message{Type: msgType, TabID: raw}
}

// NewEventMessage builds the capture notification for rec.
func NewEventMessage(rec model.EventRecord) (Message, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageAbrantesEvent, Payload: payload}, nil
}

// TabIDValue returns the tab identifier when it is a JSON number holding an integer.
func (m Message) TabIDValue() (int, bool) {
	return ParseTabID(m.TabID)
}

// MaxTabID is the largest tab identifier accepted on any surface. It is the
// largest integer a JSON number carries exactly.
const MaxTabID = 1<<53 - 1

// ParseTabID accepts integral JSON numbers only; strings, null and fractions are rejected.
func ParseTabID(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if id, ok := ParseTabIDString(n.String()); ok {
		return id, true
	}
	f, err := n.Float64()
	if err != nil || math.Trunc(f) != f || math.Abs(f) > MaxTabID {
		return 0, false
	}
	return inRange(int64(f))
}

// ParseTabIDString reads a decimal tab identifier from a header, path or
// query value. It applies the same range as ParseTabID.
func ParseTabIDString(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return inRange(id)
}

func inRange(id int64) (int, bool) {
	if id > MaxTabID || id < -MaxTabID || int64(int(id)) != id {
		return 0, false
	}
	return int(id), true
}

// Sender identifies the context a message came from. Capture messages are
// attributed by the transport, never by the payload.
type Sender struct {
	TabID  int
	HasTab bool
}

// SenderTab returns a Sender attributed to tabID.
func SenderTab(tabID int) Sender {
	return Sender{TabID: tabID, HasTab: true}
}

// Response answers get_tab_state and clear_tab_state requests.
type Response struct {
	OK    bool            `json:"ok"`
	State *model.TabState `json:"state,omitempty"`
	Error string          `json:"error,omitempty"`
}

// OKResponse returns a successful response, with state when provided.
func OKResponse(state *model.TabState) Response {
	return Response{OK: true, State: state}
}

// ErrorResponse returns a failed response carrying msg.
func ErrorResponse(msg string) Response {
	return Response{OK: false, Error: msg}
}

// Update is the push notification broadcast after every state change.
type Update struct {
	Type  string         `json:"type"`
	TabID int            `json:"tabId"`
	State model.TabState `json:"state"`
}

// NewUpdate builds an abrantes_event_update for tabID.
func NewUpdate(tabID int, state model.TabState) Update {
	return Update{Type: MessageEventUpdate, TabID: tabID, State: state}
}
