// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"strings"
	"time"
)

// MaxHistory bounds the per-tab rolling event log.
const MaxHistory = 100

// Recognised Abrantes event names.
const (
	EventAssignVariant = "abrantes:assignVariant"
	EventRenderVariant = "abrantes:renderVariant"
	EventPersist       = "abrantes:persist"
	EventTrack         = "abrantes:track"
	EventFormTrack     = "abrantes:formTrack"
)

// ErrMissingEventName is returned for records without an event name.
var ErrMissingEventName = errors.New("missing eventName")

// EventNames returns the closed set of recognised event names in display order.
func EventNames() []string {
	return []string{
		EventAssignVariant,
		EventRenderVariant,
		EventPersist,
		EventTrack,
		EventFormTrack,
	}
}

// IsRecognized reports whether name belongs to the recognised set.
func IsRecognized(name string) bool {
	switch name {
	case EventAssignVariant, EventRenderVariant, EventPersist, EventTrack, EventFormTrack:
		return true
	}
	return false
}

// EventRecord is the normalised form of one observed custom DOM event.
// Records are immutable once built; Detail is never mutated after capture.
type EventRecord struct {
	EventName string `json:"eventName"`
	Timestamp int64  `json:"timestamp"` // epoch millis
	Href      string `json:"href"`
	Detail    any    `json:"detail"`
}

// Validate performs the shape check applied before a record is aggregated.
func (r EventRecord) Validate() error {
	if strings.TrimSpace(r.EventName) == "" {
		return ErrMissingEventName
	}
	return nil
}

// Time returns the record timestamp as a time.Time.
func (r EventRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// EventSummary holds the lifetime counter and most recent record for one event name.
type EventSummary struct {
	Count int          `json:"count"`
	Last  *EventRecord `json:"last"`
}

// TabState is the aggregated view of everything seen on one tab.
type TabState struct {
	Events  map[string]EventSummary `json:"events"`
	History []EventRecord           `json:"history"`
}

// EmptyTabState returns a state with every recognised event zeroed and no history.
func EmptyTabState() TabState {
	events := make(map[string]EventSummary, len(EventNames()))
	for _, name := range EventNames() {
		events[name] = EventSummary{}
	}
	return TabState{Events: events, History: []EventRecord{}}
}

// Normalize fills in missing recognised events, replaces a nil history and
// trims history to maxHistory. It returns a value safe to mutate.
func (s TabState) Normalize(maxHistory int) TabState {
	out := s.Clone()
	if out.Events == nil {
		out.Events = make(map[string]EventSummary, len(EventNames()))
	}
	for _, name := range EventNames() {
		if _, ok := out.Events[name]; !ok {
			out.Events[name] = EventSummary{}
		}
	}
	if out.History == nil {
		out.History = []EventRecord{}
	}
	out.History = TrimHistory(out.History, maxHistory)
	return out
}

// Clone copies the maps and slices of the state. Records are shared since
// they are immutable.
func (s TabState) Clone() TabState {
	var out TabState
	if s.Events != nil {
		out.Events = make(map[string]EventSummary, len(s.Events))
		for k, v := range s.Events {
			out.Events[k] = v
		}
	}
	if s.History != nil {
		out.History = make([]EventRecord, len(s.History))
		copy(out.History, s.History)
	}
	return out
}

// Apply folds one record into the state: increments the counter, replaces
// the last record, appends to history and evicts the oldest entries beyond
// maxHistory. Counters are not affected by eviction.
func (s *TabState) Apply(rec EventRecord, maxHistory int) {
	if s.Events == nil {
		s.Events = EmptyTabState().Events
	}
	summary := s.Events[rec.EventName]
	summary.Count++
	last := rec
	summary.Last = &last
	s.Events[rec.EventName] = summary

	s.History = TrimHistory(append(s.History, rec), maxHistory)
}

// Total returns the sum of all event counters.
func (s TabState) Total() int {
	total := 0
	for _, e := range s.Events {
		total += e.Count
	}
	return total
}

// TrimHistory keeps the newest max entries of history, oldest first.
// A non-positive max falls back to MaxHistory.
func TrimHistory(history []EventRecord, max int) []EventRecord {
	if max <= 0 {
		max = MaxHistory
	}
	if len(history) <= max {
		return history
	}
	out := make([]EventRecord, max)
	copy(out, history[len(history)-max:])
	return out
}

// Envelope carries a captured record together with the tab that sent it.
type Envelope struct {
	TabID    int
	Record   EventRecord
	Received time.Time
}
