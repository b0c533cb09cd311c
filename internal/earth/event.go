package earth

import (
	"cmp"
	"fmt"
	"slices"
)

// EventKind classifies a discrete geological occurrence. The numeric order is the tie-break
// order used when several events fire on the same plate in the same tick.
type EventKind int

const (
	Eruption EventKind = iota
	Spreading
	Subduction
	Earthquake
	ErosionPulse
)

var eventKindNames = [...]string{
	Eruption:     "eruption",
	Spreading:    "spreading",
	Subduction:   "subduction",
	Earthquake:   "earthquake",
	ErosionPulse: "erosion_pulse",
}

func (k EventKind) String() string {
	if k < Eruption || k > ErosionPulse {
		return fmt.Sprintf("event(%d)", int(k))
	}
	return eventKindNames[k]
}

func (k EventKind) MarshalText() ([]byte, error) {
	if k < Eruption || k > ErosionPulse {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	for i, name := range eventKindNames {
		if name == string(text) {
			*k = EventKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(text))
}

// EntityRef points at the plate, hotspot, boundary or layer an event affected.
type EntityRef struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

const (
	EntityPlate   = "plate"
	EntityHotspot = "hotspot"
	EntityLayer   = "layer"
)

// GeologicalEvent is an immutable record created by an engine during a tick.
type GeologicalEvent struct {
	Seq         uint64    `json:"seq"`
	Tick        uint64    `json:"tick"`
	TimestampMy float64   `json:"timestamp_my"`
	Kind        EventKind `json:"kind"`
	Magnitude   float64   `json:"magnitude"`
	Entity      EntityRef `json:"entity"`
	// PlateID orders events within a tick; -1 for events not tied to a plate.
	PlateID int `json:"plate_id"`
}

// sortEvents orders events by plate id ascending, then event kind, keeping insertion order
// for remaining ties.
func sortEvents(events []GeologicalEvent) {
	slices.SortStableFunc(events, func(a, b GeologicalEvent) int {
		if c := cmp.Compare(a.PlateID, b.PlateID); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
}

// EventLog is the append-only chronological record of a run.
type EventLog struct {
	events []GeologicalEvent
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{events: make([]GeologicalEvent, 0)}
}

// Append records events in the given order, assigning sequence numbers. The stored copies
// are returned.
func (l *EventLog) Append(events ...GeologicalEvent) []GeologicalEvent {
	start := len(l.events)
	for _, ev := range events {
		ev.Seq = uint64(len(l.events)) + 1
		l.events = append(l.events, ev)
	}
	return slices.Clone(l.events[start:])
}

// Len returns the number of recorded events.
func (l *EventLog) Len() int {
	return len(l.events)
}

// All returns a copy of every recorded event.
func (l *EventLog) All() []GeologicalEvent {
	return slices.Clone(l.events)
}

// Range returns the events with fromMy <= timestamp <= toMy in log order.
func (l *EventLog) Range(fromMy, toMy float64) []GeologicalEvent {
	out := make([]GeologicalEvent, 0)
	for _, ev := range l.events {
		if ev.TimestampMy >= fromMy && ev.TimestampMy <= toMy {
			out = append(out, ev)
		}
	}
	return out
}

// truncate drops every event past the first n. Only a rewind, which abandons the timeline
// after a checkpoint, may shorten the log.
func (l *EventLog) truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(l.events) {
		l.events = l.events[:n]
	}
}

func (l *EventLog) clone() *EventLog {
	return &EventLog{events: slices.Clone(l.events)}
}
