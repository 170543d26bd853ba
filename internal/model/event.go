package model

import "time"

// EventType is the kind of presence transition.
type EventType string

const (
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
)

// Event is a presence transition emitted by the reconciler. Events are
// append-only and never mutated after emission.
type Event struct {
	ID          string    // unique per emission, used by sinks for idempotent append
	Type        EventType
	Identity    string
	EventID     string    // monitored session
	DisplayName string    // raw label at join time; empty on leave
	Timestamp   time.Time
}
