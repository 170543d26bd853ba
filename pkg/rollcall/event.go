package rollcall

import (
	"time"

	"github.com/crimson-sun/rollcall/internal/model"
)

// Entry is one roster item seen in a snapshot.
type Entry struct {
	Label      string // display name as rendered
	StableID   string // platform identifier, optional
	StatusHint string // optional
}

// Event is a presence transition.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Event struct {
	ID          string    `json:"record_id"`
	Type        string    `json:"type"`        // "join" or "leave"
	AttendeeID  string    `json:"attendee_id"` // resolved identity
	EventID     string    `json:"event_id"`
	DisplayName string    `json:"display_name,omitempty"` // set on joins
	Timestamp   time.Time `json:"timestamp"`
}

func eventFromModel(e model.Event) Event {
	return Event{
		ID:          e.ID,
		Type:        string(e.Type),
		AttendeeID:  e.Identity,
		EventID:     e.EventID,
		DisplayName: e.DisplayName,
		Timestamp:   e.Timestamp,
	}
}
