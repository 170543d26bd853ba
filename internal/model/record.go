package model

import "time"

// TimestampLayout is ISO-8601 with millisecond precision, always UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Record is the wire shape written by sinks.
type Record struct {
	Type        string `json:"type"`
	AttendeeID  string `json:"attendee_id"`
	EventID     string `json:"event_id"`
	Timestamp   string `json:"timestamp"`
	RecordID    string `json:"record_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// ToRecord converts an event to its sink record.
func (e Event) ToRecord() Record {
	return Record{
		Type:        string(e.Type),
		AttendeeID:  e.Identity,
		EventID:     e.EventID,
		Timestamp:   e.Timestamp.UTC().Format(TimestampLayout),
		RecordID:    e.ID,
		DisplayName: e.DisplayName,
	}
}

// ParseTimestamp parses a record timestamp back into a time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
