package rollcall

import "time"

type options struct {
	eventID          string
	absenceThreshold time.Duration
	preferStableID   bool
}

// Option configures a Tracker.
type Option func(*options)

// WithEventID sets the session identifier stamped on every event.
// Default: "default_event".
func WithEventID(id string) Option {
	return func(o *options) {
		o.eventID = id
	}
}

// WithAbsenceThreshold sets how long an identity may go unseen before a
// leave is emitted. Default: 15s.
func WithAbsenceThreshold(d time.Duration) Option {
	return func(o *options) {
		o.absenceThreshold = d
	}
}

// WithStableIDPreference controls whether Entry.StableID, when set, is used
// as the identity instead of the normalized label. Default: true.
func WithStableIDPreference(prefer bool) Option {
	return func(o *options) {
		o.preferStableID = prefer
	}
}

func defaultOptions() options {
	return options{
		eventID:          "default_event",
		absenceThreshold: 15 * time.Second,
		preferStableID:   true,
	}
}
