package model

import "time"

// PresenceRecord is the per-identity state held by the reconciler while the
// identity is considered joined.
type PresenceRecord struct {
	Identity    string
	DisplayName string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	IsPresent   bool
}
