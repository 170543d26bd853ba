package model

import "time"

// RawObservation is one roster entry as captured by the snapshot collector,
// before identity resolution.
type RawObservation struct {
	Label       string    // rendered display label
	StatusHint  string    // provider status hint (e.g. "online"), may be empty
	PositionKey string    // per-item ordinal key in the virtualized list, may be empty
	StableID    string    // platform-provided identifier (e.g. email), may be empty
	CapturedAt  time.Time
}

// Key returns the attribute used to deduplicate entries within one scan.
// The ordinal key wins when the provider exposes one.
func (o RawObservation) Key() string {
	if o.PositionKey != "" {
		return "pos:" + o.PositionKey
	}
	return "label:" + o.Label
}

// NormalizedObservation is an observation that resolved to a stable identity.
type NormalizedObservation struct {
	Identity    string
	DisplayName string
	StatusHint  string
	ObservedAt  time.Time
}
