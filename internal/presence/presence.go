// Package presence turns per-cycle roster observations into a flicker-free
// stream of join and leave events.
//
// Each identity moves NOT_PRESENT -> PRESENT on its first observation and
// back to NOT_PRESENT once it has been continuously absent for longer than
// the absence threshold. Absences shorter than the threshold are absorbed.
// A Reconciler is owned by a single goroutine and is not safe for concurrent
// use.
package presence

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/rollcall/internal/model"
)

// Config controls reconciliation.
type Config struct {
	EventID          string        // monitored session id stamped on every event
	AbsenceThreshold time.Duration // continuous absence required before a leave
}

// Reconciler holds presence records for one monitored session.
type Reconciler struct {
	cfg     Config
	records map[string]*model.PresenceRecord
	newID   func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithIDFunc overrides the generator for Event.ID. Default: random UUIDs.
func WithIDFunc(f func() string) Option {
	return func(r *Reconciler) {
		if f != nil {
			r.newID = f
		}
	}
}

// New creates a Reconciler with no records.
func New(cfg Config, opts ...Option) (*Reconciler, error) {
	if cfg.AbsenceThreshold <= 0 {
		return nil, errors.New("presence: absence threshold must be positive")
	}
	if cfg.EventID == "" {
		return nil, errors.New("presence: event id is required")
	}
	r := &Reconciler{
		cfg:     cfg,
		records: make(map[string]*model.PresenceRecord),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile applies one cycle's observations taken at t and returns the
// events it produced: joins in observation order, then leaves sorted by
// identity.
func (r *Reconciler) Reconcile(observations []model.NormalizedObservation, t time.Time) []model.Event {
	var events []model.Event
	seen := make(map[string]struct{}, len(observations))

	for _, obs := range observations {
		if obs.Identity == "" {
			continue
		}
		seen[obs.Identity] = struct{}{}

		rec, ok := r.records[obs.Identity]
		if ok {
			if t.After(rec.LastSeenAt) {
				rec.LastSeenAt = t
			}
			continue
		}
		r.records[obs.Identity] = &model.PresenceRecord{
			Identity:    obs.Identity,
			DisplayName: obs.DisplayName,
			FirstSeenAt: t,
			LastSeenAt:  t,
			IsPresent:   true,
		}
		events = append(events, r.event(model.EventJoin, obs.Identity, obs.DisplayName, t))
	}

	var gone []string
	for id, rec := range r.records {
		if _, ok := seen[id]; ok {
			continue
		}
		if t.Sub(rec.LastSeenAt) > r.cfg.AbsenceThreshold {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		delete(r.records, id)
		events = append(events, r.event(model.EventLeave, id, "", t))
	}
	return events
}

// Flush emits a leave at t for every present identity and clears all state.
func (r *Reconciler) Flush(t time.Time) []model.Event {
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	events := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		delete(r.records, id)
		events = append(events, r.event(model.EventLeave, id, "", t))
	}
	return events
}

// Present returns a copy of the current records sorted by identity.
func (r *Reconciler) Present() []model.PresenceRecord {
	out := make([]model.PresenceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Len returns the number of identities currently considered present.
func (r *Reconciler) Len() int {
	return len(r.records)
}

// EventID returns the session id stamped on emitted events.
func (r *Reconciler) EventID() string {
	return r.cfg.EventID
}

func (r *Reconciler) event(typ model.EventType, identity, name string, t time.Time) model.Event {
	return model.Event{
		ID:          r.newID(),
		Type:        typ,
		Identity:    identity,
		EventID:     r.cfg.EventID,
		DisplayName: name,
		Timestamp:   t,
	}
}
