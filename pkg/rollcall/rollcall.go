package rollcall

import (
	"fmt"
	"sync"
	"time"

	"github.com/crimson-sun/rollcall/internal/identity"
	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/presence"
)

// Tracker holds presence state for one session.
type Tracker struct {
	mu         sync.Mutex
	resolver   *identity.Resolver
	reconciler *presence.Reconciler
}

// New creates a Tracker.
func New(opts ...Option) (*Tracker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	rec, err := presence.New(presence.Config{EventID: o.eventID, AbsenceThreshold: o.absenceThreshold})
	if err != nil {
		return nil, fmt.Errorf("rollcall: %w", err)
	}
	return &Tracker{
		resolver:   identity.New(identity.WithStableIDPreference(o.preferStableID)),
		reconciler: rec,
	}, nil
}

// Observe applies one complete snapshot taken at at and returns the
// resulting events: joins in entry order, then leaves sorted by identity.
// Entries whose label normalizes to nothing are ignored.
func (t *Tracker) Observe(at time.Time, entries ...Entry) []Event {
	raws := make([]model.RawObservation, len(entries))
	for i, e := range entries {
		raws[i] = model.RawObservation{
			Label:      e.Label,
			StableID:   e.StableID,
			StatusHint: e.StatusHint,
			CapturedAt: at,
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obs, _ := t.resolver.ResolveAll(raws)
	events := t.reconciler.Reconcile(obs, at)
	return convert(events)
}

// Close emits a leave at at for everyone still present and resets the
// tracker.
func (t *Tracker) Close(at time.Time) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return convert(t.reconciler.Flush(at))
}

// Present returns the identities currently considered present, sorted.
func (t *Tracker) Present() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := t.reconciler.Present()
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Identity
	}
	return out
}

// Normalize folds a display label to its comparison form: diacritics
// stripped, lowercased, punctuation removed, whitespace collapsed. It
// returns false when nothing identifying remains.
func Normalize(label string) (string, bool) {
	return identity.Normalize(label)
}

func convert(events []model.Event) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = eventFromModel(e)
	}
	return out
}
