// Package identity maps captured roster labels to stable identity keys.
//
// Normalization folds cosmetic variation (case, diacritics, punctuation,
// internal whitespace) so that repeated renderings of the same participant
// correlate across cycles. Distinct people whose labels normalize to the same
// string are merged into one identity; prefer a platform stable identifier
// when the provider can supply one.
package identity

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/rollcall/internal/model"
)

const (
	namePrefix = "name:"
	idPrefix   = "id:"
)

// Normalize lowercases the label, strips diacritics, removes characters that
// are not letters, digits or whitespace, collapses whitespace runs and trims.
// It reports false when nothing usable remains.
func Normalize(label string) (string, bool) {
	if label == "" {
		return "", false
	}
	folded := foldMarks(label)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(unicode.ToLower(r))
		}
	}
	out := b.String()
	return out, out != ""
}

// foldMarks decomposes to NFD and drops combining marks, so "ö" becomes "o".
func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Resolver derives identities from raw observations.
//
// With stable ids preferred, the Resolver binds each normalized label to the
// first identity it resolved to. Virtualized rows do not always render the
// stable id, so a bare label that was once seen with an id keeps resolving to
// that id for the rest of the session, and an id that first appears on a label
// already known by name keeps the name identity.
type Resolver struct {
	preferStableID bool

	mu      sync.Mutex
	byLabel map[string]string
	byID    map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStableIDPreference controls whether a non-empty StableID takes
// precedence over the normalized label. Default: true.
func WithStableIDPreference(prefer bool) Option {
	return func(r *Resolver) { r.preferStableID = prefer }
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		preferStableID: true,
		byLabel:        make(map[string]string),
		byID:           make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identity returns the identity key for an observation, or false when the
// observation cannot be resolved.
func (r *Resolver) Identity(obs model.RawObservation) (string, bool) {
	name, named := Normalize(obs.Label)
	if !r.preferStableID {
		if !named {
			return "", false
		}
		return namePrefix + name, true
	}

	id := strings.ToLower(strings.TrimSpace(obs.StableID))

	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if key, ok := r.byID[id]; ok {
			return key, true
		}
		key := idPrefix + id
		if named {
			if bound, ok := r.byLabel[name]; ok && strings.HasPrefix(bound, namePrefix) {
				key = bound
			} else if !ok {
				r.byLabel[name] = key
			}
		}
		r.byID[id] = key
		return key, true
	}

	if !named {
		return "", false
	}
	if key, ok := r.byLabel[name]; ok {
		return key, true
	}
	key := namePrefix + name
	r.byLabel[name] = key
	return key, true
}

// Resolve converts a raw observation into a normalized one.
func (r *Resolver) Resolve(obs model.RawObservation) (model.NormalizedObservation, bool) {
	id, ok := r.Identity(obs)
	if !ok {
		return model.NormalizedObservation{}, false
	}
	return model.NormalizedObservation{
		Identity:    id,
		DisplayName: strings.TrimSpace(obs.Label),
		StatusHint:  obs.StatusHint,
		ObservedAt:  obs.CapturedAt,
	}, true
}

// ResolveAll resolves a snapshot, keeping the first observation per identity.
// The second return value counts observations that could not be resolved.
func (r *Resolver) ResolveAll(raws []model.RawObservation) ([]model.NormalizedObservation, int) {
	out := make([]model.NormalizedObservation, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	dropped := 0
	for _, raw := range raws {
		obs, ok := r.Resolve(raw)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[obs.Identity]; dup {
			continue
		}
		seen[obs.Identity] = struct{}{}
		out = append(out, obs)
	}
	return out, dropped
}
