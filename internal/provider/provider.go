package provider

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the roster container or its host page could
// not be located. Collectors treat it as an empty observation, not a failure.
var ErrUnavailable = errors.New("provider: roster container unavailable")

// Entry is one rendered roster item.
type Entry struct {
	Key        string `json:"key"`       // per-item ordinal key, may be empty
	Label      string `json:"label"`     // display label
	StatusHint string `json:"status"`    // e.g. "online", may be empty
	StableID   string `json:"stable_id"` // platform identifier, may be empty
}

// Extent describes the scrollable geometry of the roster container.
type Extent struct {
	ScrollHeight int `json:"scroll_height"` // full logical height
	ClientHeight int `json:"client_height"` // visible viewport height
}

// MaxOffset returns the largest meaningful scroll offset.
func (e Extent) MaxOffset() int {
	if d := e.ScrollHeight - e.ClientHeight; d > 0 {
		return d
	}
	return 0
}

// Provider is the UI automation collaborator that exposes a virtualized
// roster list.
type Provider interface {
	// ListVisible returns the entries currently materialized in the container.
	ListVisible(ctx context.Context) ([]Entry, error)

	// ScrollTo positions the container's scroll offset.
	ScrollTo(ctx context.Context, offset int) error

	// Extent returns the container geometry.
	Extent(ctx context.Context) (Extent, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Config holds provider-specific connection settings.
type Config struct {
	Name     string
	Endpoint string
	Token    string
	Extra    map[string]string
}
