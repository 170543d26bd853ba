package sink

import (
	"context"
	"encoding/json"

	"github.com/crimson-sun/rollcall/internal/model"
)

// Sink defines the interface for presence event destinations.
type Sink interface {
	Write(ctx context.Context, event model.Event) error
	Close() error
}

// Marshal encodes an event as its JSON wire record.
func Marshal(e model.Event) ([]byte, error) {
	return json.Marshal(e.ToRecord())
}
