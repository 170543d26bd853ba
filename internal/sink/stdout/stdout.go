package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/crimson-sun/rollcall/internal/model"
)

// Sink writes JSON-encoded event records, one per line.
type Sink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a Sink writing to w (normally os.Stdout), optionally
// pretty-printed.
func New(w io.Writer, pretty bool) *Sink {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Sink{enc: enc}
}

func (s *Sink) Write(_ context.Context, event model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event.ToRecord()); err != nil {
		return fmt.Errorf("stdout sink: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return nil
}
