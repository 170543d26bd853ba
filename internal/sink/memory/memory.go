// Package memory keeps the most recent events in a bounded ring for the
// status API.
package memory

import (
	"context"
	"sync"

	"github.com/crimson-sun/rollcall/internal/model"
)

const defaultCapacity = 1000

// Sink is a fixed-capacity ring of events. The oldest event is overwritten
// once the ring is full.
type Sink struct {
	mu    sync.RWMutex
	buf   []model.Event
	next  int
	count int
	total uint64
}

// New creates a ring holding up to capacity events. capacity <= 0 uses 1000.
func New(capacity int) *Sink {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Sink{buf: make([]model.Event, capacity)}
}

func (s *Sink) Write(_ context.Context, event model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = event
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
	s.total++
	return nil
}

func (s *Sink) Close() error {
	return nil
}

// Recent returns up to n events, oldest first. n <= 0 returns everything
// retained.
func (s *Sink) Recent(n int) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]model.Event, n)
	start := (s.next - n + len(s.buf)) % len(s.buf)
	for i := range n {
		out[i] = s.buf[(start+i)%len(s.buf)]
	}
	return out
}

// Total returns the number of events ever written.
func (s *Sink) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
