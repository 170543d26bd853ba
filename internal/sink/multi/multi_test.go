package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/crimson-sun/rollcall/internal/model"
)

type mockSink struct {
	events   []model.Event
	closed   bool
	writeErr error
	closeErr error
}

func (m *mockSink) Write(_ context.Context, event model.Event) error {
	m.events = append(m.events, event)
	return m.writeErr
}

func (m *mockSink) Close() error {
	m.closed = true
	return m.closeErr
}

func TestFanOut(t *testing.T) {
	a, b := &mockSink{}, &mockSink{}
	m := New(a, b)
	ev := model.Event{Type: model.EventJoin, Identity: "name:alice"}

	if err := m.Write(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("a=%d b=%d, want 1 each", len(a.events), len(b.events))
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &mockSink{writeErr: errors.New("down")}
	good := &mockSink{}
	m := New(bad, good)

	err := m.Write(context.Background(), model.Event{Identity: "name:x"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(good.events) != 1 {
		t.Errorf("good sink got %d events, want 1", len(good.events))
	}
}

func TestCloseAll(t *testing.T) {
	a := &mockSink{closeErr: errors.New("a")}
	b := &mockSink{closeErr: errors.New("b")}
	m := New(a, b)

	err := m.Close()
	if !a.closed || !b.closed {
		t.Fatal("not every sink closed")
	}
	if err == nil || err.Error() != "a\nb" {
		t.Errorf("err = %v", err)
	}
}

func TestEmpty(t *testing.T) {
	m := New()
	if err := m.Write(context.Background(), model.Event{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
}
