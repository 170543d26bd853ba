package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/crimson-sun/rollcall/internal/model"
)

const streamPrefix = "rollcall:events:"

// Option configures a redis Sink.
type Option func(*Sink)

// WithMaxLen caps each stream at approximately n entries. 0 (default) keeps
// everything.
func WithMaxLen(n int64) Option {
	return func(s *Sink) { s.maxLen = n }
}

// Sink appends events to a per-session Redis stream.
type Sink struct {
	client *redis.Client
	maxLen int64
}

// New wraps an existing client.
func New(client *redis.Client, opts ...Option) *Sink {
	s := &Sink{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis sink: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis sink: ping: %w", err)
	}
	return client, nil
}

// Stream returns the stream key holding a session's events.
func Stream(eventID string) string {
	return streamPrefix + eventID
}

func (s *Sink) Write(ctx context.Context, event model.Event) error {
	r := event.ToRecord()
	args := &redis.XAddArgs{
		Stream: Stream(event.EventID),
		Values: map[string]any{
			"type":         r.Type,
			"attendee_id":  r.AttendeeID,
			"event_id":     r.EventID,
			"timestamp":    r.Timestamp,
			"record_id":    r.RecordID,
			"display_name": r.DisplayName,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis sink: xadd %s: %w", args.Stream, err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}
