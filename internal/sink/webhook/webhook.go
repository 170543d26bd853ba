package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/crimson-sun/rollcall/internal/model"
)

const (
	defaultBatchSize     = 20
	defaultFlushInterval = 2 * time.Second
	defaultTimeout       = 10 * time.Second
	maxRetries           = 3
)

// Option configures a webhook Sink.
type Option func(*Sink)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(s *Sink) { s.headers = h }
}

// WithBatchSize sets the number of records accumulated before a flush. Default: 20.
func WithBatchSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval sets the maximum time between flushes. Default: 2s.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) { s.flushInterval = d }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) { s.client.Timeout = d }
}

// WithRetryBase sets the first retry delay; later retries double it. Default: 1s.
func WithRetryBase(d time.Duration) Option {
	return func(s *Sink) { s.retryBase = d }
}

// WithOnError sets a callback invoked when a timer-triggered flush fails.
func WithOnError(f func(error)) Option {
	return func(s *Sink) { s.errFunc = f }
}

// Sink POSTs batched event records to an HTTP endpoint as a JSON array.
// Records are flushed when batchSize is reached or flushInterval elapses.
// 5xx responses are retried with exponential backoff.
type Sink struct {
	client        *http.Client
	url           string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	retryBase     time.Duration
	errFunc       func(error)
	mu            sync.Mutex
	pending       []model.Record
	timer         *time.Timer
}

// New creates a webhook sink targeting url.
func New(url string, opts ...Option) *Sink {
	s := &Sink{
		client:        &http.Client{Timeout: defaultTimeout},
		url:           url,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		retryBase:     time.Second,
		errFunc:       func(err error) { slog.Warn("webhook flush failed", "error", err) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write appends an event to the batch, flushing when the batch is full.
// The first event of a batch arms the flush timer.
func (s *Sink) Write(ctx context.Context, event model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, event.ToRecord())

	if len(s.pending) >= s.batchSize {
		return s.flushLocked(ctx)
	}

	if len(s.pending) == 1 {
		s.timer = time.AfterFunc(s.flushInterval, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if err := s.flushLocked(context.Background()); err != nil {
				s.errFunc(err)
			}
		})
	}
	return nil
}

// Close flushes any remaining records and stops the timer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(context.Background())
}

// flushLocked sends the pending batch. Caller must hold s.mu.
func (s *Sink) flushLocked(ctx context.Context) error {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	s.pending = nil

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	return s.postWithRetry(ctx, body)
}

func (s *Sink) postWithRetry(ctx context.Context, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: %w", ctx.Err())
			case <-time.After(s.retryBase << (attempt - 1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.headers {
			req.Header.Set(k, v)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}
