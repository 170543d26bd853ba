package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/sink"
)

const (
	defaultBufSize = 64 * 1024
	maxRotated     = 9
)

// Option configures a file Sink.
type Option func(*Sink)

// WithMaxSize sets the file size in bytes at which rotation triggers.
// 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(s *Sink) { s.maxSize = bytes }
}

// WithBufSize sets the bufio.Writer buffer size. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(s *Sink) { s.bufSize = bytes }
}

// WithSync flushes and fsyncs after every event.
func WithSync() Option {
	return func(s *Sink) { s.sync = true }
}

// Sink appends NDJSON event records to a file with buffered I/O and optional
// size-based rotation.
type Sink struct {
	mu      sync.Mutex
	w       *bufio.Writer
	f       *os.File
	path    string
	maxSize int64 // 0 = no rotation
	written int64
	bufSize int
	sync    bool
}

// New opens (or creates) path for appending.
func New(path string, opts ...Option) (*Sink, error) {
	s := &Sink{path: path, bufSize: defaultBufSize}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.openFile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write appends the event as one JSON line.
func (s *Sink) Write(_ context.Context, event model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := sink.Marshal(event)
	if err != nil {
		return fmt.Errorf("file sink: marshal: %w", err)
	}
	data = append(data, '\n')

	if s.maxSize > 0 && s.written > 0 && s.written+int64(len(data)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("file sink: rotate: %w", err)
		}
	}

	n, err := s.w.Write(data)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("file sink: write: %w", err)
	}
	if s.sync {
		if err := s.w.Flush(); err != nil {
			return fmt.Errorf("file sink: flush: %w", err)
		}
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("file sink: sync: %w", err)
		}
	}
	return nil
}

// Close flushes the buffer and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("file sink: flush: %w", err)
	}
	return s.f.Close()
}

func (s *Sink) openFile() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file sink: open %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file sink: stat %s: %w", s.path, err)
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, s.bufSize)
	s.written = info.Size()
	return nil
}

// rotate shifts {path}.N to {path}.N+1, moves the current file to {path}.1
// and opens a fresh file.
func (s *Sink) rotate() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	for i := maxRotated; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", s.path, i)
		to := fmt.Sprintf("%s.%d", s.path, i+1)
		os.Rename(from, to) // may not exist
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return err
	}
	s.written = 0
	return s.openFile()
}
