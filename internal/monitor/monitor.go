// Package monitor drives the poll loop: one snapshot, one reconciliation and
// one batch of sink writes per cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/crimson-sun/rollcall/internal/collector"
	"github.com/crimson-sun/rollcall/internal/identity"
	"github.com/crimson-sun/rollcall/internal/metrics"
	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/presence"
	"github.com/crimson-sun/rollcall/internal/sink"
)

// ErrScheduling is the only fatal monitor error: the loop cannot be
// scheduled at all.
var ErrScheduling = errors.New("monitor: scheduling failure")

// Collector produces one roster snapshot per call.
type Collector interface {
	Collect(ctx context.Context) collector.Snapshot
}

// Status describes the most recently completed cycle.
type Status struct {
	Cycle        uint64    `json:"cycle"`
	At           time.Time `json:"at"`
	DurationMS   int64     `json:"duration_ms"`
	SnapshotSize int       `json:"snapshot_size"`
	ScanSteps    int       `json:"scan_steps"`
	Unavailable  bool      `json:"unavailable"`
	Truncated    bool      `json:"truncated"`
	Unresolvable int       `json:"unresolvable"`
	Present      int       `json:"present"`
	Joins        int       `json:"joins"`
	Leaves       int       `json:"leaves"`
	TotalJoins   uint64    `json:"total_joins"`
	TotalLeaves  uint64    `json:"total_leaves"`

	roster []model.PresenceRecord
}

// Monitor owns the reconciler and runs cycles on a single goroutine.
type Monitor struct {
	collector  Collector
	resolver   *identity.Resolver
	reconciler *presence.Reconciler
	sink       sink.Sink

	interval        time.Duration
	leaveOnShutdown bool
	metrics         *metrics.Metrics
	logger          *slog.Logger
	tracer          trace.Tracer
	now             func() time.Time

	running     atomic.Bool
	status      atomic.Pointer[Status]
	cycle       uint64
	totalJoins  uint64
	totalLeaves uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records cycle and event metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// WithTracer overrides the tracer. Default: otel.Tracer("rollcall/monitor").
func WithTracer(t trace.Tracer) Option {
	return func(m *Monitor) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithClock overrides the cycle timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLeaveOnShutdown makes Run emit a leave for everyone still present
// when it stops.
func WithLeaveOnShutdown(on bool) Option {
	return func(m *Monitor) { m.leaveOnShutdown = on }
}

// New wires a monitor. A non-positive interval is a scheduling failure.
func New(c Collector, r *identity.Resolver, rec *presence.Reconciler, s sink.Sink, interval time.Duration, opts ...Option) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: poll interval must be > 0, got %v", ErrScheduling, interval)
	}
	if c == nil || r == nil || rec == nil || s == nil {
		return nil, errors.New("monitor: collector, resolver, reconciler and sink are required")
	}
	m := &Monitor{
		collector:  c,
		resolver:   r,
		reconciler: rec,
		sink:       s,
		interval:   interval,
		logger:     slog.Default(),
		tracer:     otel.Tracer("rollcall/monitor"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// cancelled. Cancellation is observed between cycles; an in-flight cycle
// finishes on a detached context, still bounded by the collector's budget.
// It returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: monitor is already running", ErrScheduling)
	}
	defer m.running.Store(false)

	m.logger.Info("monitor started",
		"event_id", m.reconciler.EventID(), "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			m.shutdown(context.WithoutCancel(ctx))
			return nil
		}
		m.Cycle(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Cycle runs one snapshot-reconcile-emit pass and publishes its Status. It
// must not be called concurrently with itself or with Run.
func (m *Monitor) Cycle(ctx context.Context) Status {
	ctx, span := m.tracer.Start(ctx, "monitor.cycle")
	defer span.End()

	start := time.Now()
	snap := m.collector.Collect(ctx)
	at := m.now()

	observations, dropped := m.resolver.ResolveAll(snap.Observations)
	if dropped > 0 {
		m.logger.Debug("dropped unresolvable observations", "count", dropped)
	}
	events := m.reconciler.Reconcile(observations, at)
	m.emit(ctx, events)

	elapsed := time.Since(start)
	m.cycle++
	st := &Status{
		Cycle:        m.cycle,
		At:           at,
		DurationMS:   elapsed.Milliseconds(),
		SnapshotSize: len(snap.Observations),
		ScanSteps:    snap.Steps,
		Unavailable:  snap.Unavailable,
		Truncated:    snap.Truncated,
		Unresolvable: dropped,
		Present:      m.reconciler.Len(),
		roster:       m.reconciler.Present(),
	}
	for _, e := range events {
		if e.Type == model.EventJoin {
			st.Joins++
		} else {
			st.Leaves++
		}
	}
	m.totalJoins += uint64(st.Joins)
	m.totalLeaves += uint64(st.Leaves)
	st.TotalJoins, st.TotalLeaves = m.totalJoins, m.totalLeaves
	m.status.Store(st)

	span.SetAttributes(
		attribute.Int64("rollcall.cycle", int64(st.Cycle)),
		attribute.Int("rollcall.snapshot_size", st.SnapshotSize),
		attribute.Int("rollcall.joins", st.Joins),
		attribute.Int("rollcall.leaves", st.Leaves),
		attribute.Bool("rollcall.unavailable", st.Unavailable),
		attribute.Bool("rollcall.truncated", st.Truncated),
	)
	m.record(st, elapsed)

	m.logger.Debug("cycle complete",
		"cycle", st.Cycle, "roster", st.SnapshotSize, "present", st.Present,
		"joins", st.Joins, "leaves", st.Leaves, "steps", st.ScanSteps)
	return *st
}

// Status returns the last published cycle status and whether any cycle has
// completed yet.
func (m *Monitor) Status() (Status, bool) {
	st := m.status.Load()
	if st == nil {
		return Status{}, false
	}
	return *st, true
}

// Roster returns the presence records as of the last completed cycle.
func (m *Monitor) Roster() []model.PresenceRecord {
	st := m.status.Load()
	if st == nil {
		return nil
	}
	out := make([]model.PresenceRecord, len(st.roster))
	copy(out, st.roster)
	return out
}

// Running reports whether Run is active.
func (m *Monitor) Running() bool {
	return m.running.Load()
}

func (m *Monitor) shutdown(ctx context.Context) {
	if !m.leaveOnShutdown {
		m.logger.Info("monitor stopped", "present", m.reconciler.Len())
		return
	}
	at := m.now()
	events := m.reconciler.Flush(at)
	m.emit(ctx, events)
	m.totalLeaves += uint64(len(events))

	// Publish the flush so the roster no longer lists flushed attendees.
	st := &Status{}
	if prev := m.status.Load(); prev != nil {
		*st = *prev
	}
	st.At = at
	st.Joins = 0
	st.Leaves = len(events)
	st.Present = 0
	st.roster = nil
	st.TotalJoins, st.TotalLeaves = m.totalJoins, m.totalLeaves
	m.status.Store(st)

	if m.metrics != nil {
		m.metrics.PresentAttendees.Set(0)
	}
	m.logger.Info("monitor stopped, flushed remaining attendees", "leaves", len(events))
}

func (m *Monitor) emit(ctx context.Context, events []model.Event) {
	for _, e := range events {
		m.logger.Info("attendee "+string(e.Type),
			"identity", e.Identity, "display_name", e.DisplayName,
			"event_id", e.EventID, "at", e.Timestamp)
		if m.metrics != nil {
			m.metrics.ObserveEvent(string(e.Type))
		}
		if err := m.sink.Write(ctx, e); err != nil {
			m.logger.Warn("sink write failed", "record_id", e.ID, "error", err)
		}
	}
}

func (m *Monitor) record(st *Status, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.Cycles.Inc()
	m.metrics.CycleDuration.Observe(elapsed.Seconds())
	m.metrics.SnapshotSize.Set(float64(st.SnapshotSize))
	m.metrics.PresentAttendees.Set(float64(st.Present))
	if st.Unavailable {
		m.metrics.CollectorUnavailable.Inc()
	}
	if st.Truncated {
		m.metrics.ScanTruncated.Inc()
	}
	if st.Unresolvable > 0 {
		m.metrics.UnresolvableObserved.Add(float64(st.Unresolvable))
	}
}
