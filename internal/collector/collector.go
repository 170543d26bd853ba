package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/provider"
)

// Config holds the scan tunables.
type Config struct {
	StepSize         int           // scroll increment in pixels
	SettleDelay      time.Duration // wait after each scroll before reading
	MaxCycleDuration time.Duration // total scan budget
	MaxSteps         int           // hard cap on scroll positions per scan
}

// DefaultConfig returns conservative tunables for a typical virtual list.
func DefaultConfig() Config {
	return Config{
		StepSize:         300,
		SettleDelay:      50 * time.Millisecond,
		MaxCycleDuration: 4 * time.Second,
		MaxSteps:         500,
	}
}

// Validate reports invalid tunables.
func (c Config) Validate() error {
	var errs []error
	if c.StepSize <= 0 {
		errs = append(errs, errors.New("step size must be positive"))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay must not be negative"))
	}
	if c.MaxCycleDuration <= 0 {
		errs = append(errs, errors.New("max cycle duration must be positive"))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, errors.New("max steps must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("collector: %w", errors.Join(errs...))
	}
	return nil
}

// Snapshot is the deduplicated result of one scan.
type Snapshot struct {
	Observations []model.RawObservation
	Steps        int           // scroll positions captured
	Unavailable  bool          // container or host could not be located
	Truncated    bool          // scan stopped before covering the container
	Duration     time.Duration
}

// Collector scans a provider's roster container.
type Collector struct {
	p      provider.Provider
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Collector.
func New(p provider.Provider, cfg Config, opts ...Option) (*Collector, error) {
	if p == nil {
		return nil, errors.New("collector: provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Collector{p: p, cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Collect scans the container once. It never fails: an unreachable container
// yields an empty snapshot flagged Unavailable, and an exhausted budget or a
// mid-scan read error yields what was gathered so far, flagged Truncated.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MaxCycleDuration)
	defer cancel()

	var snap Snapshot
	m := newMerger()

	ext, err := c.p.Extent(ctx)
	if err != nil {
		c.logUnavailable(err)
		snap.Unavailable = true
		snap.Duration = time.Since(start)
		return snap
	}

	offset := 0
	for {
		if snap.Steps >= c.cfg.MaxSteps {
			snap.Truncated = true
			c.logger.Warn("roster scan hit step cap", "steps", snap.Steps, "offset", offset)
			break
		}
		entries, err := c.capture(ctx, offset)
		if err != nil {
			if snap.Steps == 0 && !isBudget(err) {
				c.logUnavailable(err)
				snap.Unavailable = true
			} else {
				snap.Truncated = true
				c.logger.Warn("roster scan incomplete",
					"error", err, "steps", snap.Steps, "offset", offset, "collected", m.len())
			}
			break
		}
		snap.Steps++
		m.add(entries, c.now())

		// The list may grow while we scroll; keep the latest geometry.
		if latest, err := c.p.Extent(ctx); err == nil {
			ext = latest
		}
		maxOffset := ext.MaxOffset()
		if offset >= maxOffset {
			break
		}
		offset += c.cfg.StepSize
		if offset > maxOffset {
			offset = maxOffset
		}
	}

	snap.Observations = m.observations()
	snap.Duration = time.Since(start)
	return snap
}

func (c *Collector) capture(ctx context.Context, offset int) ([]provider.Entry, error) {
	if err := c.p.ScrollTo(ctx, offset); err != nil {
		return nil, fmt.Errorf("scroll to %d: %w", offset, err)
	}
	if err := sleep(ctx, c.cfg.SettleDelay); err != nil {
		return nil, err
	}
	entries, err := c.p.ListVisible(ctx)
	if err != nil {
		return nil, fmt.Errorf("list visible at %d: %w", offset, err)
	}
	return entries, nil
}

func (c *Collector) logUnavailable(err error) {
	c.logger.Warn("roster container unavailable, using empty snapshot", "error", err)
}

func isBudget(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// merger deduplicates entries by key, keeping first-seen order and the
// latest capture of each key.
type merger struct {
	index map[string]int
	obs   []model.RawObservation
}

func newMerger() *merger {
	return &merger{index: make(map[string]int)}
}

func (m *merger) add(entries []provider.Entry, at time.Time) {
	for _, e := range entries {
		if strings.TrimSpace(e.Label) == "" && strings.TrimSpace(e.StableID) == "" {
			continue
		}
		o := model.RawObservation{
			Label:       e.Label,
			StatusHint:  e.StatusHint,
			PositionKey: e.Key,
			StableID:    e.StableID,
			CapturedAt:  at,
		}
		k := o.Key()
		if i, ok := m.index[k]; ok {
			m.obs[i] = o
			continue
		}
		m.index[k] = len(m.obs)
		m.obs = append(m.obs, o)
	}
}

func (m *merger) len() int {
	return len(m.obs)
}

func (m *merger) observations() []model.RawObservation {
	return m.obs
}
