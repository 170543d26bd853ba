package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/provider"
)

// virtualList simulates a virtualized container: only rows intersecting the
// viewport are returned by ListVisible.
type virtualList struct {
	mu          sync.Mutex
	names       []string
	rowHeight   int
	client      int
	offset      int
	noKeys      bool
	overscan    int // extra rows rendered above and below the viewport
	unavailable bool
	delay       time.Duration // per-call latency
	failAfter   int           // ListVisible calls before failing; 0 disables
	growBy      int           // rows appended after each ListVisible
	growCalls   int           // ListVisible calls that append rows
	lists       int
	scrolls     []int
}

func (v *virtualList) wait(ctx context.Context) error {
	if v.delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(v.delay):
		return nil
	}
}

func (v *virtualList) Extent(ctx context.Context) (provider.Extent, error) {
	if err := v.wait(ctx); err != nil {
		return provider.Extent{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unavailable {
		return provider.Extent{}, provider.ErrUnavailable
	}
	return provider.Extent{ScrollHeight: len(v.names) * v.rowHeight, ClientHeight: v.client}, nil
}

func (v *virtualList) ScrollTo(ctx context.Context, offset int) error {
	if err := v.wait(ctx); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset = offset
	v.scrolls = append(v.scrolls, offset)
	return nil
}

func (v *virtualList) ListVisible(ctx context.Context) ([]provider.Entry, error) {
	if err := v.wait(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lists++
	if v.failAfter > 0 && v.lists > v.failAfter {
		return nil, errors.New("page crashed")
	}
	first := v.offset/v.rowHeight - v.overscan
	last := (v.offset+v.client-1)/v.rowHeight + v.overscan
	var out []provider.Entry
	for i := first; i <= last; i++ {
		if i < 0 || i >= len(v.names) {
			continue
		}
		e := provider.Entry{Label: v.names[i], StatusHint: "online"}
		if !v.noKeys {
			e.Key = fmt.Sprint(i)
		}
		out = append(out, e)
	}
	for i := 0; v.lists <= v.growCalls && i < v.growBy; i++ {
		v.names = append(v.names, fmt.Sprintf("Late %d-%d", v.lists, i))
	}
	return out, nil
}

func (v *virtualList) Close() error { return nil }

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Person %03d", i)
	}
	return out
}

func labels(obs []model.RawObservation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Label
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCollector(t *testing.T, p provider.Provider, cfg Config) *Collector {
	t.Helper()
	c, err := New(p, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	return c
}

func fastConfig() Config {
	return Config{StepSize: 100, SettleDelay: 0, MaxCycleDuration: 2 * time.Second, MaxSteps: 1000}
}

func TestCollect_FullCoverageWithOverlap(t *testing.T) {
	v := &virtualList{names: names(100), rowHeight: 20, client: 200, overscan: 2}
	cfg := fastConfig()
	cfg.StepSize = 150 // below client height: viewports overlap

	snap := newCollector(t, v, cfg).Collect(context.Background())

	assert.False(t, snap.Unavailable)
	assert.False(t, snap.Truncated)
	assert.Equal(t, names(100), labels(snap.Observations), "every row once, in list order")
	assert.Equal(t, 1800, v.scrolls[len(v.scrolls)-1], "last step clamps to the bottom")
	assert.Equal(t, snap.Steps, len(v.scrolls))
}

func TestCollect_StepLargerThanViewportLeavesGaps(t *testing.T) {
	v := &virtualList{names: names(100), rowHeight: 20, client: 200}
	cfg := fastConfig()
	cfg.StepSize = 400

	snap := newCollector(t, v, cfg).Collect(context.Background())

	assert.Less(t, len(snap.Observations), 100)
	assert.Greater(t, len(snap.Observations), 40)
}

func TestCollect_DedupByLabelWithoutKeys(t *testing.T) {
	v := &virtualList{names: names(30), rowHeight: 20, client: 200, noKeys: true, overscan: 3}

	snap := newCollector(t, v, fastConfig()).Collect(context.Background())

	assert.Equal(t, names(30), labels(snap.Observations))
	assert.Empty(t, snap.Observations[0].PositionKey)
}

func TestCollect_SingleCaptureWhenNotScrollable(t *testing.T) {
	v := &virtualList{names: names(5), rowHeight: 20, client: 200}

	snap := newCollector(t, v, fastConfig()).Collect(context.Background())

	assert.Equal(t, 1, snap.Steps)
	assert.Len(t, snap.Observations, 5)
}

func TestCollect_UnavailableYieldsEmptySnapshot(t *testing.T) {
	v := &virtualList{names: names(5), rowHeight: 20, client: 200, unavailable: true}

	snap := newCollector(t, v, fastConfig()).Collect(context.Background())

	assert.True(t, snap.Unavailable)
	assert.Empty(t, snap.Observations)
	assert.Zero(t, snap.Steps)
}

func TestCollect_FirstReadFailureIsUnavailable(t *testing.T) {
	// One call already consumed against a budget of one: the first read fails.
	v := &virtualList{names: names(50), rowHeight: 20, client: 200, failAfter: 1, lists: 1}

	snap := newCollector(t, v, fastConfig()).Collect(context.Background())

	assert.True(t, snap.Unavailable)
	assert.Empty(t, snap.Observations)
}

func TestCollect_MidScanFailureReturnsPartial(t *testing.T) {
	v := &virtualList{names: names(100), rowHeight: 20, client: 200, failAfter: 3}

	snap := newCollector(t, v, fastConfig()).Collect(context.Background())

	assert.False(t, snap.Unavailable)
	assert.True(t, snap.Truncated)
	assert.Equal(t, 3, snap.Steps)
	assert.NotEmpty(t, snap.Observations)
	assert.Less(t, len(snap.Observations), 100)
}

func TestCollect_BudgetExhaustedReturnsPartial(t *testing.T) {
	v := &virtualList{names: names(200), rowHeight: 20, client: 200, delay: 10 * time.Millisecond}
	cfg := fastConfig()
	cfg.SettleDelay = 20 * time.Millisecond
	cfg.MaxCycleDuration = 250 * time.Millisecond

	start := time.Now()
	snap := newCollector(t, v, cfg).Collect(context.Background())
	elapsed := time.Since(start)

	assert.True(t, snap.Truncated)
	assert.False(t, snap.Unavailable)
	assert.NotEmpty(t, snap.Observations)
	assert.Less(t, len(snap.Observations), 200)
	assert.Less(t, elapsed, time.Second, "scan must stop at its budget")
}

func TestCollect_StepCap(t *testing.T) {
	v := &virtualList{names: names(100), rowHeight: 20, client: 200}
	cfg := fastConfig()
	cfg.MaxSteps = 3

	snap := newCollector(t, v, cfg).Collect(context.Background())

	assert.True(t, snap.Truncated)
	assert.Equal(t, 3, snap.Steps)
}

func TestCollect_ListGrowingDuringScan(t *testing.T) {
	v := &virtualList{names: names(20), rowHeight: 20, client: 200, growBy: 2, growCalls: 3}

	snap := newCollector(t, v, fastConfig()).Collect(context.Background())

	assert.False(t, snap.Truncated)
	assert.Greater(t, len(snap.Observations), 20, "rows appended mid-scan are reached")
}

func TestCollect_CaptureTimestampAndKeys(t *testing.T) {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	v := &virtualList{names: names(3), rowHeight: 20, client: 200}
	c, err := New(v, fastConfig(), WithLogger(quietLogger()), WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	snap := c.Collect(context.Background())

	require.Len(t, snap.Observations, 3)
	for i, o := range snap.Observations {
		assert.Equal(t, at, o.CapturedAt)
		assert.Equal(t, fmt.Sprint(i), o.PositionKey)
		assert.Equal(t, "online", o.StatusHint)
	}
}

func TestMerger_LaterCaptureReplacesAndBlankDropped(t *testing.T) {
	m := newMerger()
	t1 := time.Unix(1, 0)
	t2 := time.Unix(2, 0)
	m.add([]provider.Entry{{Key: "0", Label: "Alice"}, {Key: "1", Label: "  "}}, t1)
	m.add([]provider.Entry{{Key: "0", Label: "Alice B."}, {Key: "2", Label: "", StableID: "u-9"}}, t2)

	obs := m.observations()
	require.Len(t, obs, 2)
	assert.Equal(t, "Alice B.", obs[0].Label)
	assert.Equal(t, t2, obs[0].CapturedAt)
	assert.Equal(t, "u-9", obs[1].StableID)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := Config{StepSize: 0, SettleDelay: -1, MaxCycleDuration: 0, MaxSteps: 0}
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"step size", "settle delay", "max cycle duration", "max steps"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNew_RequiresProvider(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)
}
