package supervisor

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmorgan983/canwake/internal/can"
	"github.com/tmorgan983/canwake/internal/config"
	"github.com/tmorgan983/canwake/internal/engine"
)

// fakeClock advances simulated time instead of blocking, so reconnect
// delays and pulse gaps cost nothing in test wall time.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.now = c.now.Add(d)
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// scriptTransport is a programmable transport: a queue of frames to hand
// out, counters for every lifecycle call, and switchable failure modes.
type scriptTransport struct {
	opened  bool
	opens   int
	closes  int
	openErr error // returned by every Open while set

	failPolls int // remaining Poll calls that fail
	queue     []can.Frame
	sent      []can.Frame
}

func (t *scriptTransport) Name() string { return "script" }

func (t *scriptTransport) Open() error {
	t.opens++
	if t.openErr != nil {
		return t.openErr
	}
	t.opened = true
	return nil
}

func (t *scriptTransport) Close() error {
	t.closes++
	t.opened = false
	return nil
}

func (t *scriptTransport) Alive() bool { return t.opened }

func (t *scriptTransport) Send(f can.Frame) error {
	t.sent = append(t.sent, f)
	return nil
}

func (t *scriptTransport) Poll() (can.Frame, bool, error) {
	if t.failPolls > 0 {
		t.failPolls--
		return can.Frame{}, false, can.ErrDeviceGone
	}
	if len(t.queue) == 0 {
		return can.Frame{}, false, nil
	}
	f := t.queue[0]
	t.queue = t.queue[1:]
	return f, true, nil
}

func (t *scriptTransport) push(f can.Frame) { t.queue = append(t.queue, f) }

func newTestSupervisor(t *testing.T, cfg *config.Config) (*Supervisor, *scriptTransport, *fakeClock) {
	t.Helper()
	eng, err := engine.New(cfg, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	st := &scriptTransport{}
	fc := newFakeClock()
	return New(st, eng, cfg, fc, nil), st, fc
}

func clockFrame(counter int) can.Frame {
	return can.NewFrame(1, 0x528, []byte{byte(counter), 0, 0, 0, 0, 0, 0, 0})
}

func TestExceptionBudgetTriggersReconnect(t *testing.T) {
	cfg := config.Default() // max_exception_count: 5
	sup, st, _ := newTestSupervisor(t, cfg)
	ctx := context.Background()

	st.failPolls = 6
	for i := 0; i < 6; i++ {
		require.NoError(t, sup.cycle(ctx))
	}

	// Failures 1-4 only burn budget; the 5th spends it and reopens the
	// device once. The 6th starts a fresh budget, so no second reconnect.
	assert.Equal(t, 1, st.opens)
	assert.Equal(t, 1, st.closes)

	status := sup.Status()
	assert.Equal(t, 1, status.Reconnects)
	assert.Equal(t, 6, status.TransportErrors)
	assert.Equal(t, StateConnected.String(), status.State)
}

func TestBudgetResetsOnAnySuccess(t *testing.T) {
	cfg := config.Default()
	sup, st, _ := newTestSupervisor(t, cfg)
	ctx := context.Background()

	st.failPolls = 4
	for i := 0; i < 4; i++ {
		require.NoError(t, sup.cycle(ctx))
	}
	require.NoError(t, sup.cycle(ctx)) // clean poll resets the budget

	st.failPolls = 4
	for i := 0; i < 4; i++ {
		require.NoError(t, sup.cycle(ctx))
	}

	assert.Zero(t, st.opens, "non-consecutive failures must not reconnect")
	assert.Equal(t, 8, sup.Status().TransportErrors)
}

func TestRunTerminalWhenDeviceNeverReturns(t *testing.T) {
	cfg := config.Default()
	cfg.Reliability.MaxReconnectAttempts = 3
	sup, st, _ := newTestSupervisor(t, cfg)
	st.openErr = errors.New("no such device")

	err := sup.Run(context.Background())
	require.ErrorIs(t, err, ErrReconnectExhausted)

	// Initial open plus three reconnect attempts.
	assert.Equal(t, 4, st.opens)

	status := sup.Status()
	assert.Equal(t, StateFailed.String(), status.State)
	assert.Equal(t, 3, status.Attempt)
	assert.Equal(t, 1, status.Reconnects)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := config.Default()
	sup, st, _ := newTestSupervisor(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sup.Run(ctx))
	assert.GreaterOrEqual(t, st.closes, 1, "transport must be closed on shutdown")
}

// Exercises the full random-interval path under simulated time: one poll
// cycle every 100ms for 100 seconds of a 4-8s interval mode.
func TestRandomIntervalFireRate(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = engine.ModeMediaVolumeBasic
	cfg.Modes.Volume.Delay = 0 // keep pulse gaps out of the timing math
	sup, st, fc := newTestSupervisor(t, cfg)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		fc.advance(100 * time.Millisecond)
		require.NoError(t, sup.cycle(ctx))
	}

	require.Zero(t, len(st.sent)%2, "volume pulses come in down/up pairs")
	fires := len(st.sent) / 2
	assert.GreaterOrEqual(t, fires, 12, "intervals may not stretch past the configured maximum")
	assert.LessOrEqual(t, fires, 25, "intervals may not compress below the configured minimum")

	for _, f := range st.sent {
		assert.Equal(t, uint32(0x3C2), f.ID)
	}
}

func TestTickSyncedModeFollowsBusClock(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = engine.ModeMediaVolume // fires every 8 observed ticks
	cfg.Modes.Volume.Delay = 0
	sup, st, _ := newTestSupervisor(t, cfg)
	ctx := context.Background()

	// The first clock frame only establishes sync; counting starts after.
	for i := 1; i <= 17; i++ {
		st.push(clockFrame(i))
		require.NoError(t, sup.cycle(ctx))
	}

	assert.Len(t, st.sent, 4, "expected fires at tick counts 8 and 16")
	assert.Equal(t, 16, sup.Status().TickCount)
}

func TestDoubleTapDisablesEmission(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = engine.ModeAdvanced
	sup, st, fc := newTestSupervisor(t, cfg)
	ctx := context.Background()

	playPause := can.NewFrame(1, 0x3C2, []byte{0x49, 0x55, 0, 0, 0, 0, 0, 0})

	st.push(playPause)
	require.NoError(t, sup.cycle(ctx))
	fc.advance(400 * time.Millisecond)
	st.push(playPause)
	require.NoError(t, sup.cycle(ctx))

	assert.False(t, sup.Status().Enabled)
	assert.Empty(t, st.sent, "disabled engine must not emit")
}

func TestSelectSubModeValidation(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = engine.ModeAdvanced
	sup, _, _ := newTestSupervisor(t, cfg)

	require.NoError(t, sup.SelectSubMode(engine.ModeSpeed))
	assert.ErrorIs(t, sup.SelectSubMode("afterburner"), engine.ErrUnknownMode)

	// The command queue is bounded; a stuck loop must not block callers.
	for i := 0; i < 3; i++ {
		require.NoError(t, sup.SelectSubMode(engine.ModeMediaBack))
	}
	assert.Error(t, sup.SelectSubMode(engine.ModeMediaBack))
}
