package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmorgan983/canwake/internal/can"
)

const clockID = 0x528

func tickFrame(v byte) can.Frame {
	return can.NewFrame(1, clockID, []byte{v, 0, 0, 0, 0, 0, 0, 0})
}

func TestClockTrackerUnsyncedByDefault(t *testing.T) {
	c := NewClockTickTracker(clockID)
	assert.False(t, c.Synced())
	assert.Equal(t, 0, c.Count())
}

func TestClockTrackerIgnoresOtherFrames(t *testing.T) {
	c := NewClockTickTracker(clockID)
	assert.False(t, c.Observe(can.NewFrame(1, 0x118, []byte{1})))
	assert.False(t, c.Synced())
}

func TestClockTrackerWraparound(t *testing.T) {
	c := NewClockTickTracker(clockID)
	for _, v := range []byte{254, 255, 0, 1} {
		require.True(t, c.Observe(tickFrame(v)))
	}
	assert.Equal(t, 1, c.CurrentTick())
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, 3, c.TicksSince(254))
}

func TestClockTrackerTicksSinceNeverNegative(t *testing.T) {
	c := NewClockTickTracker(clockID)
	c.Observe(tickFrame(5))
	assert.Equal(t, 11, c.TicksSince(250))
	assert.Equal(t, 0, c.TicksSince(5))
}

func TestClockTrackerDuplicateFrame(t *testing.T) {
	c := NewClockTickTracker(clockID)
	require.True(t, c.Observe(tickFrame(10)))
	assert.False(t, c.Observe(tickFrame(10)))
	assert.Equal(t, 0, c.Count())
}

func TestClockTrackerSmallRegressionKept(t *testing.T) {
	c := NewClockTickTracker(clockID)
	require.True(t, c.Observe(tickFrame(10)))
	require.True(t, c.Observe(tickFrame(11)))

	// A small backwards jump is bus noise, not wraparound.
	assert.False(t, c.Observe(tickFrame(5)))
	assert.Equal(t, 11, c.CurrentTick())
	assert.Equal(t, 1, c.Count())

	// The counter keeps advancing normally afterwards.
	require.True(t, c.Observe(tickFrame(12)))
	assert.Equal(t, 2, c.Count())
}
