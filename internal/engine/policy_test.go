package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmorgan983/canwake/internal/telemetry"
)

func TestRandomIntervalBoundsAndResampling(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p, err := NewRandomInterval(4*time.Second, 8*time.Second, rng)
	require.NoError(t, err)

	const step = 10 * time.Millisecond
	now := time.Unix(0, 0)
	var lastFire time.Time
	var gaps []time.Duration

	for elapsed := time.Duration(0); elapsed < 500*time.Second; elapsed += step {
		if p.Ready(now, telemetry.Snapshot{}) {
			if !lastFire.IsZero() {
				gaps = append(gaps, now.Sub(lastFire))
			}
			lastFire = now
		}
		now = now.Add(step)
	}

	require.Greater(t, len(gaps), 50)
	distinct := map[time.Duration]struct{}{}
	for _, g := range gaps {
		assert.GreaterOrEqual(t, g, 4*time.Second)
		assert.LessOrEqual(t, g, 8*time.Second+step)
		distinct[g] = struct{}{}
	}
	// Delays are resampled after every fire, not reused.
	assert.Greater(t, len(distinct), 10)
}

func TestRandomIntervalHoldPausesClock(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p, err := NewRandomInterval(time.Second, time.Second, rng)
	require.NoError(t, err)

	const step = 10 * time.Millisecond
	now := time.Unix(0, 0)

	// Gate the policy for a long stretch: nothing may accrue.
	for i := 0; i < 1000; i++ {
		now = now.Add(step)
		p.Hold(now, telemetry.Snapshot{})
	}

	// Once released it still needs the full delay.
	for i := 0; i < 99; i++ {
		now = now.Add(step)
		require.False(t, p.Ready(now, telemetry.Snapshot{}), "fired after only %v", time.Duration(i+1)*step)
	}
	now = now.Add(step)
	assert.True(t, p.Ready(now, telemetry.Snapshot{}))
}

func TestRandomIntervalRejectsBadBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := NewRandomInterval(8*time.Second, 4*time.Second, rng)
	assert.Error(t, err)
	_, err = NewRandomInterval(0, time.Second, rng)
	assert.Error(t, err)
}

func syncedSnap(count int) telemetry.Snapshot {
	return telemetry.Snapshot{Tick: count % 256, Count: count, ClockSynced: true}
}

func TestTickSyncedFiresOncePerQualifyingTick(t *testing.T) {
	p, err := NewTickSynced(0, 5)
	require.NoError(t, err)
	now := time.Unix(0, 0)

	assert.False(t, p.Ready(now, telemetry.Snapshot{Count: 5}), "must not fire before clock sync")
	assert.False(t, p.Ready(now, syncedSnap(0)), "sync tick itself must not fire")

	for c := 1; c <= 4; c++ {
		assert.False(t, p.Ready(now, syncedSnap(c)))
	}
	assert.True(t, p.Ready(now, syncedSnap(5)))
	// Same telemetry evaluated again within the same bus tick: idempotent.
	assert.False(t, p.Ready(now, syncedSnap(5)))

	for c := 6; c <= 9; c++ {
		assert.False(t, p.Ready(now, syncedSnap(c)))
	}
	assert.True(t, p.Ready(now, syncedSnap(10)))
}

func TestTickSyncedFiresWhenCountJumpsPastTrigger(t *testing.T) {
	p, err := NewTickSynced(0, 5)
	require.NoError(t, err)
	now := time.Unix(0, 0)

	// Several clock frames drained in one poll cycle advance the count
	// by more than one; crossing the qualifying value must still fire.
	for c := 1; c <= 4; c++ {
		require.False(t, p.Ready(now, syncedSnap(c)))
	}
	assert.True(t, p.Ready(now, syncedSnap(6)), "jump 4 -> 6 crossed count 5")
	assert.False(t, p.Ready(now, syncedSnap(6)))

	assert.False(t, p.Ready(now, syncedSnap(9)))
	assert.True(t, p.Ready(now, syncedSnap(10)))

	// A jump across two qualifying values fires once, not twice.
	assert.True(t, p.Ready(now, syncedSnap(23)))
	assert.False(t, p.Ready(now, syncedSnap(24)))
}

func TestTickSyncedHoldConsumesCrossedPeriod(t *testing.T) {
	p, err := NewTickSynced(0, 5)
	require.NoError(t, err)
	now := time.Unix(0, 0)

	p.Hold(now, syncedSnap(6)) // gated while the count jumped past 5
	assert.False(t, p.Ready(now, syncedSnap(7)), "period consumed while gated must not fire later")
	assert.True(t, p.Ready(now, syncedSnap(10)))
}

func TestTickSyncedHoldConsumesTick(t *testing.T) {
	p, err := NewTickSynced(0, 5)
	require.NoError(t, err)
	now := time.Unix(0, 0)

	p.Hold(now, syncedSnap(5))
	assert.False(t, p.Ready(now, syncedSnap(5)), "tick consumed while gated must not fire later")
	assert.True(t, p.Ready(now, syncedSnap(10)))
}

func TestTickSyncedRejectsBadTrigger(t *testing.T) {
	_, err := NewTickSynced(5, 5)
	assert.Error(t, err)
	_, err = NewTickSynced(-1, 5)
	assert.Error(t, err)
	_, err = NewTickSynced(0, 0)
	assert.Error(t, err)
}
