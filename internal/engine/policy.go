package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/tmorgan983/canwake/internal/telemetry"
)

// TimingPolicy decides when a mode fires. Both methods must be called at
// most once per poll cycle: Ready when the mode may fire, Hold when it is
// gated. Hold keeps the policy's notion of time from advancing so that
// re-enabling never produces a burst of catch-up fires.
type TimingPolicy interface {
	Ready(now time.Time, snap telemetry.Snapshot) bool
	Hold(now time.Time, snap telemetry.Snapshot)
}

// RandomInterval fires after a uniformly sampled delay in [min, max],
// resampled after every fire. It accumulates only un-gated elapsed time,
// so timing is a pure function of the tick calls it sees — no wall clock
// is read internally, which keeps it deterministic under test.
type RandomInterval struct {
	min, max time.Duration
	rng      *rand.Rand

	delay    time.Duration
	elapsed  time.Duration
	lastEval time.Time
}

// NewRandomInterval builds the policy and samples the first delay.
// Requires min <= max; callers validate config before constructing.
func NewRandomInterval(min, max time.Duration, rng *rand.Rand) (*RandomInterval, error) {
	if min <= 0 || max < min {
		return nil, fmt.Errorf("engine: bad interval [%v, %v]", min, max)
	}
	p := &RandomInterval{min: min, max: max, rng: rng}
	p.delay = p.sample()
	return p, nil
}

func (p *RandomInterval) sample() time.Duration {
	if p.max == p.min {
		return p.min
	}
	return p.min + time.Duration(p.rng.Int63n(int64(p.max-p.min)))
}

func (p *RandomInterval) Ready(now time.Time, _ telemetry.Snapshot) bool {
	if !p.lastEval.IsZero() {
		p.elapsed += now.Sub(p.lastEval)
	}
	p.lastEval = now
	if p.elapsed < p.delay {
		return false
	}
	p.elapsed = 0
	p.delay = p.sample()
	return true
}

// Hold advances the evaluation point without accruing elapsed time:
// gated intervals simply don't count toward the delay.
func (p *RandomInterval) Hold(now time.Time, _ telemetry.Snapshot) {
	p.lastEval = now
}

// TickSynced fires when the monotonic tick count reaches or crosses a
// count congruent to trigger modulo period, at most once per period.
// The count can jump by more than one (lost clock frames, several frames
// drained in one poll), so crossing a qualifying value counts the same
// as landing on it exactly. A jump across several qualifying values
// still fires once.
type TickSynced struct {
	trigger, period int
	lastCount       int // count at the last fire or consumed period
}

func NewTickSynced(trigger, period int) (*TickSynced, error) {
	if period <= 0 || trigger < 0 || trigger >= period {
		return nil, fmt.Errorf("engine: bad tick sync trigger %d / period %d", trigger, period)
	}
	// lastCount starts at 0 so the sync tick itself never fires.
	return &TickSynced{trigger: trigger, period: period}, nil
}

// crossings returns how many qualifying counts lie in [0, count].
func (p *TickSynced) crossings(count int) int {
	if count < p.trigger {
		return 0
	}
	return (count-p.trigger)/p.period + 1
}

func (p *TickSynced) Ready(_ time.Time, snap telemetry.Snapshot) bool {
	if !snap.ClockSynced {
		return false
	}
	if p.crossings(snap.Count) <= p.crossings(p.lastCount) {
		return false
	}
	p.lastCount = snap.Count
	return true
}

// Hold consumes qualifying counts without firing, so a period that
// elapsed while gated cannot fire the moment the gate opens.
func (p *TickSynced) Hold(_ time.Time, snap telemetry.Snapshot) {
	if snap.ClockSynced && p.crossings(snap.Count) > p.crossings(p.lastCount) {
		p.lastCount = snap.Count
	}
}
