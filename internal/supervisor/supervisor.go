package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tmorgan983/canwake/internal/can"
	"github.com/tmorgan983/canwake/internal/config"
	"github.com/tmorgan983/canwake/internal/engine"
	"github.com/tmorgan983/canwake/internal/telemetry"
)

// State is the supervisor's connection state. It is the only state that
// can force the process down.
type State int

const (
	StateConnected State = iota
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrReconnectExhausted is the terminal failure: the transport could not
// be re-established within the attempt budget. The run loop exits and the
// operator's restart policy takes over; the supervisor never self-restarts
// past this point.
var ErrReconnectExhausted = errors.New("supervisor: reconnect attempts exhausted")

// Clock abstracts time so the run loop can execute under simulated time
// in tests. Sleep must return early when ctx is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RealClock returns the wall-clock Clock used outside tests.
func RealClock() Clock { return realClock{} }

// Status is a point-in-time view of the supervisor for the control
// surface. All fields are copies; it is safe to hand out.
type Status struct {
	State           string    `json:"state"`
	Attempt         int       `json:"attempt,omitempty"`
	Mode            string    `json:"mode"`
	SubMode         string    `json:"subMode,omitempty"`
	Enabled         bool      `json:"enabled"`
	Gear            string    `json:"gear"`
	Tick            int       `json:"tick"`
	TickCount       int       `json:"tickCount"`
	LastFire        time.Time `json:"lastFire"`
	LastAction      string    `json:"lastAction,omitempty"`
	FramesSent      int       `json:"framesSent"`
	TransportErrors int       `json:"transportErrors"`
	Reconnects      int       `json:"reconnects"`
}

// maxFramesPerCycle bounds how many frames one poll cycle drains, so a
// chatty bus cannot starve the engine tick.
const maxFramesPerCycle = 64

// Supervisor owns the transport handle and the run loop: poll, decode,
// engine tick, optional send, sleep. It counts consecutive transport
// failures against the exception budget and reopens the device when the
// budget is spent.
type Supervisor struct {
	tr      can.Transport
	eng     *engine.Engine
	clockTr *telemetry.ClockTickTracker
	gearTr  *telemetry.GearStateTracker
	wheelTr *telemetry.WheelButtonTracker
	clock   Clock
	metrics *Metrics

	pollInterval   time.Duration
	reconnectDelay time.Duration
	maxExceptions  int
	maxReconnects  int

	commands chan string

	mu        sync.Mutex
	state     State
	attempt   int
	budget    int
	lastCount int // tick count at previous snapshot
	status    Status
}

// New wires a supervisor. metrics may be nil; a local (unregistered) set
// is created so the loop never branches on its presence.
func New(tr can.Transport, eng *engine.Engine, cfg *config.Config, clock Clock, metrics *Metrics) *Supervisor {
	if clock == nil {
		clock = RealClock()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	s := &Supervisor{
		tr:             tr,
		eng:            eng,
		clock:          clock,
		metrics:        metrics,
		pollInterval:   cfg.Reliability.PollInterval(),
		reconnectDelay: cfg.Reliability.ReconnectDelay(),
		maxExceptions:  cfg.Reliability.MaxExceptionCount,
		maxReconnects:  cfg.Reliability.MaxReconnectAttempts,
		commands:       make(chan string, 4),
		clockTr:        telemetry.NewClockTickTracker(cfg.Frames.TeslaClock),
		gearTr:         telemetry.NewGearStateTracker(cfg.Frames.Gear),
		wheelTr: telemetry.NewWheelButtonTracker(cfg.Frames.SteeringWheel,
			cfg.Modes.Advanced.TapMin(), cfg.Modes.Advanced.TapMax(), clock.Now),
	}
	s.status.State = StateReconnecting.String()
	s.status.Mode = eng.ModeName()
	return s
}

// SelectSubMode asks the run loop to switch the advanced sub-mode. The
// name is validated here so callers get a configuration error back;
// the switch itself is applied by the loop between cycles.
func (s *Supervisor) SelectSubMode(name string) error {
	switch name {
	case engine.ModeMediaVolume, engine.ModeSpeed, engine.ModeMediaBack:
	default:
		return fmt.Errorf("%w: sub-mode %q", engine.ErrUnknownMode, name)
	}
	select {
	case s.commands <- name:
		return nil
	default:
		return fmt.Errorf("supervisor: command queue full")
	}
}

// Status returns a copy of the current status snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run executes the control loop until ctx is cancelled (returns nil) or
// the reconnect budget is exhausted (returns ErrReconnectExhausted,
// wrapped). The transport handle is owned exclusively by this loop.
func (s *Supervisor) Run(ctx context.Context) error {
	log.Printf("[supervisor] starting, mode=%s transport=%s", s.eng.ModeName(), s.tr.Name())
	defer s.tr.Close()

	if err := s.tr.Open(); err != nil {
		log.Printf("[supervisor] initial connect failed: %v", err)
		if err := s.reconnect(ctx); err != nil {
			return err
		}
	} else {
		s.setState(StateConnected, 0)
		log.Printf("[supervisor] connected to %s", s.tr.Name())
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("[supervisor] shutting down")
			return nil
		case cmd := <-s.commands:
			if err := s.eng.SetSubMode(cmd); err != nil {
				log.Printf("[supervisor] sub-mode switch rejected: %v", err)
			}
		default:
		}

		if err := s.cycle(ctx); err != nil {
			return err
		}
		s.clock.Sleep(ctx, s.pollInterval)
	}
}

// cycle runs one poll/decode/tick/send iteration. It returns an error
// only for the terminal reconnect-exhausted case.
func (s *Supervisor) cycle(ctx context.Context) error {
	gesture, pollErr := s.pollFrames()
	if pollErr != nil {
		return s.noteFailure(ctx, pollErr)
	}

	s.eng.Apply(gesture)

	snap := s.snapshot()
	if act := s.eng.Tick(s.clock.Now(), snap); act != nil {
		if err := s.sendAction(ctx, act); err != nil {
			return s.noteFailure(ctx, err)
		}
	}

	s.updateStatus(snap)
	return nil
}

// pollFrames drains pending frames into the trackers. Telemetry is fully
// applied before the same cycle's engine tick, so ordering is
// deterministic. Only the latest gesture in a batch survives; gestures
// are sparse enough that coalescing is harmless.
func (s *Supervisor) pollFrames() (telemetry.Gesture, error) {
	gesture := telemetry.GestureNone
	for i := 0; i < maxFramesPerCycle; i++ {
		f, ok, err := s.tr.Poll()
		if err != nil {
			return gesture, fmt.Errorf("poll: %w", err)
		}
		s.noteSuccess()
		if !ok {
			break
		}
		s.clockTr.Observe(f)
		s.gearTr.Observe(f)
		if g := s.wheelTr.Observe(f); g != telemetry.GestureNone {
			gesture = g
		}
	}
	return gesture, nil
}

// sendAction writes the action's frames with the configured gap between
// them. A frame is atomic at the transport: a failed send leaves no
// partial frame on the wire, so bailing mid-action is safe.
func (s *Supervisor) sendAction(ctx context.Context, act *engine.Action) error {
	for i, f := range act.Frames {
		if i > 0 && act.Gap > 0 {
			s.clock.Sleep(ctx, act.Gap)
			if ctx.Err() != nil {
				return nil
			}
		}
		if err := s.tr.Send(f); err != nil {
			return fmt.Errorf("send %s: %w", act.Name, err)
		}
		s.noteSuccess()
		s.metrics.FramesSent.Inc()
		s.mu.Lock()
		s.status.FramesSent++
		s.status.LastAction = act.Name
		s.mu.Unlock()
	}
	log.Printf("[supervisor] fired %s (%d frames)", act.Name, len(act.Frames))
	return nil
}

// snapshot reads the trackers into a telemetry value for this cycle.
func (s *Supervisor) snapshot() telemetry.Snapshot {
	count := s.clockTr.Count()
	s.mu.Lock()
	delta := count - s.lastCount
	s.lastCount = count
	s.mu.Unlock()
	return telemetry.Snapshot{
		Tick:        s.clockTr.CurrentTick(),
		Count:       count,
		TickDelta:   delta,
		ClockSynced: s.clockTr.Synced(),
		Gear:        s.gearTr.CurrentGear(),
	}
}

// noteSuccess resets the exception budget: any successful transport call
// proves the device is alive.
func (s *Supervisor) noteSuccess() {
	s.mu.Lock()
	s.budget = 0
	s.mu.Unlock()
}

// noteFailure counts one transport failure against the budget and starts
// a reconnection round when the budget is spent. The returned error is
// non-nil only when reconnection is exhausted.
func (s *Supervisor) noteFailure(ctx context.Context, cause error) error {
	s.metrics.TransportErrors.Inc()
	s.mu.Lock()
	s.budget++
	budget := s.budget
	s.status.TransportErrors++
	s.mu.Unlock()

	log.Printf("[supervisor] transport failure (%d/%d): %v", budget, s.maxExceptions, cause)
	if budget < s.maxExceptions {
		return nil
	}
	return s.reconnect(ctx)
}

// reconnect closes the handle and retries opening it, pausing
// reconnectDelay before each attempt. Gives up after maxReconnects
// consecutive failures with the terminal error.
func (s *Supervisor) reconnect(ctx context.Context) error {
	s.metrics.Reconnects.Inc()
	s.mu.Lock()
	s.status.Reconnects++
	s.mu.Unlock()
	s.tr.Close()

	for attempt := 1; attempt <= s.maxReconnects; attempt++ {
		s.setState(StateReconnecting, attempt)
		s.clock.Sleep(ctx, s.reconnectDelay)
		if ctx.Err() != nil {
			return nil
		}
		if err := s.tr.Open(); err != nil {
			log.Printf("[supervisor] reconnect attempt %d/%d failed: %v", attempt, s.maxReconnects, err)
			continue
		}
		s.noteSuccess()
		s.setState(StateConnected, 0)
		log.Printf("[supervisor] reconnected (attempt %d)", attempt)
		return nil
	}

	s.setState(StateFailed, s.maxReconnects)
	log.Printf("[supervisor] giving up after %d reconnect attempts", s.maxReconnects)
	return fmt.Errorf("%w (after %d attempts)", ErrReconnectExhausted, s.maxReconnects)
}

func (s *Supervisor) setState(st State, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	s.attempt = attempt
	s.status.State = st.String()
	s.status.Attempt = attempt
	s.metrics.ConnectionState.Set(float64(st))
}

// updateStatus refreshes the published snapshot after a cycle.
func (s *Supervisor) updateStatus(snap telemetry.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Mode = s.eng.ModeName()
	s.status.SubMode = s.eng.ActiveSubMode()
	s.status.Enabled = s.eng.Enabled()
	s.status.Gear = snap.Gear.String()
	s.status.Tick = snap.Tick
	s.status.TickCount = snap.Count
	s.status.LastFire = s.eng.LastFire()
}
