package telemetry

// Snapshot is a point-in-time read of the trackers, taken once per poll
// cycle and handed to the engine. It is a value: the engine never sees
// tracker state change under it mid-tick.
type Snapshot struct {
	// Tick is the raw rolling counter value from the last clock frame.
	Tick int `json:"tick"`
	// Count is the monotonic tick total since clock sync.
	Count int `json:"count"`
	// TickDelta is how many ticks arrived since the previous snapshot.
	TickDelta int `json:"tickDelta"`
	// ClockSynced is false until the first clock frame is seen.
	ClockSynced bool `json:"clockSynced"`
	// Gear is the current transmission state.
	Gear Gear `json:"gear"`
}
