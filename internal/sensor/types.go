// Package sensor contains pure business logic for barrier state tracking.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package sensor

import "time"

// State represents the logical state of the barrier beam.
type State string

const (
	// StateClear means the beam is unobstructed (parking spot free).
	StateClear State = "CLEAR"
	// StateInterrupted means the beam is broken (parking spot occupied).
	StateInterrupted State = "INTERRUPTED"
)

// Transition represents a confirmed change of the stable state.
type Transition struct {
	From State
	To   State
	Time time.Time
}

// Counts tracks the number of confirmed transitions in each direction
// since startup.
type Counts struct {
	Clear       int
	Interrupted int
}

// StateChangeEvent is the immutable record published when the stable state
// changes. Consumed exactly once by the broker client; never retried.
type StateChangeEvent struct {
	DeviceID    string
	State       State
	TimestampMs uint64
}

// HeartbeatEvent is the periodic liveness record. Downstream consumers treat
// it as a liveness signal only, never as a source of truth for counts.
type HeartbeatEvent struct {
	DeviceID        string
	UptimeMs        uint64
	FreeMemoryBytes uint64
	State           State
	Counts          Counts
}

func stateFromRaw(interrupted bool) State {
	if interrupted {
		return StateInterrupted
	}
	return StateClear
}
