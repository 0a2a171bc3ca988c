// Package mqtt maintains the publish-only broker session and delivers state
// change and heartbeat events.
//
// Delivery is at-least-once intended, best-effort actual: a publish that
// fails while the session is down is dropped and logged, never queued. The
// firmware carries no persistent outbound queue, so events attempted during
// a connectivity gap are lost.
package mqtt

import (
	"encoding/json"
	"errors"

	"github.com/terelina/barrier-sensor/internal/sensor"
)

// Default topics. These must match what the backend ingestion service is
// subscribed to.
const (
	DefaultTopicState     = "sensors/barrier/state"
	DefaultTopicHeartbeat = "sensors/barrier/heartbeat"
)

// ErrSessionNotActive is returned when a publish is attempted without an
// active broker session. The event is dropped.
var ErrSessionNotActive = errors.New("mqtt: session not active")

// Publisher is the broker client surface driven by the scheduler loop.
type Publisher interface {
	// EnsureConnected returns true only while a broker session is
	// active, opening one if the network is up and none exists. It
	// returns false immediately when the network is down.
	EnsureConnected() bool

	// PublishState sends a state change event to the state topic.
	// Failure drops the event; it is never retried.
	PublishState(event sensor.StateChangeEvent) error

	// PublishHeartbeat sends a liveness event to the heartbeat topic,
	// with the same delivery semantics as PublishState.
	PublishHeartbeat(event sensor.HeartbeatEvent) error

	// Loop services session housekeeping and must be called every
	// scheduler cycle. A dead session is discarded here so the next
	// EnsureConnected opens a fresh one.
	Loop()

	// IsConnected reports whether a broker session is currently active.
	IsConnected() bool

	// Close tears the session down.
	Close() error
}

// Wire state strings. These two literals are a fixed contract with the
// downstream ingestion service: "livre" = beam clear (spot free),
// "ocupada" = beam interrupted (spot occupied).
const (
	WireStateClear       = "livre"
	WireStateInterrupted = "ocupada"
)

// StatePayload is the state topic wire format.
type StatePayload struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	TimestampMs uint64 `json:"timestamp_ms"`
}

// HeartbeatPayload is the heartbeat topic wire format. Downstream treats it
// as a liveness signal only.
type HeartbeatPayload struct {
	ID              string          `json:"id"`
	UptimeMs        uint64          `json:"uptime_ms"`
	FreeMemoryBytes uint64          `json:"free_memory_bytes"`
	State           string          `json:"state"`
	Counts          HeartbeatCounts `json:"event_counts"`
}

// HeartbeatCounts carries the per-direction transition counters.
type HeartbeatCounts struct {
	Clear       int `json:"clear"`
	Interrupted int `json:"interrupted"`
}

// WireState maps the logical sensor state to its wire string.
func WireState(s sensor.State) string {
	if s == sensor.StateInterrupted {
		return WireStateInterrupted
	}
	return WireStateClear
}

// FormatStatePayload creates the JSON payload for a state change event.
func FormatStatePayload(event sensor.StateChangeEvent) ([]byte, error) {
	return json.Marshal(StatePayload{
		ID:          event.DeviceID,
		State:       WireState(event.State),
		TimestampMs: event.TimestampMs,
	})
}

// FormatHeartbeatPayload creates the JSON payload for a heartbeat event.
func FormatHeartbeatPayload(event sensor.HeartbeatEvent) ([]byte, error) {
	return json.Marshal(HeartbeatPayload{
		ID:              event.DeviceID,
		UptimeMs:        event.UptimeMs,
		FreeMemoryBytes: event.FreeMemoryBytes,
		State:           WireState(event.State),
		Counts: HeartbeatCounts{
			Clear:       event.Counts.Clear,
			Interrupted: event.Counts.Interrupted,
		},
	})
}
