package mqtt

import (
	"github.com/terelina/barrier-sensor/internal/sensor"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// Connected controls EnsureConnected and IsConnected.
	Connected bool

	// StateEvents contains all state change events that were published.
	StateEvents []sensor.StateChangeEvent

	// StatePayloads contains the JSON payloads that were published.
	StatePayloads [][]byte

	// Heartbeats contains all heartbeat events that were published.
	Heartbeats []sensor.HeartbeatEvent

	// HeartbeatPayloads contains the JSON payloads for heartbeats.
	HeartbeatPayloads [][]byte

	// PublishError, if set, is returned by PublishState and
	// PublishHeartbeat regardless of Connected.
	PublishError error

	// LoopCalls counts Loop invocations.
	LoopCalls int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// EnsureConnected returns the scripted connection state.
func (f *FakePublisher) EnsureConnected() bool {
	return f.Connected
}

// PublishState records the event, or fails like a dead session would.
func (f *FakePublisher) PublishState(event sensor.StateChangeEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	if !f.Connected {
		return ErrSessionNotActive
	}

	f.StateEvents = append(f.StateEvents, event)

	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	f.StatePayloads = append(f.StatePayloads, payload)
	return nil
}

// PublishHeartbeat records the heartbeat.
func (f *FakePublisher) PublishHeartbeat(event sensor.HeartbeatEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	if !f.Connected {
		return ErrSessionNotActive
	}

	f.Heartbeats = append(f.Heartbeats, event)

	payload, err := FormatHeartbeatPayload(event)
	if err != nil {
		return err
	}
	f.HeartbeatPayloads = append(f.HeartbeatPayloads, payload)
	return nil
}

// Loop counts the call.
func (f *FakePublisher) Loop() {
	f.LoopCalls++
}

// IsConnected returns the scripted connection state.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.StateEvents = nil
	f.StatePayloads = nil
	f.Heartbeats = nil
	f.HeartbeatPayloads = nil
	f.PublishError = nil
	f.LoopCalls = 0
	f.Closed = false
	f.Connected = false
}
