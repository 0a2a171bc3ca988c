// Package status provides a thread-safe status tracker for the
// barrier-sensor daemon. It feeds the heartbeat payload and the diagnostic
// summary emitted on every heartbeat.
package status

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/terelina/barrier-sensor/internal/sensor"
	"github.com/terelina/barrier-sensor/internal/wifi"
)

// Config contains daemon configuration for display.
type Config struct {
	DeviceID    string
	Broker      string
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
}

// Snapshot is a point-in-time view of daemon state. It is a value type,
// safe to use after the lock is released.
type Snapshot struct {
	Sensor        sensor.State
	Primed        bool
	Counts        sensor.Counts
	Conn          wifi.ConnState
	MQTTConnected bool
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the sensor state and counters. Called from the scheduler loop
// on every tick.
func (t *Tracker) Update(state sensor.State, primed bool, counts sensor.Counts) {
	t.mu.Lock()
	t.snap.Sensor = state
	t.snap.Primed = primed
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetConnState sets the connectivity state.
func (t *Tracker) SetConnState(s wifi.ConnState) {
	t.mu.Lock()
	t.snap.Conn = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the broker session status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// LogSummary emits the diagnostic status summary for a snapshot.
func LogSummary(snap Snapshot, freeMemory uint64) {
	log.WithFields(log.Fields{
		"sensor":      string(snap.Sensor),
		"wifi":        string(snap.Conn),
		"mqtt":        snap.MQTTConnected,
		"clear":       snap.Counts.Clear,
		"interrupted": snap.Counts.Interrupted,
		"uptime":      snap.Uptime().Truncate(time.Second).String(),
		"free_memory": freeMemory,
	}).Info("status")
}
