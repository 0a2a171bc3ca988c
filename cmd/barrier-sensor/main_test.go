package main

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/terelina/barrier-sensor/internal/config"
	"github.com/terelina/barrier-sensor/internal/gpio"
	"github.com/terelina/barrier-sensor/internal/mqtt"
	"github.com/terelina/barrier-sensor/internal/sensor"
	"github.com/terelina/barrier-sensor/internal/status"
	"github.com/terelina/barrier-sensor/internal/wifi"
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from
// runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// fakeConn is a scripted connectivity supervisor.
type fakeConn struct {
	connected bool
	state     wifi.ConnState
	stepErr   error
	steps     int
}

func (c *fakeConn) Step(now time.Time) error {
	c.steps++
	return c.stepErr
}

func (c *fakeConn) IsConnected() bool     { return c.connected }
func (c *fakeConn) State() wifi.ConnState { return c.state }

// scriptedPublisher overrides EnsureConnected with per-call results, so the
// session can "drop" at an exact point in the loop's own goroutine.
type scriptedPublisher struct {
	*mqtt.FakePublisher
	script []bool
	calls  int
}

func (p *scriptedPublisher) EnsureConnected() bool {
	ok := true
	if p.calls < len(p.script) {
		ok = p.script[p.calls]
	}
	p.calls++
	p.FakePublisher.Connected = ok
	return ok
}

func testConfig(debounce, heartbeat time.Duration) *config.Config {
	return &config.Config{
		DeviceID:          "barrier-test",
		PollInterval:      10 * time.Millisecond,
		DebounceDelay:     debounce,
		HeartbeatInterval: heartbeat,
	}
}

// runRunLoop drives runLoop with nTicks ticks and then a SIGTERM, returning
// the loop's error. Fakes are safe to inspect once it returns.
func runRunLoop(t *testing.T, reader gpio.Reader, conn connectivity, pub mqtt.Publisher, cfg *config.Config, clock func() time.Time, nTicks int) error {
	t.Helper()

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	tracker := status.NewTracker(time.Now(), status.Config{})

	done := make(chan error, 1)
	go func() {
		done <- runLoop(reader, conn, pub, tracker, cfg, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		select {
		case tick <- time.Time{}:
		case err := <-done:
			// Loop exited before consuming all ticks (fatal path).
			return err
		}
	}

	sig <- syscall.SIGTERM
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not exit after SIGTERM")
		return nil
	}
}

func TestRunLoopPublishesTransition(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader := gpio.NewFakeReader([]bool{false, false, false, true})
	conn := &fakeConn{connected: true, state: wifi.StateConnected}
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	cfg := testConfig(40*time.Millisecond, 0)

	err := runRunLoop(t, reader, conn, pub, cfg, fakeClock(start, 10*time.Millisecond), 15)
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(pub.StateEvents) != 1 {
		t.Fatalf("published %d state events, want 1", len(pub.StateEvents))
	}
	event := pub.StateEvents[0]
	if event.DeviceID != "barrier-test" {
		t.Errorf("DeviceID = %q, want barrier-test", event.DeviceID)
	}
	if event.State != sensor.StateInterrupted {
		t.Errorf("State = %s, want INTERRUPTED", event.State)
	}
	if event.TimestampMs == 0 {
		t.Error("TimestampMs should be set from the loop clock")
	}

	if conn.steps != 15 {
		t.Errorf("supervisor stepped %d times, want 15 (every cycle)", conn.steps)
	}
	if pub.LoopCalls != 15 {
		t.Errorf("publisher Loop called %d times, want 15 (every cycle)", pub.LoopCalls)
	}
}

func TestRunLoopDropsWithoutSession(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader := gpio.NewFakeReader([]bool{false, false, false, true})
	conn := &fakeConn{connected: false, state: wifi.StateProvisioning}
	pub := mqtt.NewFakePublisher() // Connected stays false
	cfg := testConfig(40*time.Millisecond, 0)

	err := runRunLoop(t, reader, conn, pub, cfg, fakeClock(start, 10*time.Millisecond), 15)
	if err != nil {
		t.Fatalf("runLoop must not fail on a dropped publish: %v", err)
	}
	if len(pub.StateEvents) != 0 {
		t.Errorf("published %d events without a session, want 0", len(pub.StateEvents))
	}
}

// TestRunLoopNoBackfill covers the session-gap semantics: a transition during
// the gap is lost; after the session reopens only new transitions go out.
func TestRunLoopNoBackfill(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	// Interrupted burst confirmed around tick 7, clear again around tick 12.
	reader := gpio.NewFakeReader([]bool{false, false, true, true, true, true, true, false})
	conn := &fakeConn{connected: true, state: wifi.StateConnected}
	pub := &scriptedPublisher{
		FakePublisher: mqtt.NewFakePublisher(),
		// First transition hits a dead session, second finds it reopened.
		script: []bool{false, true},
	}
	cfg := testConfig(40*time.Millisecond, 0)

	err := runRunLoop(t, reader, conn, pub, cfg, fakeClock(start, 10*time.Millisecond), 14)
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(pub.StateEvents) != 1 {
		t.Fatalf("published %d events, want 1 (no backfill of the dropped one)", len(pub.StateEvents))
	}
	if pub.StateEvents[0].State != sensor.StateClear {
		t.Errorf("published state = %s, want CLEAR (the post-gap transition)", pub.StateEvents[0].State)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader := gpio.NewFakeReader([]bool{false})
	conn := &fakeConn{connected: true, state: wifi.StateConnected}
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	cfg := testConfig(40*time.Millisecond, 50*time.Millisecond)

	err := runRunLoop(t, reader, conn, pub, cfg, fakeClock(start, 10*time.Millisecond), 12)
	if err != nil {
		t.Fatalf("runLoop: %v", err)
	}

	if len(pub.Heartbeats) != 2 {
		t.Fatalf("published %d heartbeats, want 2", len(pub.Heartbeats))
	}
	hb := pub.Heartbeats[0]
	if hb.DeviceID != "barrier-test" {
		t.Errorf("DeviceID = %q, want barrier-test", hb.DeviceID)
	}
	if hb.UptimeMs != 50 {
		t.Errorf("first heartbeat UptimeMs = %d, want 50", hb.UptimeMs)
	}
	if hb.FreeMemoryBytes == 0 {
		t.Error("FreeMemoryBytes should be populated")
	}
	if pub.Heartbeats[1].UptimeMs != 100 {
		t.Errorf("second heartbeat UptimeMs = %d, want 100", pub.Heartbeats[1].UptimeMs)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader := gpio.NewFakeReader([]bool{false})
	conn := &fakeConn{connected: true, state: wifi.StateConnected}
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	cfg := testConfig(40*time.Millisecond, 0)

	if err := runRunLoop(t, reader, conn, pub, cfg, fakeClock(start, 10*time.Millisecond), 20); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if len(pub.Heartbeats) != 0 {
		t.Errorf("published %d heartbeats with interval 0, want 0", len(pub.Heartbeats))
	}
}

// TestRunLoopFatalConnectivityError covers the one restart path: the
// supervisor reporting an unrecoverable provisioning failure.
func TestRunLoopFatalConnectivityError(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader := gpio.NewFakeReader([]bool{false})
	conn := &fakeConn{stepErr: errors.New("portal gone")}
	pub := mqtt.NewFakePublisher()
	cfg := testConfig(40*time.Millisecond, 0)

	err := runRunLoop(t, reader, conn, pub, cfg, fakeClock(start, 10*time.Millisecond), 5)
	if err == nil {
		t.Fatal("expected fatal error from connectivity supervisor")
	}
}

// faultReader returns errors for a range of Read() calls, then delegates.
type faultReader struct {
	inner      *gpio.FakeReader
	call       int
	faultStart int // first call index that returns error (inclusive)
	faultEnd   int // last call index that returns error (exclusive)
}

func (r *faultReader) Read() (bool, error) {
	i := r.call
	r.call++
	if i >= r.faultStart && i < r.faultEnd {
		return false, errors.New("gpio fault")
	}
	return r.inner.Read()
}

func (r *faultReader) Close() error { return r.inner.Close() }

func TestRunLoopSurvivesGPIOErrors(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reader := &faultReader{
		inner:      gpio.NewFakeReader([]bool{false, false, false, true}),
		faultStart: 1,
		faultEnd:   3,
	}
	conn := &fakeConn{connected: true, state: wifi.StateConnected}
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	cfg := testConfig(40*time.Millisecond, 0)

	err := runRunLoop(t, reader, conn, pub, cfg, fakeClock(start, 10*time.Millisecond), 15)
	if err != nil {
		t.Fatalf("runLoop must ride out read errors: %v", err)
	}
	if len(pub.StateEvents) != 1 {
		t.Errorf("published %d events, want 1 after the fault window", len(pub.StateEvents))
	}
}

func TestStateString(t *testing.T) {
	if got := stateString(false); got != "CLEAR" {
		t.Errorf("stateString(false) = %q, want CLEAR", got)
	}
	if got := stateString(true); got != "INTERRUPTED" {
		t.Errorf("stateString(true) = %q, want INTERRUPTED", got)
	}
}
