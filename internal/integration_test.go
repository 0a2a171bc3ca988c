package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/terelina/barrier-sensor/internal/gpio"
	"github.com/terelina/barrier-sensor/internal/mqtt"
	"github.com/terelina/barrier-sensor/internal/sensor"
	"github.com/terelina/barrier-sensor/internal/wifi"
)

// stubPortal is a minimal wifi.Portal for wiring the supervisor in tests.
type stubPortal struct {
	queued *wifi.Credentials
	open   bool
}

func (p *stubPortal) Open() error  { p.open = true; return nil }
func (p *stubPortal) Close() error { p.open = false; return nil }
func (p *stubPortal) Err() error   { return nil }

func (p *stubPortal) Submitted() (wifi.Credentials, bool) {
	if p.queued == nil {
		return wifi.Credentials{}, false
	}
	creds := *p.queued
	p.queued = nil
	return creds, true
}

// TestIntegrationProvisionThenPublish walks the whole device flow on fakes:
// boot without credentials, provision through the portal, confirm a debounced
// transition, and check the exact wire payload that reaches the broker.
func TestIntegrationProvisionThenPublish(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	link := &wifi.FakeLink{}
	portal := &stubPortal{}
	supervisor := wifi.NewSupervisor(link, portal, wifi.Options{APName: "Terelina-3FA2"})

	// Beam clear at boot, then a car arrives.
	reader := gpio.NewFakeReader([]bool{false, false, false, true})
	debouncer := sensor.NewDebouncer(40 * time.Millisecond)
	publisher := mqtt.NewFakePublisher()

	// Boot: no stored credentials, so the supervisor opens the portal.
	if err := supervisor.Step(t0); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if supervisor.State() != wifi.StateProvisioning {
		t.Fatalf("state = %s, want PROVISIONING", supervisor.State())
	}
	if !portal.open {
		t.Fatal("portal should be serving")
	}

	// Operator submits credentials; they validate.
	portal.queued = &wifi.Credentials{SSID: "garage", Password: "pw"}
	supervisor.Step(t0.Add(30 * time.Second))
	link.UpNow = true
	supervisor.Step(t0.Add(32 * time.Second))
	if !supervisor.IsConnected() {
		t.Fatalf("supervisor should be connected, state = %s", supervisor.State())
	}
	publisher.Connected = supervisor.IsConnected()

	// Drive the sensor path the way the scheduler does.
	var published int
	now := t0.Add(40 * time.Second)
	for i := 0; i < 15; i++ {
		now = now.Add(10 * time.Millisecond)
		raw, err := reader.Read()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		tr := debouncer.Poll(raw, now)
		if tr == nil {
			continue
		}
		event := sensor.StateChangeEvent{
			DeviceID:    "barrier-007",
			State:       tr.To,
			TimestampMs: uint64(tr.Time.UnixMilli()),
		}
		if publisher.EnsureConnected() {
			if err := publisher.PublishState(event); err != nil {
				t.Fatalf("publish: %v", err)
			}
			published++
		}
	}

	if published != 1 {
		t.Fatalf("published %d transitions, want 1", published)
	}
	if len(publisher.StatePayloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(publisher.StatePayloads))
	}

	var payload mqtt.StatePayload
	if err := json.Unmarshal(publisher.StatePayloads[0], &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.ID != "barrier-007" {
		t.Errorf("id = %q, want barrier-007", payload.ID)
	}
	if payload.State != "ocupada" {
		t.Errorf("state = %q, want ocupada", payload.State)
	}
	if payload.TimestampMs == 0 {
		t.Error("timestamp_ms should be set")
	}
}

// TestIntegrationLinkLossDropsEvents checks the no-queue delivery semantics
// end to end: transitions during a connectivity gap are lost for good.
func TestIntegrationLinkLossDropsEvents(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	link := &wifi.FakeLink{HasLast: true, Last: wifi.Credentials{SSID: "garage"}, UpNow: true}
	supervisor := wifi.NewSupervisor(link, &stubPortal{}, wifi.Options{APName: "Terelina-3FA2"})
	supervisor.Step(t0)
	if !supervisor.IsConnected() {
		t.Fatal("expected boot join to succeed")
	}

	debouncer := sensor.NewDebouncer(40 * time.Millisecond)
	publisher := mqtt.NewFakePublisher()
	publisher.Connected = true

	// Occupied confirmed while connected.
	now := t0
	feed := func(raw bool, n int) *sensor.Transition {
		var last *sensor.Transition
		for i := 0; i < n; i++ {
			now = now.Add(10 * time.Millisecond)
			if tr := debouncer.Poll(raw, now); tr != nil {
				last = tr
			}
		}
		return last
	}

	feed(false, 2)
	tr := feed(true, 6)
	if tr == nil {
		t.Fatal("expected first transition")
	}
	if err := publisher.PublishState(sensor.StateChangeEvent{DeviceID: "b", State: tr.To}); err != nil {
		t.Fatalf("publish while connected: %v", err)
	}

	// Link drops; the next confirmed transition is attempted and lost.
	link.UpNow = false
	supervisor.Step(now)
	publisher.Connected = supervisor.IsConnected()

	tr = feed(false, 6)
	if tr == nil {
		t.Fatal("expected second transition")
	}
	if err := publisher.PublishState(sensor.StateChangeEvent{DeviceID: "b", State: tr.To}); err == nil {
		t.Fatal("publish during gap should fail")
	}

	if len(publisher.StateEvents) != 1 {
		t.Fatalf("recorded %d events, want 1 (gap event dropped)", len(publisher.StateEvents))
	}
	if publisher.StateEvents[0].State != sensor.StateInterrupted {
		t.Errorf("surviving event = %s, want INTERRUPTED", publisher.StateEvents[0].State)
	}
}
