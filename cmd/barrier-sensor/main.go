// Command barrier-sensor watches an optical barrier on a GPIO line and
// publishes debounced state changes and heartbeats to MQTT, keeping the
// device on Wi-Fi through a provisioning portal when needed.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/terelina/barrier-sensor/internal/config"
	"github.com/terelina/barrier-sensor/internal/gpio"
	"github.com/terelina/barrier-sensor/internal/mqtt"
	"github.com/terelina/barrier-sensor/internal/portal"
	"github.com/terelina/barrier-sensor/internal/sensor"
	"github.com/terelina/barrier-sensor/internal/status"
	"github.com/terelina/barrier-sensor/internal/wifi"
)

func main() {
	printState := flag.Bool("print-state", false, "Read the sensor once, print its state and exit")
	portalOnly := flag.Bool("portal", false, "Serve the provisioning portal standalone, store submitted credentials and exit")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *portalOnly {
		if err := runPortalOnly(cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// runPortalOnly serves the provisioning portal without the hotspot or the
// sensor loop, so credentials can be staged over an existing connection.
func runPortalOnly(cfg *config.Config) error {
	apName := wifi.APName(cfg.WifiInterface)
	link := wifi.NewNMLink(cfg.WifiInterface, cfg.CredentialsPath)
	srv := portal.New(cfg.PortalAddr, apName)
	if err := srv.Open(); err != nil {
		return fmt.Errorf("open portal: %w", err)
	}
	defer srv.Close()
	log.Infof("portal %q serving on %s, waiting for credentials", apName, cfg.PortalAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case s := <-sigCh:
			log.Infof("received %v, exiting", s)
			return nil
		case <-ticker.C:
			if err := srv.Err(); err != nil {
				return fmt.Errorf("portal: %w", err)
			}
			creds, ok := srv.Submitted()
			if !ok {
				continue
			}
			if err := link.Remember(creds); err != nil {
				return fmt.Errorf("persist credentials: %w", err)
			}
			log.Infof("credentials for %q stored at %s", creds.SSID, cfg.CredentialsPath)
			return nil
		}
	}
}

func run(cfg *config.Config, printState bool) error {
	// Initialize GPIO
	reader, err := gpio.NewRealReader(cfg.SensorPin, cfg.SensorPullUp, cfg.SensorActiveLow)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	// Print state mode
	if printState {
		raw, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("sensor: %s\n", stateString(raw))
		return nil
	}

	// Connectivity: link, portal and supervisor
	apName := wifi.APName(cfg.WifiInterface)
	link := wifi.NewNMLink(cfg.WifiInterface, cfg.CredentialsPath)
	portalSrv := portal.New(cfg.PortalAddr, apName)
	supervisor := wifi.NewSupervisor(link, portalSrv, wifi.Options{
		APName:            apName,
		JoinTimeout:       cfg.JoinTimeout,
		PortalTimeout:     cfg.PortalTimeout,
		Fallback:          wifi.Credentials{SSID: cfg.FallbackSSID, Password: cfg.FallbackPassword},
		FallbackTimeout:   cfg.FallbackTimeout,
		ReconnectAttempts: cfg.ReconnectAttempts,
	})

	// Broker client, gated on the connectivity predicate
	publisher := mqtt.NewClient(mqtt.ClientOptions{
		BrokerURL:      cfg.BrokerURL(),
		ClientID:       cfg.DeviceID,
		Username:       cfg.BrokerUser,
		Password:       cfg.BrokerPassword,
		TopicState:     cfg.TopicState,
		TopicHeartbeat: cfg.TopicHeartbeat,
		NetworkUp:      supervisor.IsConnected,
	})
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:    cfg.DeviceID,
		Broker:      cfg.BrokerURL(),
		PollMs:      cfg.PollInterval.Milliseconds(),
		DebounceMs:  cfg.DebounceDelay.Milliseconds(),
		HeartbeatMs: cfg.HeartbeatInterval.Milliseconds(),
	})

	log.Infof("started: device=%s poll=%v debounce=%v broker=%s heartbeat=%v ap=%s",
		cfg.DeviceID, cfg.PollInterval, cfg.DebounceDelay, cfg.BrokerURL(), cfg.HeartbeatInterval, apName)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(reader, supervisor, publisher, tracker, cfg, time.Now, ticker.C, sigCh)
}

// connectivity is the slice of the wifi supervisor runLoop needs; tests
// substitute a scripted implementation.
type connectivity interface {
	Step(now time.Time) error
	IsConnected() bool
	State() wifi.ConnState
}

// runLoop is the single cooperative control loop. Each tick it services
// connectivity and broker housekeeping, polls the debouncer, publishes
// confirmed transitions, and fires the heartbeat on its interval. Nothing in
// the loop blocks beyond the bounded broker publish wait.
func runLoop(reader gpio.Reader, supervisor connectivity, publisher mqtt.Publisher, tracker *status.Tracker, cfg *config.Config, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	debouncer := sensor.NewDebouncer(cfg.DebounceDelay)
	lastHeartbeat := startTime

	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			return nil

		case <-tick:
			t := now()

			// Connectivity and broker housekeeping first, so a
			// transition on this same tick sees fresh session state.
			if err := supervisor.Step(t); err != nil {
				// Unrecoverable provisioning failure. Exit and let
				// the process supervisor restart the device.
				return fmt.Errorf("connectivity: %w", err)
			}
			publisher.Loop()

			raw, err := reader.Read()
			if err != nil {
				log.Errorf("gpio read error: %v", err)
				continue
			}

			if tr := debouncer.Poll(raw, t); tr != nil {
				log.Infof("sensor: %s -> %s", tr.From, tr.To)
				event := sensor.StateChangeEvent{
					DeviceID:    cfg.DeviceID,
					State:       tr.To,
					TimestampMs: uint64(tr.Time.UnixMilli()),
				}
				if publisher.EnsureConnected() {
					if err := publisher.PublishState(event); err != nil {
						// Dropped, not queued.
						log.Warnf("state publish dropped: %v", err)
					}
				} else {
					log.Warnf("state publish dropped: no broker session")
				}
			}

			tracker.Update(debouncer.State(), debouncer.Primed(), debouncer.CountsSnapshot())
			tracker.SetConnState(supervisor.State())
			tracker.SetMQTTConnected(publisher.IsConnected())

			if cfg.HeartbeatInterval > 0 && t.Sub(lastHeartbeat) >= cfg.HeartbeatInterval {
				lastHeartbeat = t
				freeMemory := status.FreeMemoryBytes()
				hb := sensor.HeartbeatEvent{
					DeviceID:        cfg.DeviceID,
					UptimeMs:        uint64(t.Sub(startTime).Milliseconds()),
					FreeMemoryBytes: freeMemory,
					State:           debouncer.State(),
					Counts:          debouncer.CountsSnapshot(),
				}
				if publisher.EnsureConnected() {
					if err := publisher.PublishHeartbeat(hb); err != nil {
						log.Warnf("heartbeat publish dropped: %v", err)
					}
				} else {
					log.Warnf("heartbeat publish dropped: no broker session")
				}
				status.LogSummary(tracker.Snapshot(), freeMemory)
			}
		}
	}
}

func stateString(interrupted bool) string {
	if interrupted {
		return "INTERRUPTED"
	}
	return "CLEAR"
}
