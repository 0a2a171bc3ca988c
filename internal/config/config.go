// Package config holds the runtime configuration for the barrier-sensor
// daemon, decoded from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is the full configuration surface of the daemon. Every field has a
// default matching the shipped firmware constants, so an empty environment
// yields a working device on the standard wiring.
type Config struct {
	// Device identity. Must be unique across the fleet: a duplicated
	// client id causes broker-side session takeover between devices.
	DeviceID string `env:"BARRIER_DEVICE_ID,default=barrier-001" description:"fleet-unique device identifier, used as MQTT client id"`

	// MQTT broker.
	BrokerHost     string `env:"MQTT_BROKER_HOST,default=192.168.100.73" description:"broker host or IP"`
	BrokerPort     int    `env:"MQTT_BROKER_PORT,default=1883" description:"broker TCP port"`
	BrokerUser     string `env:"MQTT_USER,default=" description:"broker username (blank if not required)"`
	BrokerPassword string `env:"MQTT_PASSWORD,default=" description:"broker password (blank if not required)"`
	TopicState     string `env:"MQTT_TOPIC_STATE,default=sensors/barrier/state" description:"state change topic (must match backend subscription)"`
	TopicHeartbeat string `env:"MQTT_TOPIC_HEARTBEAT,default=sensors/barrier/heartbeat" description:"heartbeat topic"`

	// Sensor wiring.
	SensorPin       int  `env:"SENSOR_PIN,default=27" description:"BCM pin the sensor output is wired to"`
	SensorPullUp    bool `env:"SENSOR_USE_PULLUP,default=true" description:"enable pull-up (simple switch/contact to GND)"`
	SensorActiveLow bool `env:"SENSOR_ACTIVE_LOW,default=true" description:"sensor outputs LOW when the beam is broken"`

	// Timing.
	PollInterval      time.Duration `env:"POLL_INTERVAL,default=10ms" description:"sensor polling cadence"`
	DebounceDelay     time.Duration `env:"SENSOR_DEBOUNCE_DELAY,default=50ms" description:"time the raw signal must hold before a transition commits"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=60s" description:"liveness publication interval (0 disables)"`

	// Connectivity.
	WifiInterface     string        `env:"WIFI_INTERFACE,default=wlan0" description:"wireless interface name"`
	JoinTimeout       time.Duration `env:"WIFI_JOIN_TIMEOUT,default=15s" description:"bound on a single association attempt"`
	PortalTimeout     time.Duration `env:"WIFI_PORTAL_TIMEOUT,default=180s" description:"provisioning portal window before trying fallback"`
	PortalAddr        string        `env:"WIFI_PORTAL_ADDR,default=:80" description:"provisioning portal listen address"`
	FallbackSSID      string        `env:"WIFI_FALLBACK_SSID,default=" description:"optional fallback network (blank disables fallback)"`
	FallbackPassword  string        `env:"WIFI_FALLBACK_PASSWORD,default=" description:"fallback network password"`
	FallbackTimeout   time.Duration `env:"WIFI_FALLBACK_TIMEOUT,default=20s" description:"bound on the fallback association attempt"`
	ReconnectAttempts int           `env:"WIFI_RECONNECT_ATTEMPTS,default=5" description:"failed rejoins after link loss before re-opening the portal"`
	CredentialsPath   string        `env:"WIFI_CREDENTIALS_PATH,default=/var/lib/barrier-sensor/wifi.json" description:"last-known credentials store"`
}

// FromEnv decodes the configuration from the environment.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// BrokerURL returns the broker address in the form the MQTT client expects.
func (c *Config) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.BrokerHost, c.BrokerPort)
}

// HasFallback reports whether compile-time/environment fallback credentials
// are configured and non-empty.
func (c *Config) HasFallback() bool {
	return c.FallbackSSID != ""
}
