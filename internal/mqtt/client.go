package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/terelina/barrier-sensor/internal/sensor"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// ClientOptions configures the broker client.
type ClientOptions struct {
	BrokerURL string
	// ClientID must be fleet-unique. A duplicate id among devices causes
	// broker-side session takeover; that is an accepted operational
	// constraint, not detected or resolved here.
	ClientID       string
	Username       string
	Password       string
	TopicState     string
	TopicHeartbeat string

	// NetworkUp is the connectivity predicate. No broker action is
	// attempted while it reports false.
	NetworkUp func() bool
}

// Client is the real broker client. The session exists only while the
// network predicate holds and is recreated from scratch on every reconnect.
//
// Not safe for concurrent use; all methods are called from the single
// scheduler loop.
type Client struct {
	opts   ClientOptions
	client paho.Client
}

// NewClient creates a broker client. No connection is attempted until the
// first EnsureConnected.
func NewClient(opts ClientOptions) *Client {
	if opts.TopicState == "" {
		opts.TopicState = DefaultTopicState
	}
	if opts.TopicHeartbeat == "" {
		opts.TopicHeartbeat = DefaultTopicHeartbeat
	}
	return &Client{opts: opts}
}

// EnsureConnected opens a session if the network is up and none is active.
func (c *Client) EnsureConnected() bool {
	if c.opts.NetworkUp != nil && !c.opts.NetworkUp() {
		c.dropSession()
		return false
	}

	if c.IsConnected() {
		return true
	}
	c.dropSession()

	opts := paho.NewClientOptions().
		AddBroker(c.opts.BrokerURL).
		SetClientID(c.opts.ClientID).
		SetAutoReconnect(false).
		SetConnectTimeout(connectTimeout)
	if c.opts.Username != "" {
		opts.SetUsername(c.opts.Username).SetPassword(c.opts.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warnf("mqtt: connection lost: %v", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnf("mqtt: connect to %s timed out", c.opts.BrokerURL)
		return false
	}
	if err := token.Error(); err != nil {
		log.Warnf("mqtt: connect to %s: %v", c.opts.BrokerURL, err)
		return false
	}

	c.client = client
	log.Infof("mqtt: session opened to %s as %q", c.opts.BrokerURL, c.opts.ClientID)
	return true
}

// PublishState sends a state change event. QoS 1 with a bounded wait; a
// failure drops the event.
func (c *Client) PublishState(event sensor.StateChangeEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return c.publish(c.opts.TopicState, payload)
}

// PublishHeartbeat sends a liveness event, same semantics as PublishState.
func (c *Client) PublishHeartbeat(event sensor.HeartbeatEvent) error {
	payload, err := FormatHeartbeatPayload(event)
	if err != nil {
		return fmt.Errorf("format heartbeat payload: %w", err)
	}
	return c.publish(c.opts.TopicHeartbeat, payload)
}

func (c *Client) publish(topic string, payload []byte) error {
	if !c.IsConnected() {
		return ErrSessionNotActive
	}

	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Loop discards a session that died since the last cycle, so the next
// EnsureConnected opens a fresh one.
func (c *Client) Loop() {
	if c.client == nil {
		return
	}
	if (c.opts.NetworkUp != nil && !c.opts.NetworkUp()) || !c.client.IsConnectionOpen() {
		log.Warnf("mqtt: session no longer active, discarding")
		c.dropSession()
	}
}

// IsConnected reports whether a broker session is active.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close tears the session down.
func (c *Client) Close() error {
	c.dropSession()
	return nil
}

func (c *Client) dropSession() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(250)
	c.client = nil
}
