package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	retryInterval  = 5 * time.Second
)

// ClientOptions configures a RealClient.
type ClientOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics

	// QoS is used for subscriptions and acknowledgments.
	QoS byte

	// BufferSize is how many outbound messages are kept while offline.
	BufferSize int

	Logger *slog.Logger
}

// session is the part of paho.Client that RealClient drives.
type session interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// RealClient is the connection to an actual MQTT broker. paho reconnects
// on its own; RealClient tracks the connection state, restores command
// subscriptions and replays messages queued while offline.
type RealClient struct {
	client session
	topics Topics
	qos    byte
	logger *slog.Logger

	mu            sync.Mutex
	state         ConnState
	everConnected bool
	closed        bool
	buffer        *ringBuffer
	subs          map[string]paho.MessageHandler
}

// NewRealClient creates a client and starts connecting to the broker.
// If the broker is not reachable within the connect timeout the client
// keeps retrying in the background and NewRealClient still succeeds.
func NewRealClient(o ClientOptions) (*RealClient, error) {
	c := newRealClient(o)

	will, err := FormatSystemPayload(WillEvent(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetMaxReconnectInterval(time.Minute).
		SetBinaryWill(o.Topics.System(), will, 1, true).
		SetOnConnectHandler(func(paho.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { c.handleConnectionLost(err) }).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) { c.setState(StateConnecting) })
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.logger.Warn("broker not reachable yet, retrying in background", "broker", o.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return c, nil
}

func newRealClient(o ClientOptions) *RealClient {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RealClient{
		topics: o.Topics,
		qos:    o.QoS,
		logger: logger.With("component", "mqtt"),
		state:  StateConnecting,
		buffer: newRingBuffer(o.BufferSize, logger),
		subs:   make(map[string]paho.MessageHandler),
	}
}

// Subscribe registers handler for each topic. Subscriptions are restored
// after every reconnect. Handlers run in order on paho's receive goroutine
// and must not block; pass Inbox.Push to hand messages to a worker.
func (c *RealClient) Subscribe(topics []string, handler func(Message)) error {
	h := func(_ paho.Client, m paho.Message) {
		handler(Message{Topic: m.Topic(), Payload: m.Payload(), Received: time.Now()})
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	for _, t := range topics {
		c.subs[t] = h
	}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		// handleConnect subscribes once the session is up
		return nil
	}
	for _, t := range topics {
		if err := c.subscribe(t, h); err != nil {
			return err
		}
	}
	return nil
}

func (c *RealClient) subscribe(topic string, h paho.MessageHandler) error {
	token := c.client.Subscribe(topic, c.qos, h)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// PublishAck sends an encoded acknowledgment on the status topic.
func (c *RealClient) PublishAck(payload []byte) error {
	return c.publish(c.topics.Status(), c.qos, false, payload)
}

// PublishSystem sends a system lifecycle event on the system topic.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return c.publish(c.topics.System(), 1, event.Retained, payload)
}

func (c *RealClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if c.state != StateConnected {
		c.buffer.push(outbound{topic: topic, payload: payload, qos: qos, retained: retained})
		queued := c.buffer.len()
		c.mu.Unlock()
		c.logger.Debug("queued message while offline", "topic", topic, "queued", queued)
		return nil
	}
	c.mu.Unlock()

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker session is up.
func (c *RealClient) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *RealClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.client.Disconnect(1000) // 1 second timeout
	c.setState(StateDisconnected)
	return nil
}

func (c *RealClient) setState(s ConnState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Info("connection state changed", "from", prev.String(), "to", s.String())
	}
}

func (c *RealClient) handleConnect() {
	c.mu.Lock()
	c.state = StateConnected
	reconnect := c.everConnected
	c.everConnected = true
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	queued, dropped := c.buffer.drain()
	c.mu.Unlock()

	c.logger.Info("connected to broker", "reconnect", reconnect, "subscriptions", len(subs))

	for t, h := range subs {
		if err := c.subscribe(t, h); err != nil {
			c.logger.Error("restore subscription failed", "topic", t, "error", err)
		}
	}

	if reconnect {
		if err := c.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			c.logger.Warn("publish reconnected event failed", "error", err)
		}
	}

	if dropped > 0 {
		c.logger.Warn("offline buffer overflowed", "dropped", dropped)
	}
	for _, m := range queued {
		if err := c.publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			c.logger.Warn("replay queued message failed", "topic", m.topic, "error", err)
		}
	}
}

func (c *RealClient) handleConnectionLost(err error) {
	c.setState(StateDisconnected)
	c.logger.Warn("connection lost", "error", err)
}
