// Package mqtt connects the relay agent to the broker: it receives command
// messages and publishes acknowledgments and system events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"
)

// DefaultPrefix is the root of every topic the agent uses.
const DefaultPrefix = "iot_energy"

// ErrNotConnected is returned when publishing or subscribing on a closed client.
var ErrNotConnected = errors.New("mqtt: client not connected")

// Topics builds the agent's topic names from a prefix.
type Topics struct {
	Prefix string
}

// Discrete is the command topic for the 1-based discrete relay channel.
func (t Topics) Discrete() string { return t.prefix() + "/trigger/ac" }

// Grouped is the command topic for the offset-addressed grouped channel.
func (t Topics) Grouped() string { return t.prefix() + "/trigger/conveyor/ac" }

// Shutdown is the command topic that switches every relay off.
func (t Topics) Shutdown() string { return t.prefix() + "/trigger/ac/shutdown" }

// Status is the topic acknowledgments are published on.
func (t Topics) Status() string { return t.prefix() + "/status/ac" }

// System is the topic for lifecycle events and the last will.
func (t Topics) System() string { return t.prefix() + "/system/ac" }

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// Message is an inbound command message.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Publisher publishes acknowledgments and system events.
type Publisher interface {
	// PublishAck sends an encoded acknowledgment on the status topic.
	// Returns error if publishing fails (should not crash the process).
	PublishAck(payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
	State() ConnState
}

// ConnState is the connection state machine of a client.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillEvent is the last-will message the broker publishes if the agent
// drops off without a clean disconnect.
func WillEvent(now time.Time) SystemEvent {
	return SystemEvent{
		Timestamp: now,
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
		Retained:  true,
	}
}
