// Package status provides a thread-safe status tracker for the relay agent.
// It is written by the command loop and read by HTTP handlers and
// lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/relay-agent/internal/command"
	"github.com/sweeney/relay-agent/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Broker        string
	ClientID      string
	TopicPrefix   string
	PayloadFormat string
	HeartbeatMs   int64
	HTTPAddr      string
	Lines         []int
	Interlocks    []logic.Rule
}

// CommandCounts tracks command outcomes since startup.
type CommandCounts struct {
	Success      int
	Failed       int
	DecodeFailed int
	Transitions  int
}

// LastCommand describes the most recently handled command.
type LastCommand struct {
	ID      string
	Channel string
	Status  command.Status
	Error   string
	At      time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Relays        []logic.State
	Counts        CommandCounts
	LastCommand   *LastCommand
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTState     string
	Network       *NetworkInfo
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

// NewTracker creates a Tracker for n relays, all off.
func NewTracker(startTime time.Time, n int, cfg Config) *Tracker {
	relays := make([]logic.State, n)
	for i := range relays {
		relays[i] = logic.StateOff
	}
	return &Tracker{
		snap: Snapshot{
			Relays:    relays,
			StartTime: startTime,
			Config:    cfg,
			MQTTState: "disconnected",
		},
	}
}

// SetRelays replaces the relay states.
func (t *Tracker) SetRelays(states []logic.State) {
	cp := append([]logic.State(nil), states...)
	t.mu.Lock()
	t.snap.Relays = cp
	t.mu.Unlock()
}

// RecordCommand counts the outcome of a handled command.
func (t *Tracker) RecordCommand(r command.Result, at time.Time) {
	last := &LastCommand{
		ID:      r.Command.CommandID,
		Channel: r.Command.Channel.String(),
		Status:  r.Ack.Status,
		At:      at,
	}
	if r.Err != nil {
		last.Error = r.Err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case r.Ack.DecodeFailed:
		t.snap.Counts.DecodeFailed++
		last.Channel = ""
	case r.Ack.Status == command.StatusSuccess:
		t.snap.Counts.Success++
	default:
		t.snap.Counts.Failed++
	}
	t.snap.Counts.Transitions += len(r.Transitions)
	t.snap.LastCommand = last
}

// SetMQTT sets the MQTT connection status.
func (t *Tracker) SetMQTT(connected bool, state string) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.MQTTState = state
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Relays = append([]logic.State(nil), t.snap.Relays...)
	if t.snap.LastCommand != nil {
		lc := *t.snap.LastCommand
		s.LastCommand = &lc
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
