package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string           `json:"event,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Relays        []RelayJSON      `json:"relays"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Counts        CountsJSON       `json:"command_counts"`
	LastCommand   *LastCommandJSON `json:"last_command,omitempty"`
	Network       *NetworkJSON     `json:"network,omitempty"`
	Config        ConfigJSON       `json:"config"`
}

// RelayJSON is one relay output.
type RelayJSON struct {
	Index   int    `json:"index"`
	Line    int    `json:"line"`
	State   string `json:"state"`
	Enabler *int   `json:"enabler,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of command counts.
type CountsJSON struct {
	Success      int `json:"success"`
	Failed       int `json:"failed"`
	DecodeFailed int `json:"decode_failed"`
	Transitions  int `json:"transitions"`
}

// LastCommandJSON is the JSON representation of the last handled command.
type LastCommandJSON struct {
	CommandID string `json:"command_id"`
	Channel   string `json:"channel,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker        string `json:"broker"`
	ClientID      string `json:"client_id"`
	TopicPrefix   string `json:"topic_prefix"`
	PayloadFormat string `json:"payload_format"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	enablers := make(map[int]int, len(snap.Config.Interlocks))
	for _, r := range snap.Config.Interlocks {
		enablers[r.Dependent] = r.Enabler
	}

	relays := make([]RelayJSON, len(snap.Relays))
	for i, s := range snap.Relays {
		relays[i] = RelayJSON{Index: i, Line: -1, State: string(s)}
		if i < len(snap.Config.Lines) {
			relays[i].Line = snap.Config.Lines[i]
		}
		if e, ok := enablers[i]; ok {
			e := e
			relays[i].Enabler = &e
		}
	}

	inner := StatusInner{
		Relays:        relays,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			State:     snap.MQTTState,
			Broker:    snap.Config.Broker,
		},
		Counts: CountsJSON{
			Success:      snap.Counts.Success,
			Failed:       snap.Counts.Failed,
			DecodeFailed: snap.Counts.DecodeFailed,
			Transitions:  snap.Counts.Transitions,
		},
		Config: ConfigJSON{
			Broker:        snap.Config.Broker,
			ClientID:      snap.Config.ClientID,
			TopicPrefix:   snap.Config.TopicPrefix,
			PayloadFormat: snap.Config.PayloadFormat,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}

	if lc := snap.LastCommand; lc != nil {
		inner.LastCommand = &LastCommandJSON{
			CommandID: lc.ID,
			Channel:   lc.Channel,
			Status:    string(lc.Status),
			Error:     lc.Error,
			Timestamp: lc.At.UTC().Format(time.RFC3339),
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
