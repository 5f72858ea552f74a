package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/relay-agent/internal/command"
	"github.com/sweeney/relay-agent/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, 8, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if len(snap.Relays) != 8 {
		t.Fatalf("Relays: got %d, want 8", len(snap.Relays))
	}
	for i, s := range snap.Relays {
		if s != logic.StateOff {
			t.Errorf("relay %d: got %q, want OFF", i, s)
		}
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.LastCommand != nil {
		t.Error("expected no last command initially")
	}
}

func TestSetRelays(t *testing.T) {
	tr := NewTracker(time.Now(), 3, Config{})

	states := []logic.State{logic.StateOn, logic.StateOff, logic.StateOn}
	tr.SetRelays(states)
	states[0] = logic.StateOff

	snap := tr.Snapshot()
	if snap.Relays[0] != logic.StateOn {
		t.Error("SetRelays must copy its input")
	}
	if snap.Relays[2] != logic.StateOn {
		t.Errorf("relay 2: got %q, want ON", snap.Relays[2])
	}
}

func TestRecordCommand(t *testing.T) {
	tr := NewTracker(time.Now(), 8, Config{})
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.RecordCommand(command.Result{
		Ack:     command.Ack{CommandID: "7", Status: command.StatusSuccess},
		Command: command.Command{CommandID: "7", Channel: command.ChannelDiscrete, SetTurnOn: 3},
		Transitions: []logic.Transition{
			{Index: 2, From: logic.StateOff, To: logic.StateOn},
			{Index: 3, From: logic.StateOff, To: logic.StateOn},
		},
	}, at)
	tr.RecordCommand(command.Result{
		Ack:     command.Ack{CommandID: "8", Status: command.StatusFailed},
		Command: command.Command{CommandID: "8", Channel: command.ChannelDiscrete, SetTurnOn: 9},
		Err:     logic.ErrIndexOutOfRange,
	}, at.Add(time.Second))
	tr.RecordCommand(command.Result{
		Ack: command.DecodeFailure(),
		Err: command.ErrDecode,
	}, at.Add(2*time.Second))

	snap := tr.Snapshot()
	if snap.Counts.Success != 1 {
		t.Errorf("Success: got %d, want 1", snap.Counts.Success)
	}
	if snap.Counts.Failed != 1 {
		t.Errorf("Failed: got %d, want 1", snap.Counts.Failed)
	}
	if snap.Counts.DecodeFailed != 1 {
		t.Errorf("DecodeFailed: got %d, want 1", snap.Counts.DecodeFailed)
	}
	if snap.Counts.Transitions != 2 {
		t.Errorf("Transitions: got %d, want 2", snap.Counts.Transitions)
	}
	if snap.LastCommand == nil {
		t.Fatal("expected LastCommand")
	}
	if snap.LastCommand.Status != command.StatusFailed {
		t.Errorf("LastCommand.Status: got %q", snap.LastCommand.Status)
	}
	if snap.LastCommand.Channel != "" {
		t.Errorf("LastCommand.Channel: got %q, want empty for decode failure", snap.LastCommand.Channel)
	}
	if !snap.LastCommand.At.Equal(at.Add(2 * time.Second)) {
		t.Errorf("LastCommand.At: got %v", snap.LastCommand.At)
	}
}

func TestRecordCommandError(t *testing.T) {
	tr := NewTracker(time.Now(), 8, Config{})

	tr.RecordCommand(command.Result{
		Ack:     command.Ack{CommandID: "x", Status: command.StatusFailed},
		Command: command.Command{CommandID: "x", Channel: command.ChannelGrouped},
		Err:     errors.New("line busy"),
	}, time.Now())

	lc := tr.Snapshot().LastCommand
	if lc.Error != "line busy" {
		t.Errorf("Error: got %q, want %q", lc.Error, "line busy")
	}
	if lc.Channel != "grouped" {
		t.Errorf("Channel: got %q, want grouped", lc.Channel)
	}
	if lc.ID != "x" {
		t.Errorf("ID: got %q, want x", lc.ID)
	}
}

func TestSetMQTT(t *testing.T) {
	tr := NewTracker(time.Now(), 8, Config{})

	tr.SetMQTT(true, "connected")
	snap := tr.Snapshot()
	if !snap.MQTTConnected || snap.MQTTState != "connected" {
		t.Errorf("got connected=%v state=%q", snap.MQTTConnected, snap.MQTTState)
	}

	tr.SetMQTT(false, "connecting")
	snap = tr.Snapshot()
	if snap.MQTTConnected || snap.MQTTState != "connecting" {
		t.Errorf("got connected=%v state=%q", snap.MQTTConnected, snap.MQTTState)
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), 8, Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 8, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), 2, Config{})
	tr.SetRelays([]logic.State{logic.StateOn, logic.StateOff})
	tr.RecordCommand(command.Result{
		Ack:     command.Ack{CommandID: "1", Status: command.StatusSuccess},
		Command: command.Command{CommandID: "1", Channel: command.ChannelDiscrete},
	}, time.Now())

	snap1 := tr.Snapshot()

	tr.SetRelays([]logic.State{logic.StateOff, logic.StateOn})
	tr.RecordCommand(command.Result{
		Ack:     command.Ack{CommandID: "2", Status: command.StatusSuccess},
		Command: command.Command{CommandID: "2", Channel: command.ChannelDiscrete},
	}, time.Now())

	if snap1.Relays[0] != logic.StateOn {
		t.Error("snapshot should be a copy; relay 0 was modified")
	}
	if snap1.LastCommand == nil || snap1.LastCommand.ID != "1" {
		t.Errorf("snapshot should be a copy; last command was modified: %+v", snap1.LastCommand)
	}
	if snap1.Counts.Success != 1 {
		t.Errorf("snapshot counts changed: %d", snap1.Counts.Success)
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		Relays:        []logic.State{logic.StateOff, logic.StateOff, logic.StateOn, logic.StateOn, logic.StateOff, logic.StateOff, logic.StateOff, logic.StateOff},
		Counts:        CommandCounts{Success: 5, Failed: 2, DecodeFailed: 1, Transitions: 4},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		MQTTState:     "connected",
		Config: Config{
			Broker:        "tcp://localhost:1883",
			ClientID:      "relay-agent-test",
			TopicPrefix:   "iot_energy",
			PayloadFormat: "json",
			HeartbeatMs:   900000,
			HTTPAddr:      ":80",
			Lines:         []int{5, 6, 13, 16, 19, 20, 21, 26},
			Interlocks:    logic.DefaultRules(),
		},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(parsed.Status.Relays) != 8 {
		t.Fatalf("Relays: got %d, want 8", len(parsed.Status.Relays))
	}
	r2 := parsed.Status.Relays[2]
	if r2.State != "ON" || r2.Line != 13 {
		t.Errorf("relay 2: got %+v", r2)
	}
	if r2.Enabler == nil || *r2.Enabler != 3 {
		t.Errorf("relay 2 enabler: got %v, want 3", r2.Enabler)
	}
	if parsed.Status.Relays[3].Enabler != nil {
		t.Error("relay 3 has no enabler")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.MQTT.State != "connected" {
		t.Errorf("MQTT.State: got %q", parsed.Status.MQTT.State)
	}
	if parsed.Status.Counts.Success != 5 || parsed.Status.Counts.DecodeFailed != 1 {
		t.Errorf("Counts: got %+v", parsed.Status.Counts)
	}
	if parsed.Status.Config.ClientID != "relay-agent-test" {
		t.Errorf("Config.ClientID: got %q", parsed.Status.Config.ClientID)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONMissingLine(t *testing.T) {
	snap := testSnapshot()
	snap.Config.Lines = nil

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Relays[0].Line != -1 {
		t.Errorf("Line: got %d, want -1", parsed.Status.Relays[0].Line)
	}
}

func TestFormatJSONLastCommand(t *testing.T) {
	snap := testSnapshot()
	snap.LastCommand = &LastCommand{
		ID:      "42",
		Channel: "discrete",
		Status:  command.StatusFailed,
		Error:   "enabler held",
		At:      time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC),
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	lc := parsed.Status.LastCommand
	if lc == nil {
		t.Fatal("expected last_command")
	}
	if lc.CommandID != "42" || lc.Status != "failed" || lc.Error != "enabler held" {
		t.Errorf("LastCommand: got %+v", lc)
	}
	if lc.Timestamp != "2026-01-01T00:10:00Z" {
		t.Errorf("Timestamp: got %q", lc.Timestamp)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Relays[3].State != "ON" {
		t.Errorf("relay 3: got %q, want ON", parsed.Status.Relays[3].State)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), 8, Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetRelays(make([]logic.State, 8))
			tr.RecordCommand(command.Result{Ack: command.Ack{Status: command.StatusSuccess}}, time.Now())
			tr.SetMQTT(i%2 == 0, "connected")
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
