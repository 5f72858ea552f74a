package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTopicsDefaultPrefix(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"discrete", topics.Discrete(), "iot_energy/trigger/ac"},
		{"grouped", topics.Grouped(), "iot_energy/trigger/conveyor/ac"},
		{"shutdown", topics.Shutdown(), "iot_energy/trigger/ac/shutdown"},
		{"status", topics.Status(), "iot_energy/status/ac"},
		{"system", topics.System(), "iot_energy/system/ac"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestTopicsCustomPrefix(t *testing.T) {
	topics := Topics{Prefix: "site1/panel2"}

	if got := topics.Discrete(); got != "site1/panel2/trigger/ac" {
		t.Errorf("discrete: got %q", got)
	}
	if got := topics.Status(); got != "site1/panel2/status/ac" {
		t.Errorf("status: got %q", got)
	}
}

func TestConnStateString(t *testing.T) {
	tests := map[ConnState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		ConnState(42):     "disconnected",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", s, s.String(), want)
		}
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	event := SystemEvent{Event: "STARTUP", RawPayload: raw}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 12, 0, 0, 0, loc),
		Event:     "RECONNECTED",
	}

	payload, _ := FormatSystemPayload(event)

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-03T10:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
	if parsed.System.Reason != "" {
		t.Errorf("RECONNECTED should not have a reason, got %q", parsed.System.Reason)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := WillEvent(time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC))

	if !event.Retained {
		t.Error("will must be retained")
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFakeClientPublishAck(t *testing.T) {
	f := NewFakeClient()

	if err := f.PublishAck([]byte(`{"commandId":"7","status":"success"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Acks) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(f.Acks))
	}
	if string(f.Acks[0]) != `{"commandId":"7","status":"success"}` {
		t.Errorf("unexpected ack: %s", f.Acks[0])
	}
}

func TestFakeClientPublishAckError(t *testing.T) {
	f := NewFakeClient()
	f.PublishAckError = errors.New("simulated error")

	if err := f.PublishAck([]byte(`{}`)); err == nil {
		t.Error("expected error")
	}
	if len(f.Acks) != 0 {
		t.Errorf("expected no acks recorded on error, got %d", len(f.Acks))
	}
}

func TestFakeClientPublishSystem(t *testing.T) {
	f := NewFakeClient()

	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "STARTUP",
		Retained:  true,
	}
	if err := f.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.SystemEvents) != 1 || len(f.SystemPayloads) != 1 {
		t.Fatalf("expected 1 system event, got %d/%d", len(f.SystemEvents), len(f.SystemPayloads))
	}
	if !f.SystemEvents[0].Retained {
		t.Error("retained flag not recorded")
	}
}

func TestFakeClientPublishSystemError(t *testing.T) {
	f := NewFakeClient()
	f.PublishSystemError = errors.New("simulated error")

	if err := f.PublishSystem(SystemEvent{Event: "SHUTDOWN"}); err == nil {
		t.Error("expected error")
	}
	if len(f.SystemEvents) != 0 {
		t.Errorf("expected no events recorded on error, got %d", len(f.SystemEvents))
	}
}

func TestFakeClientSubscribeAndDeliver(t *testing.T) {
	f := NewFakeClient()

	// Deliver before Subscribe is dropped.
	f.Deliver("a", []byte("x"))

	var got []Message
	if err := f.Subscribe([]string{"a", "b"}, func(m Message) { got = append(got, m) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Deliver("b", []byte("hello"))

	if len(f.Subscribed) != 2 {
		t.Errorf("expected 2 subscribed topics, got %v", f.Subscribed)
	}
	if len(got) != 1 || got[0].Topic != "b" || string(got[0].Payload) != "hello" {
		t.Errorf("unexpected delivered messages: %+v", got)
	}
	if got[0].Received.IsZero() {
		t.Error("expected receive time to be set")
	}
}

func TestFakeClientConnectionState(t *testing.T) {
	f := NewFakeClient()
	if f.IsConnected() || f.State() != StateDisconnected {
		t.Error("expected disconnected by default")
	}

	f.Connected = true
	if !f.IsConnected() || f.State() != StateConnected {
		t.Error("expected connected")
	}
}

func TestFakeClientReset(t *testing.T) {
	f := NewFakeClient()
	f.PublishAck([]byte("a"))
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Subscribe([]string{"t"}, func(Message) {})
	f.Close()
	f.Connected = true
	f.PublishAckError = errors.New("error")

	f.Reset()

	if len(f.Acks) != 0 || len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 || len(f.Subscribed) != 0 {
		t.Error("expected recorded messages cleared")
	}
	if f.Closed || f.Connected || f.PublishAckError != nil {
		t.Error("expected flags cleared")
	}
	if err := f.PublishAck([]byte("b")); err != nil {
		t.Errorf("should be reusable after reset: %v", err)
	}
}
