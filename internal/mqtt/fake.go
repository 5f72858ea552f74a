package mqtt

import "time"

// FakeClient records published messages for test assertions and lets
// tests deliver inbound messages to subscribed handlers.
type FakeClient struct {
	// Acks contains the acknowledgment payloads that were published.
	Acks [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Subscribed contains every topic passed to Subscribe.
	Subscribed []string

	// PublishAckError, if set, will be returned by PublishAck.
	PublishAckError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected and State.
	Connected bool

	handler func(Message)
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Subscribe records the topics and keeps the handler for Deliver.
func (f *FakeClient) Subscribe(topics []string, handler func(Message)) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Subscribed = append(f.Subscribed, topics...)
	f.handler = handler
	return nil
}

// Deliver passes a message to the subscribed handler, if any.
func (f *FakeClient) Deliver(topic string, payload []byte) {
	if f.handler == nil {
		return
	}
	f.handler(Message{Topic: topic, Payload: payload, Received: time.Now()})
}

// PublishAck records the acknowledgment payload.
func (f *FakeClient) PublishAck(payload []byte) error {
	if f.PublishAckError != nil {
		return f.PublishAckError
	}
	f.Acks = append(f.Acks, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	return f.Connected
}

// State maps Connected onto the connection state machine.
func (f *FakeClient) State() ConnState {
	if f.Connected {
		return StateConnected
	}
	return StateDisconnected
}

// Reset clears recorded messages.
func (f *FakeClient) Reset() {
	f.Acks = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Subscribed = nil
	f.Closed = false
	f.PublishAckError = nil
	f.PublishSystemError = nil
	f.SubscribeError = nil
	f.Connected = false
	f.handler = nil
}
