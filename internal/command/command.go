// Package command turns inbound relay command envelopes into coordinator
// requests and builds the acknowledgment for each one.
package command

import "errors"

var (
	// ErrDecode is returned when a payload cannot be decoded at all.
	ErrDecode = errors.New("command: decode payload")

	// ErrInvalidField is returned when a decoded field has the wrong type or value.
	ErrInvalidField = errors.New("command: invalid field")
)

// Channel identifies the group of outputs a command targets.
type Channel int

const (
	ChannelUnknown Channel = iota
	ChannelDiscrete
	ChannelGrouped
	ChannelShutdown
)

func (c Channel) String() string {
	switch c {
	case ChannelDiscrete:
		return "discrete"
	case ChannelGrouped:
		return "grouped"
	case ChannelShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Routes maps inbound topics to channels. Matching is exact.
type Routes struct {
	Discrete string
	Grouped  string
	Shutdown string
}

// Channel returns the channel for topic, or ChannelUnknown.
func (r Routes) Channel(topic string) Channel {
	switch topic {
	case r.Discrete:
		return ChannelDiscrete
	case r.Grouped:
		return ChannelGrouped
	case r.Shutdown:
		return ChannelShutdown
	default:
		return ChannelUnknown
	}
}

// Topics returns every routed topic, for subscribing.
func (r Routes) Topics() []string {
	return []string{r.Discrete, r.Shutdown, r.Grouped}
}

// Command is a decoded request. SetTurnOn and SetTurnOff are slots within
// the channel; 0 means no-op.
type Command struct {
	CommandID  string
	Channel    Channel
	SetTurnOn  int
	SetTurnOff int
}

// Status is the outcome reported in an acknowledgment.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Ack is the acknowledgment for one inbound message.
type Ack struct {
	CommandID string
	Status    Status

	// DecodeFailed marks the fixed failure envelope sent when the payload
	// could not be decoded; its commandId is the number 0.
	DecodeFailed bool
}

// DecodeFailure is the acknowledgment for an undecodable payload.
func DecodeFailure() Ack {
	return Ack{Status: StatusFailed, DecodeFailed: true}
}
