// Package telemetry records relay transitions to a time-series store.
package telemetry

import "github.com/sweeney/relay-agent/internal/logic"

// Recorder receives every output transition the agent performs.
type Recorder interface {
	RecordTransitions(ts []logic.Transition)
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTransitions([]logic.Transition) {}
func (Nop) Close() error                         { return nil }
