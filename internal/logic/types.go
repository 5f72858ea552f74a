// Package logic contains the pure relay coordination logic: the interlock
// table and the coordinator that applies on/off requests to an output bank.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time).
package logic

import "errors"

// State represents the logical state of a relay output.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// StateOf converts an energized flag to a State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// NoOutput marks an unused side of a Request.
const NoOutput = -1

var (
	// ErrIndexOutOfRange is returned when a request names an output outside the bank.
	ErrIndexOutOfRange = errors.New("logic: output index out of range")

	// ErrEnablerHeld is returned when an enabler is commanded off while a
	// dependent still needs it.
	ErrEnablerHeld = errors.New("logic: enabler held by active dependent")

	// ErrInvalidRule is returned by NewTable for malformed interlock rules.
	ErrInvalidRule = errors.New("logic: invalid interlock rule")
)

// Outputs is the view of the output bank the coordinator needs.
// relay.Bank satisfies it.
type Outputs interface {
	Len() int
	Set(index int, on bool) error
	Get(index int) (bool, error)
}

// Rule declares that Dependent relies on the shared Enabler output.
type Rule struct {
	Dependent int `yaml:"dependent"`
	Enabler   int `yaml:"enabler"`
}

// DefaultRules is the reference interlock set: outputs 2 and 4 share enabler 3.
func DefaultRules() []Rule {
	return []Rule{
		{Dependent: 2, Enabler: 3},
		{Dependent: 4, Enabler: 3},
	}
}

// Transition records a single output that changed state.
type Transition struct {
	Index int
	From  State
	To    State
}

// Request asks the coordinator to turn one output on and/or one output off.
// Either side may be NoOutput.
type Request struct {
	On  int
	Off int
}
