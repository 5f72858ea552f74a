// Package relay provides the output bank: a fixed set of relays driven by
// GPIO output lines. The real implementation uses the Linux GPIO character
// device. The fake implementation allows testing without hardware.
package relay

import "errors"

// ErrIndexOutOfRange is returned when an index is outside [0, Len()).
var ErrIndexOutOfRange = errors.New("relay: index out of range")

// Bank is an ordered set of discrete outputs addressed by logical index.
type Bank interface {
	// Len returns the number of outputs in the bank.
	Len() int

	// Set drives output index to on (energized) or off.
	Set(index int, on bool) error

	// Get returns the current state of output index without side effects.
	Get(index int) (bool, error)

	// Close de-energizes every output and releases resources.
	Close() error
}

// DefaultLines are the BCM line offsets of the reference 8-relay board,
// in logical index order.
var DefaultLines = []int{5, 6, 13, 16, 19, 20, 21, 26}
