package relay

import (
	"errors"
	"fmt"
)

// Write records a single Set call on a FakeBank.
type Write struct {
	Index int
	On    bool
}

// FakeBank is an in-memory Bank that records every write for test assertions.
type FakeBank struct {
	// State holds the current state of each output.
	State []bool

	// Writes contains every successful Set call in order.
	Writes []Write

	// SetError, if set, will be returned by Set without changing state.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeBank creates a FakeBank with n outputs, all off.
func NewFakeBank(n int) *FakeBank {
	return &FakeBank{State: make([]bool, n)}
}

// Len returns the number of outputs.
func (f *FakeBank) Len() int {
	return len(f.State)
}

// Set records the write and updates the state.
func (f *FakeBank) Set(index int, on bool) error {
	if index < 0 || index >= len(f.State) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	if f.SetError != nil {
		return f.SetError
	}
	f.State[index] = on
	f.Writes = append(f.Writes, Write{Index: index, On: on})
	return nil
}

// Get returns the current state of an output.
func (f *FakeBank) Get(index int) (bool, error) {
	if index < 0 || index >= len(f.State) {
		return false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return f.State[index], nil
}

// Close de-energizes all outputs and marks the bank as closed.
func (f *FakeBank) Close() error {
	if f.Closed {
		return errors.New("relay: already closed")
	}
	for i := range f.State {
		f.State[i] = false
	}
	f.Closed = true
	return nil
}

// Reset clears recorded writes and turns every output off.
func (f *FakeBank) Reset() {
	for i := range f.State {
		f.State[i] = false
	}
	f.Writes = nil
	f.SetError = nil
	f.Closed = false
}
