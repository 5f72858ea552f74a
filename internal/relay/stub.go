//go:build !linux

package relay

import "errors"

// RealBank is not available on non-Linux platforms.
type RealBank struct{}

// NewRealBank returns an error on non-Linux platforms.
func NewRealBank(chipName string, offsets []int, activeLow bool) (*RealBank, error) {
	return nil, errors.New("relay: not supported on this platform (requires Linux)")
}

// Len is not implemented on non-Linux platforms.
func (b *RealBank) Len() int { return 0 }

// Set is not implemented on non-Linux platforms.
func (b *RealBank) Set(index int, on bool) error {
	return errors.New("relay: not supported")
}

// Get is not implemented on non-Linux platforms.
func (b *RealBank) Get(index int) (bool, error) {
	return false, errors.New("relay: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealBank) Close() error {
	return nil
}
