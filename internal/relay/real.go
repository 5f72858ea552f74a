//go:build linux

package relay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBank drives relays through the Linux GPIO character device.
type RealBank struct {
	chip   *gpiocdev.Chip
	lines  []*gpiocdev.Line
	offset []int
	state  []bool
}

// NewRealBank requests every line as an output, initially de-energized.
// activeLow inverts the physical level for boards that energize on low.
func NewRealBank(chipName string, offsets []int, activeLow bool) (*RealBank, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	b := &RealBank{
		chip:   chip,
		offset: append([]int(nil), offsets...),
		state:  make([]bool, len(offsets)),
	}

	for _, off := range offsets {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("relay-agent")}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(off, opts...)
		if err != nil {
			b.release()
			return nil, fmt.Errorf("request relay line %d: %w", off, err)
		}
		b.lines = append(b.lines, line)
	}

	return b, nil
}

// Len returns the number of relays.
func (b *RealBank) Len() int {
	return len(b.lines)
}

// Set drives the relay line. The cached state only changes if the write succeeds.
func (b *RealBank) Set(index int, on bool) error {
	if index < 0 || index >= len(b.lines) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	v := 0
	if on {
		v = 1
	}
	if err := b.lines[index].SetValue(v); err != nil {
		return fmt.Errorf("set relay %d (line %d): %w", index, b.offset[index], err)
	}
	b.state[index] = on
	return nil
}

// Get returns the last state written to the relay.
func (b *RealBank) Get(index int) (bool, error) {
	if index < 0 || index >= len(b.lines) {
		return false, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return b.state[index], nil
}

// Close drives every line low before releasing it so relays drop out
// on shutdown, matching the boot state.
func (b *RealBank) Close() error {
	var errs []error
	for i, line := range b.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("de-energize line %d: %w", b.offset[i], err))
		}
	}
	if err := b.release(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (b *RealBank) release() error {
	var errs []error
	for i, line := range b.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", b.offset[i], err))
		}
	}
	b.lines = nil
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("release errors: %v", errs)
	}
	return nil
}
