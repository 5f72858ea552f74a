package logic

import "fmt"

// Coordinator applies on/off requests to an output bank while keeping
// shared enablers energized for as long as any dependent is on.
// Not safe for concurrent use: callers serialize all calls.
type Coordinator struct {
	bank  Outputs
	table *Table
}

// NewCoordinator creates a coordinator over bank using the interlock table.
func NewCoordinator(bank Outputs, table *Table) (*Coordinator, error) {
	if bank.Len() != table.Len() {
		return nil, fmt.Errorf("bank has %d outputs, interlock table expects %d", bank.Len(), table.Len())
	}
	return &Coordinator{bank: bank, table: table}, nil
}

// Len returns the number of outputs under coordination.
func (c *Coordinator) Len() int {
	return c.bank.Len()
}

// Table returns the interlock table.
func (c *Coordinator) Table() *Table {
	return c.table
}

// States returns the current state of every output in index order.
func (c *Coordinator) States() ([]State, error) {
	out := make([]State, c.bank.Len())
	for i := range out {
		on, err := c.bank.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = StateOf(on)
	}
	return out, nil
}

// TurnOn energizes output i and, if it has one, its enabler.
func (c *Coordinator) TurnOn(i int) ([]Transition, error) {
	if err := c.checkIndex(i); err != nil {
		return nil, err
	}

	var ts []Transition
	if err := c.set(i, true, &ts); err != nil {
		return ts, err
	}
	if e, ok := c.table.Enabler(i); ok {
		if err := c.set(e, true, &ts); err != nil {
			return ts, err
		}
	}
	return ts, nil
}

// TurnOff de-energizes output i. If i has an enabler, the enabler is
// released only when no other dependent of it is on. Sibling state is read
// before i is touched.
func (c *Coordinator) TurnOff(i int) ([]Transition, error) {
	if err := c.checkIndex(i); err != nil {
		return nil, err
	}
	if c.table.IsEnabler(i) {
		held, err := c.holders(i, NoOutput, NoOutput)
		if err != nil {
			return nil, err
		}
		if held > 0 {
			return nil, fmt.Errorf("%w: output %d", ErrEnablerHeld, i)
		}
	}

	e, hasEnabler := c.table.Enabler(i)
	others := 0
	if hasEnabler {
		n, err := c.holders(e, i, NoOutput)
		if err != nil {
			return nil, err
		}
		others = n
	}

	var ts []Transition
	if err := c.set(i, false, &ts); err != nil {
		return ts, err
	}
	if hasEnabler && others == 0 {
		if err := c.set(e, false, &ts); err != nil {
			return ts, err
		}
	}
	return ts, nil
}

// Apply validates a request in full before touching the bank, then turns
// req.On on followed by req.Off off.
func (c *Coordinator) Apply(req Request) ([]Transition, error) {
	if req.On != NoOutput {
		if err := c.checkIndex(req.On); err != nil {
			return nil, err
		}
	}
	if req.Off != NoOutput {
		if err := c.checkIndex(req.Off); err != nil {
			return nil, err
		}
		if c.table.IsEnabler(req.Off) {
			held, err := c.holders(req.Off, NoOutput, req.On)
			if err != nil {
				return nil, err
			}
			if held > 0 {
				return nil, fmt.Errorf("%w: output %d", ErrEnablerHeld, req.Off)
			}
		}
	}

	var ts []Transition
	if req.On != NoOutput {
		on, err := c.TurnOn(req.On)
		ts = append(ts, on...)
		if err != nil {
			return ts, err
		}
	}
	if req.Off != NoOutput {
		off, err := c.TurnOff(req.Off)
		ts = append(ts, off...)
		if err != nil {
			return ts, err
		}
	}
	return ts, nil
}

// Shutdown turns off every output that is not an enabler, in ascending
// index order. Enablers drop out through the normal release rule once
// their last dependent is off. Calling it again changes nothing.
func (c *Coordinator) Shutdown() ([]Transition, error) {
	var ts []Transition
	for i := 0; i < c.bank.Len(); i++ {
		if c.table.IsEnabler(i) {
			continue
		}
		off, err := c.TurnOff(i)
		ts = append(ts, off...)
		if err != nil {
			return ts, err
		}
	}
	return ts, nil
}

// holders counts dependents of enabler e that are on, ignoring skip and
// counting assumeOn as on regardless of its current state.
func (c *Coordinator) holders(e, skip, assumeOn int) (int, error) {
	n := 0
	for _, d := range c.table.Dependents(e) {
		if d == skip {
			continue
		}
		if d == assumeOn {
			n++
			continue
		}
		on, err := c.bank.Get(d)
		if err != nil {
			return 0, fmt.Errorf("read output %d: %w", d, err)
		}
		if on {
			n++
		}
	}
	return n, nil
}

func (c *Coordinator) set(i int, on bool, ts *[]Transition) error {
	was, err := c.bank.Get(i)
	if err != nil {
		return fmt.Errorf("read output %d: %w", i, err)
	}
	if err := c.bank.Set(i, on); err != nil {
		return fmt.Errorf("set output %d: %w", i, err)
	}
	if was != on {
		*ts = append(*ts, Transition{Index: i, From: StateOf(was), To: StateOf(on)})
	}
	return nil
}

func (c *Coordinator) checkIndex(i int) error {
	if i < 0 || i >= c.bank.Len() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, c.bank.Len())
	}
	return nil
}
