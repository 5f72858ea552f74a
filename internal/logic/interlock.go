package logic

import (
	"fmt"
	"sort"
)

// Table is an immutable set of interlock rules over outputs 0..n-1.
type Table struct {
	n          int
	enablerOf  map[int]int
	dependents map[int][]int
}

// NewTable validates rules and builds a table for a bank of n outputs.
// Each output may have at most one enabler, and an enabler cannot itself
// depend on another enabler.
func NewTable(n int, rules ...Rule) (*Table, error) {
	t := &Table{
		n:          n,
		enablerOf:  make(map[int]int),
		dependents: make(map[int][]int),
	}

	for _, r := range rules {
		if r.Dependent < 0 || r.Dependent >= n || r.Enabler < 0 || r.Enabler >= n {
			return nil, fmt.Errorf("%w: %d->%d outside bank of %d", ErrInvalidRule, r.Dependent, r.Enabler, n)
		}
		if r.Dependent == r.Enabler {
			return nil, fmt.Errorf("%w: output %d cannot enable itself", ErrInvalidRule, r.Dependent)
		}
		if e, ok := t.enablerOf[r.Dependent]; ok {
			return nil, fmt.Errorf("%w: output %d already depends on %d", ErrInvalidRule, r.Dependent, e)
		}
		t.enablerOf[r.Dependent] = r.Enabler
		t.dependents[r.Enabler] = append(t.dependents[r.Enabler], r.Dependent)
	}

	for e := range t.dependents {
		if _, ok := t.enablerOf[e]; ok {
			return nil, fmt.Errorf("%w: enabler %d is also a dependent", ErrInvalidRule, e)
		}
		sort.Ints(t.dependents[e])
	}

	return t, nil
}

// Len returns the bank size the table was built for.
func (t *Table) Len() int {
	return t.n
}

// Enabler returns the enabler of output i, if it has one.
func (t *Table) Enabler(i int) (int, bool) {
	e, ok := t.enablerOf[i]
	return e, ok
}

// IsEnabler reports whether output i gates at least one dependent.
func (t *Table) IsEnabler(i int) bool {
	return len(t.dependents[i]) > 0
}

// Dependents returns the outputs gated by enabler e, in ascending order.
func (t *Table) Dependents(e int) []int {
	return append([]int(nil), t.dependents[e]...)
}

// Rules returns the table's rules ordered by dependent index.
func (t *Table) Rules() []Rule {
	rules := make([]Rule, 0, len(t.enablerOf))
	for d, e := range t.enablerOf {
		rules = append(rules, Rule{Dependent: d, Enabler: e})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Dependent < rules[j].Dependent })
	return rules
}
