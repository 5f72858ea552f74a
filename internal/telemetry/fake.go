package telemetry

import (
	"sync"

	"github.com/sweeney/relay-agent/internal/logic"
)

// FakeRecorder collects transitions for tests.
type FakeRecorder struct {
	mu          sync.Mutex
	Transitions []logic.Transition
	Closed      bool
}

// RecordTransitions appends ts.
func (f *FakeRecorder) RecordTransitions(ts []logic.Transition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions = append(f.Transitions, ts...)
}

// Close marks the recorder closed.
func (f *FakeRecorder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Recorded returns a copy of every transition seen so far.
func (f *FakeRecorder) Recorded() []logic.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Transition(nil), f.Transitions...)
}
