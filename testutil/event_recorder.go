package testutil

import "sync"

// RecordedEvent is one plugin -> host event captured by EventRecorder.
type RecordedEvent struct {
	Method    string
	Arguments interface{}
}

// EventRecorder is an in-memory event sink standing in for the host side of
// the channel.
type EventRecorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// NewEventRecorder creates an empty recorder
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// InvokeMethod records the event
func (r *EventRecorder) InvokeMethod(method string, arguments interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Method: method, Arguments: arguments})
}

// Events returns a copy of everything recorded so far
func (r *EventRecorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events
func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset forgets all recorded events
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
