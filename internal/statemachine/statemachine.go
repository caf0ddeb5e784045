package statemachine

import (
	"sync"
	"time"
)

// State is the detection state of a component.
type State string

const (
	StateInactive State = "inactive" // Initial and terminal state
	StateActive   State = "active"   // Subscription registered
)

// Snapshot is a point-in-time view of the machine, used for status output.
type Snapshot struct {
	State       State     `json:"state"`
	ActiveSince time.Time `json:"active_since,omitempty"`
	Activations int       `json:"activations"`
}

// StateMachine tracks Inactive -> Active -> Inactive transitions.
// There are no automatic transitions; Start and Stop are the only inputs.
type StateMachine struct {
	mu          sync.Mutex
	state       State
	activeSince time.Time
	activations int
	now         func() time.Time
}

// NewStateMachine creates a state machine in StateInactive
func NewStateMachine() *StateMachine {
	return &StateMachine{
		state: StateInactive,
		now:   time.Now,
	}
}

// Start moves the machine to StateActive. It returns false, leaving the
// machine untouched, when it is already active.
func (sm *StateMachine) Start() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateActive {
		return false
	}
	sm.state = StateActive
	sm.activeSince = sm.now()
	sm.activations++
	return true
}

// Stop moves the machine to StateInactive. It returns false when it was
// already inactive.
func (sm *StateMachine) Stop() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateInactive {
		return false
	}
	sm.state = StateInactive
	sm.activeSince = time.Time{}
	return true
}

// IsActive returns current detection status
func (sm *StateMachine) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state == StateActive
}

// Current returns the current state
func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// ActiveDuration returns how long detection has been active
func (sm *StateMachine) ActiveDuration() time.Duration {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateActive {
		return 0
	}
	return sm.now().Sub(sm.activeSince)
}

// Snapshot returns a copy of the machine's state
func (sm *StateMachine) Snapshot() Snapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return Snapshot{
		State:       sm.state,
		ActiveSince: sm.activeSince,
		Activations: sm.activations,
	}
}
