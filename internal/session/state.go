// Package session tracks a single connection's progress through the
// bootstrap and lifetime states: exceptions for control flow in the
// session handshake become an explicit state machine with validated
// transitions, and non-recoverable errors move the connection to Broken
// instead of being silently retried.
package session

import (
	"fmt"
	"sync"
)

// State is one point in a connection's life. Plaintext, KeyAgreed,
// Authenticated, and Broken are the handshake's own states; Closed is an
// addition for the period after the handshake ends, since a Session
// outlives its own bootstrap.
type State int

const (
	StatePlaintext State = iota
	StateKeyAgreed
	StateAuthenticated
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePlaintext:
		return "Plaintext"
	case StateKeyAgreed:
		return "KeyAgreed"
	case StateAuthenticated:
		return "Authenticated"
	case StateBroken:
		return "Broken"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// validTransitions lists, for each state, the states it may move to next.
// Anything not listed is rejected rather than silently allowed.
var validTransitions = map[State][]State{
	StatePlaintext:     {StateKeyAgreed, StateBroken},
	StateKeyAgreed:     {StateAuthenticated, StateBroken},
	StateAuthenticated: {StateBroken, StateClosed},
	StateBroken:        {StateClosed},
	StateClosed:        {},
}

// Machine is a mutex-guarded State with validated transitions.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine starts a Machine in StatePlaintext, the state a freshly
// dialed connection is in before the Connect line is even written.
func NewMachine() *Machine {
	return &Machine{state: StatePlaintext}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to to, or returns an error if that move is
// not in validTransitions for the current state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range validTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("session: illegal transition %v -> %v", m.state, to)
}

// Break forces the machine into StateBroken unconditionally, for a
// non-recoverable error discovered outside the normal bootstrap sequence
// (e.g. a ConnectionLost surfaced mid-query, long after Authenticated).
// A no-op once the machine is already Closed.
func (m *Machine) Break() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateClosed {
		m.state = StateBroken
	}
}
