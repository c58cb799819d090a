// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package statemachine

import "time"

// Transition is one recorded history entry.
type Transition struct {
	From  State
	To    State
	Event Event
	Now   time.Time
}

// Hook runs on entry to or exit from a state.
type Hook func(m *Machine)

// Machine drives one session's state and transition history. It is not
// safe for concurrent use — callers drive it from a single event loop,
// per §3.6's shared-resources note.
type Machine struct {
	state   State
	history []Transition
	onEnter map[State]Hook
	onExit  map[State]Hook
	now     func() time.Time
}

// New returns a Machine starting in Disconnected. now defaults to
// time.Now if nil; tests may override it for determinism.
func New(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		state:   Disconnected,
		onEnter: map[State]Hook{},
		onExit:  map[State]Hook{},
		now:     now,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns the recorded transitions in order.
func (m *Machine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// OnEnter registers a hook run after the machine enters s.
func (m *Machine) OnEnter(s State, h Hook) { m.onEnter[s] = h }

// OnExit registers a hook run before the machine leaves s.
func (m *Machine) OnExit(s State, h Hook) { m.onExit[s] = h }

// Transition fires event against the current state. If TRANSITIONS has
// no entry for (state, event), it is a no-op returning false; the caller
// is expected to log State::InvalidTransition. On success it runs the
// outgoing state's onExit hook, appends to history, updates the state,
// runs the incoming state's onEnter hook, and returns true.
func (m *Machine) Transition(event Event) bool {
	next, ok := transitions[m.state][event]
	if !ok {
		return false
	}

	from := m.state
	if hook, ok := m.onExit[from]; ok {
		hook(m)
	}

	m.history = append(m.history, Transition{From: from, To: next, Event: event, Now: m.now()})
	m.state = next

	if hook, ok := m.onEnter[next]; ok {
		hook(m)
	}
	return true
}

// ValidateMessage reports whether nid is in the current state's admit
// set. Callers that receive a message failing this check are expected to
// drop it and log State::MessageNotAdmitted without changing state.
func (m *Machine) ValidateMessage(nid int) bool {
	return admitSets[m.state][nid]
}

// Reset unconditionally returns the machine to Disconnected, clears
// history, and re-runs Disconnected's onEnter hook. No onExit hook runs
// for the state being abandoned — Reset is an unconditional session
// teardown, not a normal transition.
func (m *Machine) Reset() {
	m.state = Disconnected
	m.history = nil
	if hook, ok := m.onEnter[Disconnected]; ok {
		hook(m)
	}
}
