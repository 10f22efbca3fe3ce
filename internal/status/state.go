package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/workbook/internal/bus"
)

// State represents an event channel connection state.
type State string

const (
	Disabled   State = "DISABLED"
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Connected  State = "CONNECTED"
	Closed     State = "CLOSED"
)

// Topic is the bus topic carrying StatusChange events.
const Topic = "channel-status"

// EventChanged is the bus event name for a state change.
const EventChanged = "status:changed"

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:       {Disabled, Connecting, Closed},
	Disabled:   {Closed},
	Connecting: {Connected, Idle, Closed},
	Connected:  {Idle, Closed},
	Closed:     {Connecting},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Topic:     Topic,
			Name:      EventChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
