package transport

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pedrogbi/palaver/internal/bus"
)

// State represents the session connection state. Exactly one value holds
// at a time and drives whether operations dispatch or fail fast.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions. A transition to
// Disconnected is additionally always allowed: explicit disconnect is
// valid from any state.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected},
	Connected:    {Reconnecting},
	Reconnecting: {Connected, Reconnecting},
}

// Machine tracks and enforces connection state transitions, publishing
// each change on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	attempt int
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Attempt returns the reconnect attempt count; zero outside Reconnecting.
func (m *Machine) Attempt() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempt
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.transition(to, 0)
}

// TransitionReconnecting moves to Reconnecting with the given attempt
// count. Reconnecting to Reconnecting bumps the count.
func (m *Machine) TransitionReconnecting(attempt int) error {
	return m.transition(Reconnecting, attempt)
}

func (m *Machine) transition(to State, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to != Disconnected && !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.attempt = attempt
	if m.bus != nil {
		m.bus.PublishKind(bus.KindStatusChanged, StatusChange{
			From:    from,
			To:      to,
			Attempt: attempt,
		})
	}
	return nil
}

// StatusChange is the payload for transport status change events.
type StatusChange struct {
	From    State
	To      State
	Attempt int
}
