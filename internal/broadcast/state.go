package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is the broadcast lifecycle state.
type State int

const (
	StateStopped      State = 0
	StateConnecting   State = 1
	StateBroadcasting State = 2
	StateStopping     State = 4
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateBroadcasting:
		return "broadcasting"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsConnectingOrBroadcasting reports whether stages should keep running
func (s State) IsConnectingOrBroadcasting() bool {
	return s == StateConnecting || s == StateBroadcasting
}

// IsStoppedOrStopping reports whether stages should tear down
func (s State) IsStoppedOrStopping() bool {
	return s == StateStopped || s == StateStopping
}

// StateMachine holds the current State. Every change is logged and reported
// to onChange outside the lock.
type StateMachine struct {
	mu       sync.Mutex
	state    State
	logger   *slog.Logger
	onChange func(from, to State)
}

// NewStateMachine creates a machine in StateStopped
func NewStateMachine(logger *slog.Logger, onChange func(from, to State)) *StateMachine {
	return &StateMachine{
		state:    StateStopped,
		logger:   logger,
		onChange: onChange,
	}
}

// Get returns the current state
func (m *StateMachine) Get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set moves to state unconditionally
func (m *StateMachine) Set(state State) {
	m.mu.Lock()
	from := m.state
	m.state = state
	m.mu.Unlock()

	m.changed(from, state)
}

// CompareAndSet moves to next only if the current state is old
func (m *StateMachine) CompareAndSet(old, next State) bool {
	m.mu.Lock()
	if m.state != old {
		m.mu.Unlock()
		return false
	}
	m.state = next
	m.mu.Unlock()

	m.changed(old, next)
	return true
}

// SetUnlessStopping moves to next unless the machine is stopped or stopping
func (m *StateMachine) SetUnlessStopping(next State) bool {
	m.mu.Lock()
	from := m.state
	if from.IsStoppedOrStopping() {
		m.mu.Unlock()
		return false
	}
	m.state = next
	m.mu.Unlock()

	m.changed(from, next)
	return true
}

// IsConnectingOrBroadcasting reports the predicate on the current state
func (m *StateMachine) IsConnectingOrBroadcasting() bool {
	return m.Get().IsConnectingOrBroadcasting()
}

// IsStoppedOrStopping reports the predicate on the current state
func (m *StateMachine) IsStoppedOrStopping() bool {
	return m.Get().IsStoppedOrStopping()
}

func (m *StateMachine) changed(from, to State) {
	m.logger.Info("Broadcast state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	if m.onChange != nil && from != to {
		m.onChange(from, to)
	}
}
