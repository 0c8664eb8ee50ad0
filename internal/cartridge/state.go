package cartridge

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dshills/luahost/internal/event"
	"github.com/dshills/luahost/internal/event/topic"
	"github.com/dshills/luahost/internal/logging"
)

// TopicStateChanged is published with a StateChange on every transition.
const TopicStateChanged topic.Topic = "cartridge.state.changed"

// State is the lifecycle state of a cartridge.
type State int32

const (
	// StateUnloaded means no VM exists.
	StateUnloaded State = iota
	// StateLoading means the VM is being built and the entry script run.
	StateLoading
	// StateInitialized means init() returned.
	StateInitialized
	// StateRunning means update and draw are being called.
	StateRunning
	// StatePaused means the debugger has halted the script.
	StatePaused
	// StateFaulted means a script error stopped the cartridge.
	StateFaulted
	// StateStopped means the cartridge was stopped on purpose.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "Unloaded"
	case StateLoading:
		return "Loading"
	case StateInitialized:
		return "Initialized"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateFaulted:
		return "Faulted"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

var transitions = map[State][]State{
	StateUnloaded:    {StateLoading, StateStopped},
	StateLoading:     {StateInitialized, StatePaused, StateFaulted, StateStopped},
	StateInitialized: {StateRunning, StatePaused, StateLoading, StateFaulted, StateStopped},
	StateRunning:     {StatePaused, StateLoading, StateFaulted, StateStopped},
	StatePaused:      {StateLoading, StateInitialized, StateRunning, StateFaulted, StateStopped},
	StateFaulted:     {StateLoading, StateStopped},
	StateStopped:     {StateLoading},
}

// CanTransition reports whether the state machine allows s -> to.
func (s State) CanTransition(to State) bool {
	return slices.Contains(transitions[s], to)
}

// StateChange is the payload of TopicStateChanged.
type StateChange struct {
	CartridgeID string
	From        State
	To          State
	// Err is the error that caused a Faulted transition.
	Err error
}

// stateMachine tracks the runner's state. It is safe for concurrent use.
type stateMachine struct {
	mu    sync.Mutex
	state State
	// resumeTo is the state a halt interrupted.
	resumeTo State

	id  string
	bus event.Bus
	log *logging.Logger
}

func newStateMachine(id string, bus event.Bus, log *logging.Logger) *stateMachine {
	return &stateMachine{id: id, bus: bus, log: log}
}

func (m *stateMachine) get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// set moves to the given state and publishes the change.
func (m *stateMachine) set(to State, cause error) error {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !from.CanTransition(to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.mu.Unlock()

	m.publish(from, to, cause)
	return nil
}

// pause enters Paused from a state in which script code runs.
func (m *stateMachine) pause() bool {
	m.mu.Lock()
	from := m.state
	if from != StateLoading && from != StateInitialized && from != StateRunning {
		m.mu.Unlock()
		return false
	}
	m.resumeTo = from
	m.state = StatePaused
	m.mu.Unlock()

	m.publish(from, StatePaused, nil)
	return true
}

// unpause returns from Paused to the state the halt interrupted.
func (m *stateMachine) unpause() bool {
	m.mu.Lock()
	if m.state != StatePaused {
		m.mu.Unlock()
		return false
	}
	to := m.resumeTo
	m.state = to
	m.mu.Unlock()

	m.publish(StatePaused, to, nil)
	return true
}

func (m *stateMachine) publish(from, to State, cause error) {
	m.log.Debug("state %s -> %s", from, to)
	change := StateChange{CartridgeID: m.id, From: from, To: to, Err: cause}
	if err := event.Publish(context.Background(), m.bus, TopicStateChanged, change, "cartridge", ""); err != nil {
		m.log.Warn("publish %s: %v", TopicStateChanged, err)
	}
}
