package p2p

import (
	"fmt"
	"sync"
)

// State is the lifecycle phase of one connection.
type State int32

const (
	StateConnecting State = iota
	StateHandshaking
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// every state may fall to closing; closed is terminal
var transitions = map[State][]State{
	StateConnecting:  {StateHandshaking, StateClosing},
	StateHandshaking: {StateActive, StateClosing},
	StateActive:      {StateClosing},
	StateClosing:     {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type connState struct {
	mu sync.Mutex
	s  State
}

func (c *connState) Load() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// To moves to next and returns the previous state.
func (c *connState) To(next State) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.s
	if !canTransition(prev, next) {
		return prev, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}
	c.s = next
	return prev, nil
}
