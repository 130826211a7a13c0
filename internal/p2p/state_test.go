package p2p

import (
	"errors"
	"testing"
)

func TestStateTransitions(t *testing.T) {
	all := []State{StateConnecting, StateHandshaking, StateActive, StateClosing, StateClosed}
	allowed := map[[2]State]bool{
		{StateConnecting, StateHandshaking}: true,
		{StateConnecting, StateClosing}:     true,
		{StateHandshaking, StateActive}:     true,
		{StateHandshaking, StateClosing}:    true,
		{StateActive, StateClosing}:         true,
		{StateClosing, StateClosed}:         true,
	}
	for _, from := range all {
		for _, to := range all {
			if got, want := canTransition(from, to), allowed[[2]State{from, to}]; got != want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestConnStateTo(t *testing.T) {
	var c connState
	if c.Load() != StateConnecting {
		t.Fatalf("zero state = %s", c.Load())
	}
	if _, err := c.To(StateActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("connecting -> active: %v", err)
	}
	for _, next := range []State{StateHandshaking, StateActive, StateClosing, StateClosed} {
		if _, err := c.To(next); err != nil {
			t.Fatalf("-> %s: %v", next, err)
		}
	}
	if _, err := c.To(StateClosing); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("closed is not terminal: %v", err)
	}
	if c.Load() != StateClosed {
		t.Fatalf("state = %s", c.Load())
	}
}
