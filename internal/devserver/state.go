package devserver

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle state of a dev server.
type State int32

// Server states.
const (
	StateStopped State = iota
	StateStarting
	StateServing
	StateRebuilding
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateServing:
		return "serving"
	case StateRebuilding:
		return "rebuilding"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateStopped; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

type stateVar struct{ v atomic.Int32 }

func (s *stateVar) load() State   { return State(s.v.Load()) }
func (s *stateVar) store(v State) { s.v.Store(int32(v)) }
