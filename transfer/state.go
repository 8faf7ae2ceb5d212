package transfer

import "fmt"

// State is the scheduler's position in the transfer lifecycle.
type State uint8

const (
	StateIdle State = iota
	StatePreparing
	// StateArmed means a payload is built and metadata reset, but no tick is running.
	StateArmed
	StateSending
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateArmed:
		return "armed"
	case StateSending:
		return "sending"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:      {StatePreparing},
	StatePreparing: {StateArmed, StateIdle},
	StateArmed:     {StatePreparing, StateSending},
	StateSending:   {StateDone, StateIdle},
	StateDone:      {StatePreparing},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
