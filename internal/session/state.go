package session

import "fmt"

// State is a step of an execution session. A session only moves forward
// through the happy path or drops to StateFailed.
type State string

const (
	StateInit           State = "init"
	StateNavigated      State = "navigated"
	StatePromptInjected State = "prompt_injected"
	StateTriggered      State = "triggered"
	StateAwaitingResult State = "awaiting_result"
	StateParsed         State = "parsed"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

var next = map[State]State{
	StateInit:           StateNavigated,
	StateNavigated:      StatePromptInjected,
	StatePromptInjected: StateTriggered,
	StateTriggered:      StateAwaitingResult,
	StateAwaitingResult: StateParsed,
	StateParsed:         StateDone,
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether to is reachable from s in one step.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return next[s] == to
}

type transitionError struct {
	from, to State
}

func (e transitionError) Error() string {
	return fmt.Sprintf("session: illegal transition %s -> %s", e.from, e.to)
}
