package common

// State is a step of the per-request dispatch state machine.
type State int

const (
	// StateNew is the state of a Context that has not entered the pipeline yet.
	StateNew State = iota
	StateMatching
	StatePreHooks
	StateResolveParams
	StateInvokeAction
	StatePostHooks
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateNew:           "NEW",
	StateMatching:      "MATCHING",
	StatePreHooks:      "PRE_HOOKS",
	StateResolveParams: "RESOLVE_PARAMS",
	StateInvokeAction:  "INVOKE_ACTION",
	StatePostHooks:     "POST_HOOKS",
	StateDone:          "DONE",
	StateFailed:        "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further hook execution may happen in s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
