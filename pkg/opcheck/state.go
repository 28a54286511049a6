package opcheck

import "fmt"

// State of a test case.
//
// A case moves through Pending -> InputsGenerated -> ReferenceRun -> CandidateRun -> Compared, and ends in one
// of the terminal states: Passed, Failed, Skipped or Errored.
type State int

const (
	StatePending State = iota
	StateInputsGenerated
	StateReferenceRun
	StateCandidateRun
	StateCompared

	// StatePassed means both backends ran and the comparator accepted the outputs (and gradients, if requested).
	StatePassed

	// StateFailed means both backends ran and their outputs disagree, numerically or structurally.
	StateFailed

	// StateSkipped means a capability gate declined the case: no inputs were generated and no backend invoked.
	StateSkipped

	// StateErrored means the case could not complete: invalid configuration or a backend failure.
	StateErrored
)

var stateNames = [...]string{"Pending", "InputsGenerated", "ReferenceRun", "CandidateRun", "Compared",
	"Passed", "Failed", "Skipped", "Errored"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal returns whether s is one of Passed, Failed, Skipped or Errored.
func (s State) IsTerminal() bool {
	return s >= StatePassed && s <= StateErrored
}

// transitions lists the legal next states of each non-terminal state.
var transitions = map[State][]State{
	StatePending:         {StateInputsGenerated, StateSkipped, StateErrored},
	StateInputsGenerated: {StateReferenceRun, StateErrored},
	StateReferenceRun:    {StateCandidateRun, StateErrored},
	StateCandidateRun:    {StateCompared, StateErrored},
	StateCompared:        {StatePassed, StateFailed},
}

// canTransition returns whether to is a legal next state from `from`.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
