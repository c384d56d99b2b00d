package pipeline

// State is a stage in the pipeline run lifecycle. Stage names double as
// the keys of RunStats.Errors.
type State string

const (
	StateConnect        State = "connect"
	StateExtract        State = "extract"
	StateTransform      State = "transform"
	StateLoadDimensions State = "load_dimensions"
	StateLoadFacts      State = "load_facts"
	StateRefresh        State = "refresh_aggregates"
	StateValidate       State = "validate"
	StateClosed         State = "closed"
)

// Transition table: from -> allowed tos. Stages run strictly in order;
// every state may fail directly into Closed.
var validTransitions = map[State][]State{
	StateConnect:        {StateExtract, StateClosed},
	StateExtract:        {StateTransform, StateClosed},
	StateTransform:      {StateLoadDimensions, StateClosed},
	StateLoadDimensions: {StateLoadFacts, StateClosed},
	StateLoadFacts:      {StateRefresh, StateClosed},
	StateRefresh:        {StateValidate, StateClosed},
	StateValidate:       {StateClosed},
	StateClosed:         {},
}

// CanTransition checks whether moving from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for the final state.
func IsTerminal(s State) bool { return s == StateClosed }
