package convert

// State is a step of a single conversion.
type State string

const (
	StateIdle             State = "idle"
	StateLoading          State = "loading"
	StateIndexRefresh     State = "index_refresh"
	StateFilterResolution State = "filter_resolution"
	StateExporting        State = "exporting"
	StateClosed           State = "closed"
)

var transitions = map[State][]State{
	StateIdle:             {StateLoading, StateClosed},
	StateLoading:          {StateIndexRefresh, StateFilterResolution, StateClosed},
	StateIndexRefresh:     {StateFilterResolution, StateClosed},
	StateFilterResolution: {StateExporting, StateClosed},
	StateExporting:        {StateClosed},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
