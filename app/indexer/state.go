package indexer

// State is a bootstrap sequence state.
type State int32

const (
	StateIdle State = iota
	StateLoadingConfig
	StateLoadingAbi
	StateValidating
	StateConstructing
	StateStarting
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoadingConfig:
		return "LoadingConfig"
	case StateLoadingAbi:
		return "LoadingAbi"
	case StateValidating:
		return "Validating"
	case StateConstructing:
		return "Constructing"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateRunning || s == StateFailed
}
