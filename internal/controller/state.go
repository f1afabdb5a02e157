package controller

// State is the lifecycle state of one command invocation.
type State int

const (
	// StateIdle means no command has been accepted yet.
	StateIdle State = iota
	// StateSpawning means the process is being started and registered.
	StateSpawning
	// StateRunning means output is being delivered into the document.
	StateRunning
	// StateDetached means the document was closed and output is no longer read.
	StateDetached
	// StateFailed means the process could not be started.
	StateFailed
)

// String returns a human-readable string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateDetached:
		return "detached"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for states with no further transitions.
func (s State) IsTerminal() bool {
	return s == StateDetached || s == StateFailed
}
