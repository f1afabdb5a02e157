package runner

// Status represents the current state of a spawned shell process.
type Status int

const (
	// StatusRunning indicates the process is running.
	StatusRunning Status = iota
	// StatusExited indicates the process exited (any exit code).
	StatusExited
	// StatusFailed indicates waiting on the process failed without an exit code.
	StatusFailed
)

// String returns a human-readable string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the process is gone.
func (s Status) IsTerminal() bool {
	return s == StatusExited || s == StatusFailed
}
