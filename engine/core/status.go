package core

// StatusType tracks the lifecycle of a single execution. Transitions are
// monotonic: pending -> running -> exactly one terminal state.
type StatusType string

const (
	StatusPending StatusType = "pending"
	StatusRunning StatusType = "running"
	StatusSuccess StatusType = "success"
	StatusFailed  StatusType = "failed"
)

func (s StatusType) String() string {
	return string(s)
}

// IsTerminal reports whether the status can no longer change.
func (s StatusType) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}
