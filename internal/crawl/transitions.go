package crawl

import "fmt"

// ErrIllegalTransition is returned for status changes outside the state machine.
type ErrIllegalTransition struct {
	From JobStatus
	To   JobStatus
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal job transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether moving a job from one status to another is
// legal. The machine is pending -> running -> {completed, failed}, plus the
// administrative running -> failed stuck-job reset (the same edge) and the
// retry reset running -> pending handled by ScheduleRetry. Terminal states
// are left only through the operator-level ResetFailed, which is modeled as
// failed -> pending.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusPending
	case JobStatusFailed:
		return to == JobStatusPending
	default:
		return false
	}
}

// CheckTransition returns an ErrIllegalTransition when the edge is not allowed.
func CheckTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return &ErrIllegalTransition{From: from, To: to}
	}
	return nil
}
