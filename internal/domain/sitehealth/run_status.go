package sitehealth

import "fmt"

// RunStatus represents the lifecycle state of a ScanRun.
type RunStatus string

const (
	// RunStatusIdle indicates no run has been started yet.
	RunStatusIdle RunStatus = "idle"
	// RunStatusRunning indicates batches are still being processed.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates every target has been visited.
	RunStatusCompleted RunStatus = "completed"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string { return string(s) }

// ParseRunStatus converts a string to a RunStatus.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunStatusIdle, RunStatusRunning, RunStatusCompleted:
		return RunStatus(s), nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}

// IsTerminal reports whether the poller should stop observing this status.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusIdle
}

// ValidateTransition reports an error when moving from s to target is not
// allowed. Starting while running yields ErrRunAlreadyRunning.
func (s RunStatus) ValidateTransition(target RunStatus) error {
	if s == RunStatusRunning && target == RunStatusRunning {
		return ErrRunAlreadyRunning
	}
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid run status transition from %s to %s", s, target)
	}
	return nil
}

func (s RunStatus) isValidTransition(target RunStatus) bool {
	switch s {
	case RunStatusIdle:
		return target == RunStatusRunning
	case RunStatusRunning:
		return target == RunStatusCompleted
	case RunStatusCompleted:
		return target == RunStatusRunning
	default:
		return false
	}
}
