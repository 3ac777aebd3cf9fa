// Package phase sequences module loads through an ordered series of named
// startup phases, each with its own concurrency bound and required flag.
package phase

import (
	"fmt"
)

// Phase is one ordered group of modules that must reach a terminal collective
// state before the next phase starts.
type Phase struct {
	Name             string
	ModuleIDs        []string
	Required         bool
	ConcurrencyLimit int
}

// State is the lifecycle state of a single phase.
type State int

const (
	// NotStarted means the phase has not been dispatched yet.
	NotStarted State = iota
	// InProgress means at least one module of the phase is being loaded.
	InProgress
	// Completed means every required module reached loaded.
	Completed
	// Degraded means every required module reached loaded or fallback, and
	// at least one used a fallback.
	Degraded
	// Aborted means a required module failed with no fallback available.
	// This is fatal for the whole sequence.
	Aborted
)

// String returns the phase state name.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Degraded:
		return "degraded"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether s allows the sequence to move past the phase.
func (s State) Terminal() bool {
	return s == Completed || s == Degraded || s == Aborted
}

// Result aggregates the per-module outcomes of one phase.
type Result struct {
	Phase    string
	State    State
	Loaded   []string
	Fallback []string
	Failed   []string
	// Err is the root cause when the phase aborted.
	Err error
}

// ErrPhaseAborted wraps the root cause of a fatal phase failure.
type ErrPhaseAborted struct {
	Phase string
	Cause error
}

// Error implements the error interface.
func (e *ErrPhaseAborted) Error() string {
	return fmt.Sprintf("phase '%s' aborted: %v", e.Phase, e.Cause)
}

// Unwrap returns the root cause.
func (e *ErrPhaseAborted) Unwrap() error {
	return e.Cause
}
