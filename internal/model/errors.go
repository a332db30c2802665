package model

import "fmt"

// CapacityError reports a branch count outside the planner's configured range.
type CapacityError struct {
	Requested int
	Max       int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("branch count %d out of range: must be between 1 and %d", e.Requested, e.Max)
}

// InconsistentPlanError is an internal invariant violation: a component received
// a plan or topology referencing something the planner did not allocate.
type InconsistentPlanError struct {
	Reason string
}

func (e *InconsistentPlanError) Error() string {
	return "inconsistent plan: " + e.Reason
}

func Inconsistent(format string, args ...interface{}) error {
	return &InconsistentPlanError{Reason: fmt.Sprintf(format, args...)}
}

// RealizationError wraps a failure of the emulation environment.
type RealizationError struct {
	Node string
	Op   string
	Err  error
}

func (e *RealizationError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("realize %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("realize %s on %s: %v", e.Op, e.Node, e.Err)
}

func (e *RealizationError) Unwrap() error {
	return e.Err
}
