package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for lookup failures and frozen state.
var (
	// ErrInstanceNotFound is returned when an instance ID cannot be resolved.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrTemplateFrozen is returned when mutating a template that has
	// already been materialized.
	ErrTemplateFrozen = errors.New("template is published and frozen")

	// ErrIterationClosed is returned when mutating any instance under an
	// iteration that has reached a terminal status.
	ErrIterationClosed = errors.New("iteration is terminal; instances are read-only")

	// ErrPermissionDenied is returned when the actor's role is below the
	// command's minimum.
	ErrPermissionDenied = errors.New("actor role not permitted for this command")
)

// TemplateNotFoundError reports a missing template reference.
type TemplateNotFoundError struct {
	TemplateID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %s not found", e.TemplateID)
}

// CyclicDependencyError reports a predecessor cycle among siblings.
type CyclicDependencyError struct {
	Kind EntityType
	IDs  []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("predecessor cycle among %s nodes: %s", e.Kind, strings.Join(e.IDs, " -> "))
}

// IterationStateError reports an iteration in the wrong status for the
// attempted operation (e.g. materializing into an active iteration).
type IterationStateError struct {
	IterationID string
	Status      Status
}

func (e *IterationStateError) Error() string {
	return fmt.Sprintf("iteration %s is %s, not in a pre-activation status", e.IterationID, e.Status)
}

// InvalidTransitionError reports an edge that does not exist in the
// entity's state machine. Never retried.
type InvalidTransitionError struct {
	EntityType EntityType
	EntityID   string
	From       Status
	To         Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s: illegal transition %s -> %s", e.EntityType, e.EntityID, e.From, e.To)
}

// DependencyNotSatisfiedError reports an open attempt whose predecessor has
// not reached terminal success. Expected and recoverable: callers poll or
// subscribe and retry once the predecessor completes.
type DependencyNotSatisfiedError struct {
	EntityID          string
	PredecessorID     string
	PredecessorStatus Status
}

func (e *DependencyNotSatisfiedError) Error() string {
	return fmt.Sprintf("instance %s cannot open: predecessor %s is %s", e.EntityID, e.PredecessorID, e.PredecessorStatus)
}

// FailedControl identifies one control that blocked a phase gate.
type FailedControl struct {
	ControlID string `json:"control_id"`
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
}

// ControlGateFailedError reports a phase-complete attempt vetoed by one or
// more critical controls. Recoverable only through remediation of the
// controls themselves.
type ControlGateFailedError struct {
	PhaseID         string
	FailingControls []FailedControl
}

func (e *ControlGateFailedError) Error() string {
	ids := make([]string, len(e.FailingControls))
	for i, c := range e.FailingControls {
		ids[i] = c.ControlID
	}
	return fmt.Sprintf("phase %s gate failed: blocking controls [%s]", e.PhaseID, strings.Join(ids, ", "))
}

// InstructionsIncompleteError reports a step-complete attempt with mandatory
// instructions still open.
type InstructionsIncompleteError struct {
	StepID     string
	Incomplete []string
}

func (e *InstructionsIncompleteError) Error() string {
	return fmt.Sprintf("step %s has %d incomplete mandatory instructions", e.StepID, len(e.Incomplete))
}

// ChildrenOpenError reports a container-complete attempt while child
// instances are still non-terminal.
type ChildrenOpenError struct {
	EntityType EntityType
	EntityID   string
	OpenIDs    []string
}

func (e *ChildrenOpenError) Error() string {
	return fmt.Sprintf("%s %s cannot complete: %d children still open", e.EntityType, e.EntityID, len(e.OpenIDs))
}

// ConcurrentModificationError reports a compare-and-swap failure: the
// observed status no longer matches the expected pre-transition status.
// Recoverable: re-read and retry.
type ConcurrentModificationError struct {
	EntityID string
	Expected Status
	Observed Status
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("instance %s modified concurrently: expected %s, observed %s", e.EntityID, e.Expected, e.Observed)
}
