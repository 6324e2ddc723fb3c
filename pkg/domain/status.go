package domain

// Status is a node's position in its lifecycle state machine.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusReady      Status = "READY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusPassed     Status = "PASSED" // terminal success for Controls only
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusBlocked    Status = "BLOCKED"
)

// transitions is the shared transition graph. Every entity kind follows
// the same shape; Controls substitute PASSED for COMPLETED (see graphFor).
var transitions = map[Status][]Status{
	StatusPending:    {StatusReady, StatusCancelled},
	StatusReady:      {StatusInProgress, StatusBlocked, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCancelled, StatusBlocked},
	StatusBlocked:    {StatusReady, StatusCancelled},
	// Terminal states have no outgoing edges.
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// controlTransitions swaps COMPLETED for PASSED on the success edge.
// Unlike the other kinds, a FAILED control is remediable: the gate it
// blocks can only ever clear if the control can be re-run or re-marked.
var controlTransitions = map[Status][]Status{
	StatusPending:    {StatusReady, StatusCancelled},
	StatusReady:      {StatusInProgress, StatusBlocked, StatusCancelled},
	StatusInProgress: {StatusPassed, StatusFailed, StatusCancelled, StatusBlocked},
	StatusBlocked:    {StatusReady, StatusCancelled},
	StatusFailed:     {StatusReady, StatusPassed},
	StatusPassed:     {},
	StatusCancelled:  {},
}

func graphFor(kind EntityType) map[Status][]Status {
	if kind == EntityControl {
		return controlTransitions
	}
	return transitions
}

// CanTransition reports whether the edge from -> to exists in kind's graph.
func CanTransition(kind EntityType, from, to Status) bool {
	for _, s := range graphFor(kind)[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusPassed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TerminalSuccess returns the terminal-success status for the given kind.
func TerminalSuccess(kind EntityType) Status {
	if kind == EntityControl {
		return StatusPassed
	}
	return StatusCompleted
}

// IsTerminalSuccess reports whether s is the terminal-success status for kind.
// Predecessor gating and parent completion rules key off this.
func IsTerminalSuccess(kind EntityType, s Status) bool {
	return s == TerminalSuccess(kind)
}

// ValidStatus reports whether s is a member of kind's state machine.
func ValidStatus(kind EntityType, s Status) bool {
	_, ok := graphFor(kind)[s]
	return ok
}
