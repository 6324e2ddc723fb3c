package domain

import "time"

// TransitionEvent is the outbound notification payload. It is emitted on
// transitions into any terminal status, into BLOCKED, and on control
// failures. Delivery is best-effort and never affects the transition.
type TransitionEvent struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	OldStatus  Status     `json:"old_status"`
	NewStatus  Status     `json:"new_status"`
	ActorID    string     `json:"actor_id"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Notifiable reports whether a transition qualifies for emission.
func (e TransitionEvent) Notifiable() bool {
	if e.NewStatus == StatusBlocked {
		return true
	}
	if e.EntityType == EntityControl && e.NewStatus == StatusFailed {
		return true
	}
	return IsTerminal(e.NewStatus)
}
