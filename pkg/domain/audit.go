package domain

import "time"

// AuditOp categorizes what an audit entry records.
type AuditOp string

const (
	AuditTransition  AuditOp = "transition"
	AuditOverride    AuditOp = "override"
	AuditMaterialize AuditOp = "materialize"
	AuditCreate      AuditOp = "create"
)

// FieldChange captures a single before/after pair.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// AuditEntry is one immutable record in the append-only trail. The core
// never updates or deletes entries; retention is an external policy.
type AuditEntry struct {
	ID         string        `json:"id"`
	EntityType EntityType    `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	Op         AuditOp       `json:"op"`
	ActorID    string        `json:"actor_id"`
	Changes    []FieldChange `json:"changes,omitempty"`

	// Summary carries bulk-operation detail, e.g. "materialized 42 entities".
	Summary string `json:"summary,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
