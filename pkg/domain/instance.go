package domain

import (
	"fmt"
	"time"
)

// Overridable fields on an instance. Values in Instance.Overrides are keyed
// by these names; anything else is rejected by OverrideField.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldOrder       = "order"
	FieldPredecessor = "predecessor"
	FieldOwnerTeam   = "owner_team"
)

// Instance is a live execution copy of a template node, scoped to one
// Iteration. Migrations and Iterations are instances too, just without a
// template behind them.
//
// Gating flags (Mandatory, Critical) and the predecessor link are snapshotted
// at materialization so the hot path never has to consult the template tier.
// Everything else resolves override -> template on read.
type Instance struct {
	ID         string     `json:"id"`
	Kind       EntityType `json:"kind"`
	TemplateID string     `json:"template_id,omitempty"` // provenance, empty for migration/iteration
	ParentID   string     `json:"parent_id,omitempty"`

	// IterationID anchors the instance to its owning iteration. For the
	// iteration instance itself it equals ID; for migrations it is empty.
	IterationID string `json:"iteration_id,omitempty"`

	// PredecessorID references a sibling *instance* (re-resolved from the
	// template graph during materialization).
	PredecessorID string `json:"predecessor_id,omitempty"`

	Status Status `json:"status"`

	// Overrides holds per-instance divergence from the template, keyed by
	// field name. The template itself is never touched.
	Overrides map[string]any `json:"overrides,omitempty"`

	Mandatory bool `json:"mandatory,omitempty"`
	Critical  bool `json:"critical,omitempty"`

	// IsCompleted and CompletedAt are jointly set for Instructions: either
	// both zero or both populated.
	IsCompleted bool       `json:"is_completed,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy. Stores hand out copies so callers can never
// mutate persisted state through a shared pointer.
func (in *Instance) Clone() *Instance {
	cp := *in
	if in.Overrides != nil {
		cp.Overrides = make(map[string]any, len(in.Overrides))
		for k, v := range in.Overrides {
			cp.Overrides[k] = v
		}
	}
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// EffectiveName resolves the display name: override first, then template.
func (in *Instance) EffectiveName(tmpl *Template) string {
	if v, ok := in.Overrides[FieldName].(string); ok {
		return v
	}
	if tmpl != nil {
		return tmpl.Name
	}
	return ""
}

// EffectiveDescription resolves the description: override first, then template.
func (in *Instance) EffectiveDescription(tmpl *Template) string {
	if v, ok := in.Overrides[FieldDescription].(string); ok {
		return v
	}
	if tmpl != nil {
		return tmpl.Description
	}
	return ""
}

// EffectiveOrder resolves the ordering position: override first, then template.
func (in *Instance) EffectiveOrder(tmpl *Template) int {
	switch v := in.Overrides[FieldOrder].(type) {
	case int:
		return v
	case float64: // JSON round-trips numbers as float64
		return int(v)
	}
	if tmpl != nil {
		return tmpl.Order
	}
	return 0
}

// SetOverride records a field override. The predecessor field is special:
// it rewrites the instance-level link directly (the link drives gating) and
// is still recorded in Overrides for provenance.
func (in *Instance) SetOverride(field string, value any) error {
	switch field {
	case FieldName, FieldDescription, FieldOwnerTeam:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("override %s requires a string, got %T", field, value)
		}
		in.ensureOverrides()
		in.Overrides[field] = s
	case FieldOrder:
		switch v := value.(type) {
		case int:
			in.ensureOverrides()
			in.Overrides[field] = v
		case float64:
			in.ensureOverrides()
			in.Overrides[field] = int(v)
		default:
			return fmt.Errorf("override %s requires an integer, got %T", field, value)
		}
	case FieldPredecessor:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("override %s requires a string, got %T", field, value)
		}
		in.ensureOverrides()
		in.Overrides[field] = s
		in.PredecessorID = s
	default:
		return fmt.Errorf("field %q is not overridable", field)
	}
	return nil
}

func (in *Instance) ensureOverrides() {
	if in.Overrides == nil {
		in.Overrides = make(map[string]any)
	}
}
