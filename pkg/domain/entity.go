package domain

// EntityType identifies a tier of the execution hierarchy.
type EntityType string

const (
	EntityMigration   EntityType = "migration"
	EntityIteration   EntityType = "iteration"
	EntityPlan        EntityType = "plan"
	EntitySequence    EntityType = "sequence"
	EntityPhase       EntityType = "phase"
	EntityStep        EntityType = "step"
	EntityInstruction EntityType = "instruction"
	EntityControl     EntityType = "control"
)

// childKinds maps each container type to the kinds it may own.
// Controls hang off Phases alongside Steps.
var childKinds = map[EntityType][]EntityType{
	EntityMigration: {EntityIteration},
	EntityIteration: {EntityPlan},
	EntityPlan:      {EntitySequence},
	EntitySequence:  {EntityPhase},
	EntityPhase:     {EntityStep, EntityControl},
	EntityStep:      {EntityInstruction},
}

// ValidChild reports whether child may be owned by parent.
func ValidChild(parent, child EntityType) bool {
	for _, k := range childKinds[parent] {
		if k == child {
			return true
		}
	}
	return false
}

// TemplateKinds lists the entity types that exist in the template tier.
// Migrations and Iterations are execution-only and have no templates.
var TemplateKinds = []EntityType{
	EntityPlan, EntitySequence, EntityPhase, EntityStep, EntityInstruction, EntityControl,
}

// IsTemplateKind reports whether the type belongs to the template tier.
func IsTemplateKind(t EntityType) bool {
	for _, k := range TemplateKinds {
		if k == t {
			return true
		}
	}
	return false
}
