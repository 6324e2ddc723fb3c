package domain

import (
	"fmt"
	"time"
)

// Template is an immutable hierarchy node definition. One struct covers
// every template kind; kind-specific flags (Mandatory, Critical) are only
// meaningful for Instructions and Controls respectively.
//
// Templates form a strict tree via ParentID. PredecessorID is an optional
// same-tier edge and must point at a sibling.
type Template struct {
	ID            string     `json:"id"`
	Kind          EntityType `json:"kind"`
	ParentID      string     `json:"parent_id,omitempty"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Order         int        `json:"order"`
	PredecessorID string     `json:"predecessor_id,omitempty"`
	OwnerTeam     string     `json:"owner_team,omitempty"`
	TypeClass     string     `json:"type_class,omitempty"`

	// Mandatory marks an Instruction that gates Step completion.
	Mandatory bool `json:"mandatory,omitempty"`
	// Critical marks a Control that blocks Phase completion while not PASSED.
	Critical bool `json:"critical,omitempty"`

	// Published is set on first materialization and freezes the template.
	Published bool `json:"published,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Validate checks standalone template consistency (tree placement is
// checked against the store by the authoring layer).
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template missing id")
	}
	if !IsTemplateKind(t.Kind) {
		return fmt.Errorf("invalid template kind %q", t.Kind)
	}
	if t.Name == "" {
		return fmt.Errorf("template %s missing name", t.ID)
	}
	if t.Kind == EntityPlan && t.ParentID != "" {
		return fmt.Errorf("plan template %s must not have a parent", t.ID)
	}
	if t.Kind != EntityPlan && t.ParentID == "" {
		return fmt.Errorf("%s template %s missing parent", t.Kind, t.ID)
	}
	if t.PredecessorID == t.ID && t.ID != "" && t.PredecessorID != "" {
		return fmt.Errorf("template %s cannot be its own predecessor", t.ID)
	}
	return nil
}

// FindPredecessorCycle walks a sibling predecessor map (id -> predecessor id)
// and returns the ids participating in a cycle, or nil if acyclic.
// Predecessor edges only exist between siblings, so each sibling set is
// checked independently by callers.
func FindPredecessorCycle(pred map[string]string) []string {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // proven acyclic
	)
	color := make(map[string]int, len(pred))

	for start := range pred {
		if color[start] != white {
			continue
		}
		var path []string
		cur := start
		for cur != "" {
			if color[cur] == black {
				break
			}
			if color[cur] == grey {
				// Trim the path down to the cycle entry point.
				for i, id := range path {
					if id == cur {
						return path[i:]
					}
				}
				return path
			}
			color[cur] = grey
			path = append(path, cur)
			cur = pred[cur]
		}
		for _, id := range path {
			color[id] = black
		}
	}
	return nil
}
