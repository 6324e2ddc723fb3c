package engine

import (
	"context"
	"fmt"

	"github.com/gantryio/gantry/pkg/domain"
)

// Progress is a derived completion rollup. Never persisted; always
// recomputed from current instance state to avoid drift.
type Progress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Percentage float64 `json:"percentage"`
}

// Completion computes a step's completion from its instruction instances.
func (e *Engine) Completion(ctx context.Context, stepInstanceID string) (Progress, error) {
	step, err := e.instances.Get(ctx, stepInstanceID)
	if err != nil {
		return Progress{}, err
	}
	if step.Kind != domain.EntityStep {
		return Progress{}, fmt.Errorf("instance %s is a %s, not a step", step.ID, step.Kind)
	}

	kids, err := e.instances.Children(ctx, step.ID)
	if err != nil {
		return Progress{}, err
	}

	var p Progress
	for _, k := range kids {
		if k.Kind != domain.EntityInstruction {
			continue
		}
		p.Total++
		if k.IsCompleted {
			p.Completed++
		}
	}
	if p.Total == 0 {
		// A step with no instructions has nothing outstanding.
		p.Percentage = 100
		return p, nil
	}
	p.Percentage = float64(p.Completed) / float64(p.Total) * 100
	return p, nil
}
