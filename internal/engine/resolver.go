package engine

import (
	"context"

	"github.com/gantryio/gantry/pkg/domain"
)

// IsEligible reports whether the instance may open: every direct
// predecessor must be in terminal-success. Instances without a predecessor
// are always eligible. Read-only and side-effect-free; safe for speculative
// polling.
func (e *Engine) IsEligible(ctx context.Context, instanceID string) (bool, error) {
	inst, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		return false, err
	}
	eligible, _, err := e.eligibility(ctx, inst)
	return eligible, err
}

// eligibility returns the blocking predecessor when not eligible.
func (e *Engine) eligibility(ctx context.Context, inst *domain.Instance) (bool, *domain.Instance, error) {
	if inst.PredecessorID == "" {
		return true, nil, nil
	}
	pred, err := e.instances.Get(ctx, inst.PredecessorID)
	if err != nil {
		return false, nil, err
	}
	if !domain.IsTerminalSuccess(pred.Kind, pred.Status) {
		return false, pred, nil
	}
	return true, nil, nil
}
