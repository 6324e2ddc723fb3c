package engine

import (
	"context"
	"fmt"

	"github.com/gantryio/gantry/pkg/domain"
)

// GateResult is the outcome of evaluating a phase's controls.
// Failing lists every control not in terminal-success, critical or not;
// only critical ones block (Passed is false iff at least one critical
// control is not PASSED).
type GateResult struct {
	Passed  bool                   `json:"passed"`
	Failing []domain.FailedControl `json:"failing_controls,omitempty"`
}

// Blocking returns the critical subset of Failing.
func (r GateResult) Blocking() []domain.FailedControl {
	var out []domain.FailedControl
	for _, c := range r.Failing {
		if c.Critical {
			out = append(out, c)
		}
	}
	return out
}

// EvaluateGate evaluates a phase's controls. Results are never cached:
// control status can change between attempts, so every phase-complete
// attempt re-evaluates.
func (e *Engine) EvaluateGate(ctx context.Context, phaseInstanceID string) (GateResult, error) {
	phase, err := e.instances.Get(ctx, phaseInstanceID)
	if err != nil {
		return GateResult{}, err
	}
	if phase.Kind != domain.EntityPhase {
		return GateResult{}, fmt.Errorf("instance %s is a %s, not a phase", phase.ID, phase.Kind)
	}
	kids, err := e.instances.Children(ctx, phase.ID)
	if err != nil {
		return GateResult{}, err
	}
	return gateResultFrom(kids), nil
}

func gateResultFrom(kids []*domain.Instance) GateResult {
	result := GateResult{Passed: true}
	for _, k := range kids {
		if k.Kind != domain.EntityControl {
			continue
		}
		if k.Status == domain.StatusPassed {
			continue
		}
		result.Failing = append(result.Failing, domain.FailedControl{
			ControlID: k.ID,
			Status:    k.Status,
			Critical:  k.Critical,
		})
		if k.Critical {
			result.Passed = false
		}
	}
	return result
}
