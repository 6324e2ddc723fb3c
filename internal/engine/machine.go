package engine

import (
	"context"
	"fmt"

	"github.com/gantryio/gantry/pkg/domain"
)

// TransitionRequest describes one status transition command.
type TransitionRequest struct {
	// EntityType is an optional sanity check; when set it must match the
	// instance's kind.
	EntityType domain.EntityType

	EntityID string
	Target   domain.Status
	Actor    domain.Actor

	// Expected, when set, is the pre-transition status the caller observed.
	// A mismatch fails with ConcurrentModificationError before any
	// validation or mutation.
	Expected domain.Status
}

// Transition validates and applies one status transition. It either fully
// applies (status, timestamps, audit, notification) or is fully rejected
// with no partial mutation.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*domain.Instance, error) {
	if err := checkRole(req.Actor, minRoleTransition); err != nil {
		return nil, err
	}

	var updated *domain.Instance
	err := e.locks.withLock(ctx, req.EntityID, func(ctx context.Context) error {
		inst, err := e.instances.Get(ctx, req.EntityID)
		if err != nil {
			return err
		}

		if req.EntityType != "" && inst.Kind != req.EntityType {
			e.reject(inst.Kind, "type_mismatch")
			return fmt.Errorf("instance %s is a %s, not a %s", inst.ID, inst.Kind, req.EntityType)
		}
		if err := e.checkIterationOpen(ctx, inst); err != nil {
			e.reject(inst.Kind, "iteration_closed")
			return err
		}
		if req.Expected != "" && inst.Status != req.Expected {
			e.reject(inst.Kind, "concurrent_modification")
			return &domain.ConcurrentModificationError{
				EntityID: inst.ID,
				Expected: req.Expected,
				Observed: inst.Status,
			}
		}
		if !domain.ValidStatus(inst.Kind, req.Target) || !domain.CanTransition(inst.Kind, inst.Status, req.Target) {
			e.reject(inst.Kind, "invalid_transition")
			return &domain.InvalidTransitionError{
				EntityType: inst.Kind,
				EntityID:   inst.ID,
				From:       inst.Status,
				To:         req.Target,
			}
		}

		if err := e.validateGates(ctx, inst, req.Target); err != nil {
			return err
		}

		orig := inst.Clone()
		e.applyStatus(inst, req.Target, req.Actor)

		if err := e.commit(ctx, inst, orig, req.Actor); err != nil {
			return err
		}

		// Cancelling a container cascades to its non-terminal descendants.
		if req.Target == domain.StatusCancelled {
			if err := e.cascadeCancel(ctx, inst, req.Actor); err != nil {
				return err
			}
		}

		e.notify(ctx, domain.TransitionEvent{
			EntityType: inst.Kind,
			EntityID:   inst.ID,
			OldStatus:  orig.Status,
			NewStatus:  inst.Status,
			ActorID:    req.Actor.ID,
			Timestamp:  inst.UpdatedAt,
		})
		updated = inst
		return nil
	})
	return updated, err
}

// validateGates runs the cross-entity blocking rules for the attempted
// target status.
func (e *Engine) validateGates(ctx context.Context, inst *domain.Instance, target domain.Status) error {
	// Opening requires every predecessor to be terminal-success.
	if target == domain.StatusInProgress {
		eligible, blocker, err := e.eligibility(ctx, inst)
		if err != nil {
			return err
		}
		if !eligible {
			e.reject(inst.Kind, "dependency_not_satisfied")
			return &domain.DependencyNotSatisfiedError{
				EntityID:          inst.ID,
				PredecessorID:     blocker.ID,
				PredecessorStatus: blocker.Status,
			}
		}
	}

	if !domain.IsTerminalSuccess(inst.Kind, target) {
		return nil
	}

	switch inst.Kind {
	case domain.EntityStep:
		// A step cannot close while mandatory instructions are open.
		kids, err := e.instances.Children(ctx, inst.ID)
		if err != nil {
			return err
		}
		var incomplete []string
		for _, k := range kids {
			if k.Kind == domain.EntityInstruction && k.Mandatory && !k.IsCompleted {
				incomplete = append(incomplete, k.ID)
			}
		}
		if len(incomplete) > 0 {
			e.reject(inst.Kind, "instructions_incomplete")
			return &domain.InstructionsIncompleteError{StepID: inst.ID, Incomplete: incomplete}
		}

	case domain.EntityPhase:
		// A phase cannot close while child steps are non-terminal or while
		// a critical control is not PASSED.
		kids, err := e.instances.Children(ctx, inst.ID)
		if err != nil {
			return err
		}
		var open []string
		for _, k := range kids {
			if k.Kind == domain.EntityStep && !domain.IsTerminal(k.Status) {
				open = append(open, k.ID)
			}
		}
		if len(open) > 0 {
			e.reject(inst.Kind, "children_open")
			return &domain.ChildrenOpenError{EntityType: inst.Kind, EntityID: inst.ID, OpenIDs: open}
		}

		// The gate is evaluated fresh on every attempt; control status can
		// change between attempts.
		result := gateResultFrom(kids)
		if !result.Passed {
			if e.hooks.OnGateFailure != nil {
				e.hooks.OnGateFailure(inst.ID, len(result.Blocking()))
			}
			e.reject(inst.Kind, "control_gate_failed")
			return &domain.ControlGateFailedError{PhaseID: inst.ID, FailingControls: result.Blocking()}
		}
	}
	return nil
}

// applyStatus mutates the in-memory copy: status, attribution, and the
// joint completion flag/timestamp for instructions.
func (e *Engine) applyStatus(inst *domain.Instance, target domain.Status, actor domain.Actor) {
	now := e.now()
	inst.Status = target
	inst.UpdatedBy = actor.ID
	inst.UpdatedAt = now

	// Attribution is stamped on every terminal transition. A remediated
	// control leaving FAILED loses the stamp again. Instructions are the
	// exception: completedAt is jointly owned with isCompleted, so it is
	// set only when the instruction actually completes.
	if !domain.IsTerminal(target) {
		inst.CompletedBy = ""
		inst.CompletedAt = nil
		return
	}
	if inst.Kind == domain.EntityInstruction {
		if domain.IsTerminalSuccess(inst.Kind, target) {
			inst.IsCompleted = true
			inst.CompletedBy = actor.ID
			inst.CompletedAt = &now
		}
		return
	}
	inst.CompletedBy = actor.ID
	inst.CompletedAt = &now
}

// commit performs the CAS write and the audit append. If the audit write
// fails, the status write is reverted to the pristine pre-transition
// instance: a transition without its audit record is not a committed
// transition.
func (e *Engine) commit(ctx context.Context, inst, orig *domain.Instance, actor domain.Actor) error {
	if err := e.instances.UpdateCAS(ctx, inst, orig.Status); err != nil {
		return err
	}

	entry := &domain.AuditEntry{
		ID:         e.newID(),
		EntityType: inst.Kind,
		EntityID:   inst.ID,
		Op:         domain.AuditTransition,
		ActorID:    actor.ID,
		Changes:    []domain.FieldChange{{Field: "status", Before: string(orig.Status), After: string(inst.Status)}},
		Timestamp:  inst.UpdatedAt,
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		if casErr := e.instances.UpdateCAS(ctx, orig, inst.Status); casErr != nil {
			e.logger.Error("failed to revert uncommitted transition",
				"entity_id", inst.ID, "err", casErr)
		}
		return fmt.Errorf("transition not committed: audit append failed: %w", err)
	}
	return nil
}

// cascadeCancel walks the subtree and cancels every non-terminal
// descendant. Already-terminal descendants are left untouched: cancellation
// does not rewrite history. Each cascaded transition gets its own audit
// entry and notification.
func (e *Engine) cascadeCancel(ctx context.Context, root *domain.Instance, actor domain.Actor) error {
	queue := []string{root.ID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]

		kids, err := e.instances.Children(ctx, parentID)
		if err != nil {
			return err
		}
		for _, kid := range kids {
			queue = append(queue, kid.ID)
			if domain.IsTerminal(kid.Status) {
				continue
			}
			orig := kid.Clone()
			e.applyStatus(kid, domain.StatusCancelled, actor)
			if err := e.commit(ctx, kid, orig, actor); err != nil {
				return fmt.Errorf("cascade cancel of %s: %w", kid.ID, err)
			}
			e.notify(ctx, domain.TransitionEvent{
				EntityType: kid.Kind,
				EntityID:   kid.ID,
				OldStatus:  orig.Status,
				NewStatus:  domain.StatusCancelled,
				ActorID:    actor.ID,
				Timestamp:  kid.UpdatedAt,
			})
		}
	}
	return nil
}
