package engine

import (
	"context"
	"fmt"

	"github.com/gantryio/gantry/pkg/domain"
)

// MaterializeResult summarizes one materialization pass.
type MaterializeResult struct {
	PlanInstanceID string `json:"plan_instance_id"`
	Created        int    `json:"created"`
}

// Materialize clones the plan template subtree into a live instance subtree
// under the iteration, in a single all-or-nothing commit.
//
// The template root is published (frozen) before cloning, so the first
// materialization permanently locks the template tier. Predecessor edges
// are re-resolved to sibling instance IDs so later per-instance overrides
// never touch the template graph.
func (e *Engine) Materialize(ctx context.Context, iterationID, planTemplateID string, actor domain.Actor) (*MaterializeResult, error) {
	if err := checkRole(actor, minRolePlanning); err != nil {
		return nil, err
	}

	var result *MaterializeResult
	// Lock the iteration so two materializations cannot interleave. The
	// bulk work never takes per-instance locks, so transitions elsewhere
	// are unaffected.
	err := e.locks.withLock(ctx, iterationID, func(ctx context.Context) error {
		iter, err := e.instances.Get(ctx, iterationID)
		if err != nil {
			return fmt.Errorf("iteration %s: %w", iterationID, err)
		}
		if iter.Kind != domain.EntityIteration {
			return fmt.Errorf("instance %s is a %s, not an iteration", iterationID, iter.Kind)
		}
		if iter.Status != domain.StatusPending && iter.Status != domain.StatusReady {
			return &domain.IterationStateError{IterationID: iterationID, Status: iter.Status}
		}

		existing, err := e.instances.Children(ctx, iterationID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("iteration %s already has a materialized plan", iterationID)
		}

		root, err := e.templates.Get(ctx, planTemplateID)
		if err != nil {
			return err
		}
		if root.Kind != domain.EntityPlan {
			return fmt.Errorf("template %s is a %s, not a plan", planTemplateID, root.Kind)
		}

		// Freeze on first instantiation.
		if err := e.templates.Publish(ctx, planTemplateID); err != nil {
			return err
		}

		insts, planInstanceID, err := e.cloneSubtree(ctx, root, iter, actor)
		if err != nil {
			return err
		}

		// Single commit: no instance is visible until all are.
		if err := e.instances.PutBatch(ctx, insts); err != nil {
			return fmt.Errorf("failed to commit materialized subtree: %w", err)
		}

		// Bulk operation, bulk audit: one summary entry. Leaf-level audit
		// starts when each leaf first mutates.
		entry := &domain.AuditEntry{
			ID:         e.newID(),
			EntityType: domain.EntityPlan,
			EntityID:   planInstanceID,
			Op:         domain.AuditMaterialize,
			ActorID:    actor.ID,
			Summary:    fmt.Sprintf("materialized %d entities from template %s into iteration %s", len(insts), planTemplateID, iterationID),
			Timestamp:  e.now(),
		}
		if err := e.audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("materialization not committed: audit append failed: %w", err)
		}

		if e.hooks.OnMaterialize != nil {
			e.hooks.OnMaterialize(len(insts))
		}
		e.logger.Info("materialized plan",
			"plan_template", planTemplateID,
			"iteration", iterationID,
			"entities", len(insts),
		)

		result = &MaterializeResult{PlanInstanceID: planInstanceID, Created: len(insts)}
		return nil
	})
	return result, err
}

// cloneSubtree walks the template tree breadth-first, creating one instance
// per template and re-resolving predecessor edges against the new instance
// IDs. Sibling predecessor graphs are re-checked for cycles on the way
// (defensive; authoring already validates).
func (e *Engine) cloneSubtree(ctx context.Context, root *domain.Template, iter *domain.Instance, actor domain.Actor) ([]*domain.Instance, string, error) {
	now := e.now()
	idMap := make(map[string]string) // template ID -> instance ID
	var insts []*domain.Instance
	var tmpls []*domain.Template

	newInstance := func(t *domain.Template, parentInstanceID string) *domain.Instance {
		inst := &domain.Instance{
			ID:          e.newID(),
			Kind:        t.Kind,
			TemplateID:  t.ID,
			ParentID:    parentInstanceID,
			IterationID: iter.ID,
			Status:      domain.StatusPending,
			Mandatory:   t.Mandatory,
			Critical:    t.Critical,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedBy:   actor.ID,
			UpdatedAt:   now,
		}
		idMap[t.ID] = inst.ID
		insts = append(insts, inst)
		tmpls = append(tmpls, t)
		return inst
	}

	planInst := newInstance(root, iter.ID)

	type frame struct {
		tmpl *domain.Template
		inst *domain.Instance
	}
	queue := []frame{{root, planInst}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		kids, err := e.templates.Children(ctx, f.tmpl.ID)
		if err != nil {
			return nil, "", err
		}
		if len(kids) == 0 {
			continue
		}

		pred := make(map[string]string)
		for _, kid := range kids {
			if kid.PredecessorID != "" {
				pred[kid.ID] = kid.PredecessorID
			}
		}
		if cycle := domain.FindPredecessorCycle(pred); cycle != nil {
			return nil, "", &domain.CyclicDependencyError{Kind: kids[0].Kind, IDs: cycle}
		}

		for _, kid := range kids {
			queue = append(queue, frame{kid, newInstance(kid, f.inst.ID)})
		}
	}

	// Second pass: rewrite predecessor edges template ID -> instance ID.
	for i, t := range tmpls {
		if t.PredecessorID == "" {
			continue
		}
		predID, ok := idMap[t.PredecessorID]
		if !ok {
			return nil, "", fmt.Errorf("template %s: predecessor %s not in subtree", t.ID, t.PredecessorID)
		}
		insts[i].PredecessorID = predID
	}

	return insts, planInst.ID, nil
}
