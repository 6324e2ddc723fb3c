package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gantryio/gantry/internal/logging"
	"github.com/gantryio/gantry/pkg/domain"
	"github.com/gantryio/gantry/pkg/ports"
)

// Hooks are optional observability callbacks. Nil members are skipped.
type Hooks struct {
	OnTransition  func(event domain.TransitionEvent)
	OnRejection   func(entityType domain.EntityType, reason string)
	OnMaterialize func(count int)
	OnGateFailure func(phaseID string, failing int)
}

// Engine drives the execution hierarchy: materialization, status
// transitions, gating, overrides, progress and audit.
type Engine struct {
	templates ports.TemplateStore
	instances ports.InstanceStore
	audit     ports.AuditLog
	notifier  ports.Notifier

	locks      *lockMap
	distLocker ports.DistributedLocker
	logger     *slog.Logger
	hooks      Hooks

	now   func() time.Time
	newID func() string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a structured logger. Defaults to no-op.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithNotifier sets the outbound notification collaborator.
func WithNotifier(n ports.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithHooks registers observability hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithLocker enables distributed locking for multi-replica deployments.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) { e.distLocker = l }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides instance ID generation (tests).
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New creates an Engine over the given stores.
func New(templates ports.TemplateStore, instances ports.InstanceStore, audit ports.AuditLog, opts ...Option) *Engine {
	e := &Engine{
		templates: templates,
		instances: instances,
		audit:     audit,
		logger:    logging.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.locks = newLockMap(e.distLocker, e.logger)
	return e
}

// Minimum roles per command family. Full RBAC is the caller's concern;
// the engine only enforces this allow-list.
const (
	minRoleQuery      = domain.RoleViewer
	minRoleTransition = domain.RoleOperator
	minRoleOverride   = domain.RoleOperator
	minRolePlanning   = domain.RolePlanner
)

func checkRole(actor domain.Actor, min domain.Role) error {
	if actor.ID == "" {
		return fmt.Errorf("%w: missing actor id", domain.ErrPermissionDenied)
	}
	if !actor.Role.AtLeast(min) {
		return fmt.Errorf("%w: %s requires at least %s", domain.ErrPermissionDenied, actor.Role, min)
	}
	return nil
}

// CreateMigration creates a top-level migration instance.
func (e *Engine) CreateMigration(ctx context.Context, name string, actor domain.Actor) (*domain.Instance, error) {
	if err := checkRole(actor, minRolePlanning); err != nil {
		return nil, err
	}
	now := e.now()
	mig := &domain.Instance{
		ID:        e.newID(),
		Kind:      domain.EntityMigration,
		Status:    domain.StatusPending,
		Overrides: map[string]any{domain.FieldName: name},
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedBy: actor.ID,
		UpdatedAt: now,
	}
	if err := e.instances.Put(ctx, mig); err != nil {
		return nil, fmt.Errorf("failed to create migration: %w", err)
	}
	if err := e.recordCreate(ctx, mig, actor); err != nil {
		return nil, err
	}
	return mig, nil
}

// CreateIteration creates an iteration under a migration. Iterations start
// PENDING; they must be PENDING or READY when a plan is materialized into
// them.
func (e *Engine) CreateIteration(ctx context.Context, migrationID, name string, actor domain.Actor) (*domain.Instance, error) {
	if err := checkRole(actor, minRolePlanning); err != nil {
		return nil, err
	}
	mig, err := e.instances.Get(ctx, migrationID)
	if err != nil {
		return nil, fmt.Errorf("migration %s: %w", migrationID, err)
	}
	if mig.Kind != domain.EntityMigration {
		return nil, fmt.Errorf("instance %s is a %s, not a migration", migrationID, mig.Kind)
	}

	now := e.now()
	iter := &domain.Instance{
		ID:        e.newID(),
		Kind:      domain.EntityIteration,
		ParentID:  migrationID,
		Status:    domain.StatusPending,
		Overrides: map[string]any{domain.FieldName: name},
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedBy: actor.ID,
		UpdatedAt: now,
	}
	iter.IterationID = iter.ID
	if err := e.instances.Put(ctx, iter); err != nil {
		return nil, fmt.Errorf("failed to create iteration: %w", err)
	}
	if err := e.recordCreate(ctx, iter, actor); err != nil {
		return nil, err
	}
	return iter, nil
}

// CreateTemplate validates and stores a template node. Fails once the plan
// root is published.
func (e *Engine) CreateTemplate(ctx context.Context, tmpl *domain.Template, actor domain.Actor) error {
	if err := checkRole(actor, minRolePlanning); err != nil {
		return err
	}
	if tmpl.ID == "" {
		tmpl.ID = e.newID()
	}
	if err := tmpl.Validate(); err != nil {
		return err
	}

	if tmpl.ParentID != "" {
		parent, err := e.templates.Get(ctx, tmpl.ParentID)
		if err != nil {
			return err
		}
		if parent.Published {
			return domain.ErrTemplateFrozen
		}
		if !domain.ValidChild(parent.Kind, tmpl.Kind) {
			return fmt.Errorf("a %s cannot own a %s", parent.Kind, tmpl.Kind)
		}
	}

	if tmpl.PredecessorID != "" {
		siblings, err := e.templates.Children(ctx, tmpl.ParentID)
		if err != nil {
			return err
		}
		if err := validateTemplatePredecessor(tmpl, siblings); err != nil {
			return err
		}
	}

	tmpl.CreatedBy = actor.ID
	tmpl.CreatedAt = e.now()
	return e.templates.Put(ctx, tmpl)
}

// validateTemplatePredecessor checks that the predecessor is a sibling of
// the same kind and that the resulting sibling graph stays acyclic.
func validateTemplatePredecessor(tmpl *domain.Template, siblings []*domain.Template) error {
	pred := map[string]string{tmpl.ID: tmpl.PredecessorID}
	var found bool
	for _, s := range siblings {
		if s.ID == tmpl.ID {
			continue
		}
		if s.PredecessorID != "" {
			pred[s.ID] = s.PredecessorID
		}
		if s.ID == tmpl.PredecessorID {
			found = true
			if s.Kind != tmpl.Kind {
				return fmt.Errorf("predecessor %s is a %s, expected %s", s.ID, s.Kind, tmpl.Kind)
			}
		}
	}
	if !found {
		return fmt.Errorf("predecessor %s is not a sibling of %s", tmpl.PredecessorID, tmpl.ID)
	}
	if cycle := domain.FindPredecessorCycle(pred); cycle != nil {
		return &domain.CyclicDependencyError{Kind: tmpl.Kind, IDs: cycle}
	}
	return nil
}

// OverrideField records a per-instance divergence from the template without
// touching the template. Predecessor overrides re-validate the sibling
// graph.
func (e *Engine) OverrideField(ctx context.Context, entityID, field string, value any, actor domain.Actor) (*domain.Instance, error) {
	if err := checkRole(actor, minRoleOverride); err != nil {
		return nil, err
	}

	var updated *domain.Instance
	err := e.locks.withLock(ctx, entityID, func(ctx context.Context) error {
		inst, err := e.instances.Get(ctx, entityID)
		if err != nil {
			return err
		}
		if err := e.checkIterationOpen(ctx, inst); err != nil {
			return err
		}
		orig := inst.Clone()

		before := fmt.Sprint(inst.Overrides[field])
		if inst.Overrides[field] == nil {
			before = ""
		}

		if err := inst.SetOverride(field, value); err != nil {
			return err
		}

		if field == domain.FieldPredecessor {
			if err := e.validateInstancePredecessor(ctx, inst); err != nil {
				return err
			}
		}

		inst.UpdatedBy = actor.ID
		inst.UpdatedAt = e.now()

		// CAS on the unchanged status guards against a concurrent
		// transition racing the override.
		if err := e.instances.UpdateCAS(ctx, inst, inst.Status); err != nil {
			return err
		}

		entry := &domain.AuditEntry{
			ID:         e.newID(),
			EntityType: inst.Kind,
			EntityID:   inst.ID,
			Op:         domain.AuditOverride,
			ActorID:    actor.ID,
			Changes:    []domain.FieldChange{{Field: field, Before: before, After: fmt.Sprint(value)}},
			Timestamp:  e.now(),
		}
		if err := e.audit.Append(ctx, entry); err != nil {
			// The override is reverted: a divergence without its audit
			// record is not a committed divergence.
			if casErr := e.instances.UpdateCAS(ctx, orig, inst.Status); casErr != nil {
				e.logger.Error("failed to revert uncommitted override",
					"entity_id", inst.ID, "err", casErr)
			}
			return fmt.Errorf("override not committed: audit append failed: %w", err)
		}
		updated = inst
		return nil
	})
	return updated, err
}

// validateInstancePredecessor enforces sibling-only predecessor links and
// recheck acyclicity after an override.
func (e *Engine) validateInstancePredecessor(ctx context.Context, inst *domain.Instance) error {
	if inst.PredecessorID == "" {
		return nil
	}
	siblings, err := e.instances.Children(ctx, inst.ParentID)
	if err != nil {
		return err
	}
	pred := map[string]string{inst.ID: inst.PredecessorID}
	var found bool
	for _, s := range siblings {
		if s.ID == inst.ID {
			continue
		}
		if s.PredecessorID != "" {
			pred[s.ID] = s.PredecessorID
		}
		if s.ID == inst.PredecessorID {
			found = true
			if s.Kind != inst.Kind {
				return fmt.Errorf("predecessor %s is a %s, expected %s", s.ID, s.Kind, inst.Kind)
			}
		}
	}
	if !found {
		return fmt.Errorf("predecessor %s is not a sibling of %s", inst.PredecessorID, inst.ID)
	}
	if cycle := domain.FindPredecessorCycle(pred); cycle != nil {
		return &domain.CyclicDependencyError{Kind: inst.Kind, IDs: cycle}
	}
	return nil
}

// AuditTrail returns the append-only trail for one entity, oldest first.
func (e *Engine) AuditTrail(ctx context.Context, entityID string) ([]*domain.AuditEntry, error) {
	return e.audit.ByEntity(ctx, entityID)
}

// GetInstance returns a copy of an instance.
func (e *Engine) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	return e.instances.Get(ctx, id)
}

// checkIterationOpen rejects mutation of any instance owned by a terminal
// iteration. The iteration's own closing transition is still permitted.
func (e *Engine) checkIterationOpen(ctx context.Context, inst *domain.Instance) error {
	if inst.Kind == domain.EntityMigration || inst.Kind == domain.EntityIteration {
		return nil
	}
	if inst.IterationID == "" {
		return fmt.Errorf("instance %s has no owning iteration", inst.ID)
	}
	iter, err := e.instances.Get(ctx, inst.IterationID)
	if err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			return fmt.Errorf("instance %s: owning iteration %s missing", inst.ID, inst.IterationID)
		}
		return err
	}
	if domain.IsTerminal(iter.Status) {
		return domain.ErrIterationClosed
	}
	return nil
}

// recordCreate appends the audit entry for a directly created instance.
func (e *Engine) recordCreate(ctx context.Context, inst *domain.Instance, actor domain.Actor) error {
	entry := &domain.AuditEntry{
		ID:         e.newID(),
		EntityType: inst.Kind,
		EntityID:   inst.ID,
		Op:         domain.AuditCreate,
		ActorID:    actor.ID,
		Timestamp:  e.now(),
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		// Roll the creation back: an instance without its audit record is
		// not a committed instance.
		if delErr := e.instances.Delete(ctx, inst.ID); delErr != nil {
			e.logger.Error("failed to roll back uncommitted create",
				"entity_id", inst.ID, "err", delErr)
		}
		return fmt.Errorf("create not committed: audit append failed: %w", err)
	}
	return nil
}

// notify emits the event best-effort. Delivery failure is logged and never
// propagates to the transition.
func (e *Engine) notify(ctx context.Context, event domain.TransitionEvent) {
	if e.hooks.OnTransition != nil {
		e.hooks.OnTransition(event)
	}
	if e.notifier == nil || !event.Notifiable() {
		return
	}
	if err := e.notifier.Emit(ctx, event); err != nil {
		e.logger.Warn("notification delivery failed",
			"entity_type", string(event.EntityType),
			"entity_id", event.EntityID,
			"new_status", string(event.NewStatus),
			"err", err,
		)
	}
}

func (e *Engine) reject(kind domain.EntityType, reason string) {
	if e.hooks.OnRejection != nil {
		e.hooks.OnRejection(kind, reason)
	}
}
