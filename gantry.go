package gantry

import (
	"context"
	"log/slog"

	"github.com/gantryio/gantry/internal/adapters/file"
	"github.com/gantryio/gantry/internal/adapters/memory"
	"github.com/gantryio/gantry/internal/engine"
	"github.com/gantryio/gantry/pkg/domain"
	"github.com/gantryio/gantry/pkg/ports"
)

// Version is the library version, overridable at build time via ldflags.
var Version = "0.1.0"

// Engine is the high-level entry point for the gantry library. It wraps the
// internal execution engine with in-memory defaults so embedding it takes
// one call; production deployments swap in durable adapters via options.
type Engine struct {
	core *engine.Engine

	templates ports.TemplateStore
	instances ports.InstanceStore
	audit     ports.AuditLog
	notifier  ports.Notifier
	locker    ports.DistributedLocker
	logger    *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithTemplateStore injects a template store adapter.
func WithTemplateStore(s ports.TemplateStore) Option {
	return func(e *Engine) { e.templates = s }
}

// WithInstanceStore injects an instance store adapter.
func WithInstanceStore(s ports.InstanceStore) Option {
	return func(e *Engine) { e.instances = s }
}

// WithAuditLog injects an audit log adapter.
func WithAuditLog(a ports.AuditLog) Option {
	return func(e *Engine) { e.audit = a }
}

// WithNotifier injects the outbound notification collaborator.
func WithNotifier(n ports.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithDistributedLocker enables cross-replica locking.
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New initializes an Engine. Without options everything runs in memory.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.templates == nil {
		e.templates = memory.NewTemplateStore()
	}
	if e.instances == nil {
		e.instances = memory.NewInstanceStore()
	}
	if e.audit == nil {
		e.audit = memory.NewAuditLog()
	}

	var coreOpts []engine.Option
	if e.notifier != nil {
		coreOpts = append(coreOpts, engine.WithNotifier(e.notifier))
	}
	if e.locker != nil {
		coreOpts = append(coreOpts, engine.WithLocker(e.locker))
	}
	if e.logger != nil {
		coreOpts = append(coreOpts, engine.WithLogger(e.logger))
	}
	e.core = engine.New(e.templates, e.instances, e.audit, coreOpts...)
	return e
}

// TransitionRequest describes one status transition command.
type TransitionRequest struct {
	// EntityType is an optional sanity check against the instance's kind.
	EntityType domain.EntityType
	EntityID   string
	Target     domain.Status
	Actor      domain.Actor
	// Expected, when set, is the caller-observed pre-transition status; a
	// mismatch fails with *domain.ConcurrentModificationError.
	Expected domain.Status
}

// MaterializeResult summarizes one materialization pass.
type MaterializeResult struct {
	PlanInstanceID string
	Created        int
}

// GateResult is the outcome of evaluating a phase's controls.
type GateResult struct {
	Passed  bool
	Failing []domain.FailedControl
}

// Progress is a derived completion rollup.
type Progress struct {
	Total      int
	Completed  int
	Percentage float64
}

// CreateMigration creates a top-level migration instance.
func (e *Engine) CreateMigration(ctx context.Context, name string, actor domain.Actor) (*domain.Instance, error) {
	return e.core.CreateMigration(ctx, name, actor)
}

// CreateIteration creates an iteration under a migration.
func (e *Engine) CreateIteration(ctx context.Context, migrationID, name string, actor domain.Actor) (*domain.Instance, error) {
	return e.core.CreateIteration(ctx, migrationID, name, actor)
}

// CreateTemplate validates and stores one template node.
func (e *Engine) CreateTemplate(ctx context.Context, tmpl *domain.Template, actor domain.Actor) error {
	return e.core.CreateTemplate(ctx, tmpl, actor)
}

// LoadPlanFile parses a YAML plan file and stores its template tree.
func (e *Engine) LoadPlanFile(ctx context.Context, path string, actor domain.Actor) (int, error) {
	tmpls, err := file.LoadPlan(path)
	if err != nil {
		return 0, err
	}
	for i, tmpl := range tmpls {
		if err := e.core.CreateTemplate(ctx, tmpl, actor); err != nil {
			return i, err
		}
	}
	return len(tmpls), nil
}

// Materialize clones a plan template tree into live instances under an
// iteration and freezes the template.
func (e *Engine) Materialize(ctx context.Context, iterationID, planTemplateID string, actor domain.Actor) (*MaterializeResult, error) {
	res, err := e.core.Materialize(ctx, iterationID, planTemplateID, actor)
	if err != nil {
		return nil, err
	}
	return &MaterializeResult{PlanInstanceID: res.PlanInstanceID, Created: res.Created}, nil
}

// Transition validates and applies one status transition.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*domain.Instance, error) {
	return e.core.Transition(ctx, engine.TransitionRequest{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Target:     req.Target,
		Actor:      req.Actor,
		Expected:   req.Expected,
	})
}

// OverrideField records a per-instance field override.
func (e *Engine) OverrideField(ctx context.Context, entityID, field string, value any, actor domain.Actor) (*domain.Instance, error) {
	return e.core.OverrideField(ctx, entityID, field, value, actor)
}

// IsEligible reports whether the instance's predecessor gating allows it to
// open.
func (e *Engine) IsEligible(ctx context.Context, instanceID string) (bool, error) {
	return e.core.IsEligible(ctx, instanceID)
}

// EvaluateGate evaluates a phase's control gate.
func (e *Engine) EvaluateGate(ctx context.Context, phaseInstanceID string) (GateResult, error) {
	res, err := e.core.EvaluateGate(ctx, phaseInstanceID)
	if err != nil {
		return GateResult{}, err
	}
	return GateResult{Passed: res.Passed, Failing: res.Failing}, nil
}

// Completion computes a step's instruction completion.
func (e *Engine) Completion(ctx context.Context, stepInstanceID string) (Progress, error) {
	res, err := e.core.Completion(ctx, stepInstanceID)
	if err != nil {
		return Progress{}, err
	}
	return Progress{Total: res.Total, Completed: res.Completed, Percentage: res.Percentage}, nil
}

// GetInstance returns a copy of an instance.
func (e *Engine) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	return e.core.GetInstance(ctx, id)
}

// GetTemplate returns a template node.
func (e *Engine) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	return e.templates.Get(ctx, id)
}

// Children returns the direct children of an instance.
func (e *Engine) Children(ctx context.Context, parentID string) ([]*domain.Instance, error) {
	return e.instances.Children(ctx, parentID)
}

// ByIteration returns every instance owned by an iteration.
func (e *Engine) ByIteration(ctx context.Context, iterationID string) ([]*domain.Instance, error) {
	return e.instances.ByIteration(ctx, iterationID)
}

// AuditTrail returns the append-only trail for one entity, oldest first.
func (e *Engine) AuditTrail(ctx context.Context, entityID string) ([]*domain.AuditEntry, error) {
	return e.core.AuditTrail(ctx, entityID)
}
