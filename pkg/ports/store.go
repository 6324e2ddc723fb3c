package ports

import (
	"context"

	"github.com/gantryio/gantry/pkg/domain"
)

// TemplateStore persists the immutable template tier. After Publish is
// called for a plan root, every template in that subtree is frozen and
// Put/updates against it must fail with domain.ErrTemplateFrozen.
//
// The store is read-mostly: once published it may be read freely and
// concurrently by any number of materializations.
type TemplateStore interface {
	// Put creates or replaces a template. Fails with
	// domain.ErrTemplateFrozen if the template (or its plan root) is
	// published.
	Put(ctx context.Context, tmpl *domain.Template) error

	// Get returns the template or *domain.TemplateNotFoundError.
	Get(ctx context.Context, id string) (*domain.Template, error)

	// Children returns the direct children of a template, in Order.
	Children(ctx context.Context, parentID string) ([]*domain.Template, error)

	// Publish freezes the plan root and its entire subtree.
	Publish(ctx context.Context, planTemplateID string) error
}

// InstanceStore persists the live instance tier.
type InstanceStore interface {
	// Put creates a single instance (migrations, iterations).
	Put(ctx context.Context, inst *domain.Instance) error

	// PutBatch writes a materialized subtree in one atomic commit: no
	// instance in the batch is visible until all are.
	PutBatch(ctx context.Context, insts []*domain.Instance) error

	// Get returns a copy of the instance or domain.ErrInstanceNotFound.
	Get(ctx context.Context, id string) (*domain.Instance, error)

	// Children returns copies of the direct children of an instance.
	Children(ctx context.Context, parentID string) ([]*domain.Instance, error)

	// ByIteration returns every instance owned by an iteration.
	ByIteration(ctx context.Context, iterationID string) ([]*domain.Instance, error)

	// UpdateCAS replaces the stored instance only if its current status
	// equals expected; otherwise it fails with
	// *domain.ConcurrentModificationError and writes nothing.
	UpdateCAS(ctx context.Context, inst *domain.Instance, expected domain.Status) error

	// Delete removes an instance and its index memberships. Deleting a
	// missing instance is a no-op. Only used to roll back a create whose
	// audit append failed; committed instances are never deleted.
	Delete(ctx context.Context, id string) error
}
