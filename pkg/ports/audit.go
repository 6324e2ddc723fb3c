package ports

import (
	"context"

	"github.com/gantryio/gantry/pkg/domain"
)

// AuditLog is the append-only sink for every transition and override.
// Implementations must support durable at-least-once append and expose no
// way for the core to update or delete entries.
//
// An Append failure is fatal to the triggering transition: the engine
// reverts the status write and reports the transition as uncommitted.
type AuditLog interface {
	// Append durably records one entry.
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// ByEntity returns the trail for one entity, oldest first.
	ByEntity(ctx context.Context, entityID string) ([]*domain.AuditEntry, error)
}
