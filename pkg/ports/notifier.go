package ports

import (
	"context"

	"github.com/gantryio/gantry/pkg/domain"
)

// Notifier is the outbound notification collaborator. Emission is
// fire-and-forget from the engine's perspective: an error is logged by the
// caller and never fails the underlying transition.
type Notifier interface {
	Emit(ctx context.Context, event domain.TransitionEvent) error
}
