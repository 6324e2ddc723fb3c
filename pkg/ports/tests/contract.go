package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gantryio/gantry/pkg/domain"
	"github.com/gantryio/gantry/pkg/ports"
)

// RunInstanceStoreContract verifies an adapter complies with
// ports.InstanceStore. Adapters call it from their own tests.
func RunInstanceStoreContract(t *testing.T, store ports.InstanceStore) {
	t.Helper()
	ctx := context.Background()

	iter := &domain.Instance{
		ID:          "it-1",
		Kind:        domain.EntityIteration,
		IterationID: "it-1",
		Status:      domain.StatusReady,
		CreatedBy:   "contract",
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("Put_Get", func(t *testing.T) {
		if err := store.Put(ctx, iter); err != nil {
			t.Fatalf("unexpected error putting instance: %v", err)
		}
		got, err := store.Get(ctx, "it-1")
		if err != nil {
			t.Fatalf("unexpected error getting instance: %v", err)
		}
		if got.ID != "it-1" || got.Status != domain.StatusReady {
			t.Errorf("instance mismatch: got %+v", got)
		}
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-instance")
		if !errors.Is(err, domain.ErrInstanceNotFound) {
			t.Errorf("expected ErrInstanceNotFound, got %v", err)
		}
	})

	t.Run("Get_ReturnsCopy", func(t *testing.T) {
		got, err := store.Get(ctx, "it-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got.Status = domain.StatusFailed
		again, err := store.Get(ctx, "it-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.Status != domain.StatusReady {
			t.Error("mutating a returned instance leaked into the store")
		}
	})

	t.Run("PutBatch_Children_ByIteration", func(t *testing.T) {
		batch := []*domain.Instance{
			{ID: "pl-1", Kind: domain.EntityPlan, ParentID: "it-1", IterationID: "it-1", Status: domain.StatusPending},
			{ID: "sq-1", Kind: domain.EntitySequence, ParentID: "pl-1", IterationID: "it-1", Status: domain.StatusPending},
			{ID: "sq-2", Kind: domain.EntitySequence, ParentID: "pl-1", IterationID: "it-1", PredecessorID: "sq-1", Status: domain.StatusPending},
		}
		if err := store.PutBatch(ctx, batch); err != nil {
			t.Fatalf("unexpected error in PutBatch: %v", err)
		}

		kids, err := store.Children(ctx, "pl-1")
		if err != nil {
			t.Fatalf("unexpected error in Children: %v", err)
		}
		if len(kids) != 2 {
			t.Errorf("expected 2 children, got %d", len(kids))
		}

		all, err := store.ByIteration(ctx, "it-1")
		if err != nil {
			t.Fatalf("unexpected error in ByIteration: %v", err)
		}
		// iteration itself + plan + two sequences
		if len(all) != 4 {
			t.Errorf("expected 4 instances for iteration, got %d", len(all))
		}
	})

	t.Run("UpdateCAS_Success", func(t *testing.T) {
		got, err := store.Get(ctx, "sq-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got.Status = domain.StatusReady
		if err := store.UpdateCAS(ctx, got, domain.StatusPending); err != nil {
			t.Fatalf("unexpected CAS error: %v", err)
		}
		again, _ := store.Get(ctx, "sq-1")
		if again.Status != domain.StatusReady {
			t.Errorf("expected READY after CAS, got %s", again.Status)
		}
	})

	t.Run("UpdateCAS_Conflict", func(t *testing.T) {
		got, err := store.Get(ctx, "sq-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got.Status = domain.StatusInProgress
		err = store.UpdateCAS(ctx, got, domain.StatusPending) // stale expectation
		var conflict *domain.ConcurrentModificationError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConcurrentModificationError, got %v", err)
		}
		if conflict.Observed != domain.StatusReady {
			t.Errorf("expected observed READY, got %s", conflict.Observed)
		}
		again, _ := store.Get(ctx, "sq-1")
		if again.Status != domain.StatusReady {
			t.Error("failed CAS must not write")
		}
	})

	t.Run("UpdateCAS_Missing", func(t *testing.T) {
		err := store.UpdateCAS(ctx, &domain.Instance{ID: "ghost", Status: domain.StatusReady}, domain.StatusPending)
		if !errors.Is(err, domain.ErrInstanceNotFound) {
			t.Errorf("expected ErrInstanceNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		tmp := &domain.Instance{ID: "tmp-1", Kind: domain.EntityStep, ParentID: "pl-1", IterationID: "it-1", Status: domain.StatusPending}
		if err := store.Put(ctx, tmp); err != nil {
			t.Fatalf("unexpected error putting instance: %v", err)
		}
		if err := store.Delete(ctx, "tmp-1"); err != nil {
			t.Fatalf("unexpected error deleting instance: %v", err)
		}
		if _, err := store.Get(ctx, "tmp-1"); !errors.Is(err, domain.ErrInstanceNotFound) {
			t.Errorf("expected ErrInstanceNotFound after delete, got %v", err)
		}
		kids, err := store.Children(ctx, "pl-1")
		if err != nil {
			t.Fatalf("unexpected error in Children: %v", err)
		}
		if len(kids) != 2 {
			t.Errorf("expected 2 children after delete, got %d", len(kids))
		}
		if err := store.Delete(ctx, "tmp-1"); err != nil {
			t.Errorf("deleting a missing instance must be a no-op, got %v", err)
		}
	})
}

// RunAuditLogContract verifies an adapter complies with ports.AuditLog.
func RunAuditLogContract(t *testing.T, log ports.AuditLog) {
	t.Helper()
	ctx := context.Background()

	entries := []*domain.AuditEntry{
		{ID: "a-1", EntityType: domain.EntityStep, EntityID: "st-1", Op: domain.AuditTransition, ActorID: "alice", Timestamp: time.Now().UTC()},
		{ID: "a-2", EntityType: domain.EntityStep, EntityID: "st-1", Op: domain.AuditOverride, ActorID: "bob", Timestamp: time.Now().UTC()},
		{ID: "a-3", EntityType: domain.EntityPhase, EntityID: "ph-1", Op: domain.AuditTransition, ActorID: "alice", Timestamp: time.Now().UTC()},
	}

	t.Run("Append_ByEntity", func(t *testing.T) {
		for _, e := range entries {
			if err := log.Append(ctx, e); err != nil {
				t.Fatalf("unexpected error appending: %v", err)
			}
		}

		trail, err := log.ByEntity(ctx, "st-1")
		if err != nil {
			t.Fatalf("unexpected error reading trail: %v", err)
		}
		if len(trail) != 2 {
			t.Fatalf("expected 2 entries for st-1, got %d", len(trail))
		}
		// Oldest first.
		if trail[0].Op != domain.AuditTransition || trail[1].Op != domain.AuditOverride {
			t.Errorf("trail out of order: %+v", trail)
		}
	})

	t.Run("ByEntity_Empty", func(t *testing.T) {
		trail, err := log.ByEntity(ctx, "never-touched")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(trail) != 0 {
			t.Errorf("expected empty trail, got %d entries", len(trail))
		}
	})
}
