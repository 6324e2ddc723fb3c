package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryio/gantry/internal/adapters/memory"
	"github.com/gantryio/gantry/pkg/domain"
	"github.com/gantryio/gantry/pkg/ports/tests"
)

func TestInstanceStore_Contract(t *testing.T) {
	tests.RunInstanceStoreContract(t, memory.NewInstanceStore())
}

func TestAuditLog_Contract(t *testing.T) {
	tests.RunAuditLogContract(t, memory.NewAuditLog())
}

func TestInstanceStore_CAS_ExactlyOneWinner(t *testing.T) {
	store := memory.NewInstanceStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &domain.Instance{
		ID: "st-1", Kind: domain.EntityStep, Status: domain.StatusReady,
	}))

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, conflicts int

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := store.Get(ctx, "st-1")
			if err != nil {
				return
			}
			inst.Status = domain.StatusInProgress
			err = store.UpdateCAS(ctx, inst, domain.StatusReady)

			mu.Lock()
			defer mu.Unlock()
			var conflict *domain.ConcurrentModificationError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &conflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one CAS may win")
	assert.Equal(t, racers-1, conflicts)
}

func TestTemplateStore_PublishFreezesSubtree(t *testing.T) {
	store := memory.NewTemplateStore()
	ctx := context.Background()

	plan := &domain.Template{ID: "pl-t1", Kind: domain.EntityPlan, Name: "DC exit"}
	seq := &domain.Template{ID: "sq-t1", Kind: domain.EntitySequence, ParentID: "pl-t1", Name: "Network"}
	require.NoError(t, store.Put(ctx, plan))
	require.NoError(t, store.Put(ctx, seq))

	require.NoError(t, store.Publish(ctx, "pl-t1"))

	// Both root and descendant are frozen.
	assert.ErrorIs(t, store.Put(ctx, plan), domain.ErrTemplateFrozen)
	assert.ErrorIs(t, store.Put(ctx, seq), domain.ErrTemplateFrozen)

	got, err := store.Get(ctx, "sq-t1")
	require.NoError(t, err)
	assert.True(t, got.Published)
}

func TestTemplateStore_Children_Ordered(t *testing.T) {
	store := memory.NewTemplateStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &domain.Template{ID: "pl-t1", Kind: domain.EntityPlan, Name: "p"}))
	require.NoError(t, store.Put(ctx, &domain.Template{ID: "sq-b", Kind: domain.EntitySequence, ParentID: "pl-t1", Name: "b", Order: 2}))
	require.NoError(t, store.Put(ctx, &domain.Template{ID: "sq-a", Kind: domain.EntitySequence, ParentID: "pl-t1", Name: "a", Order: 1}))

	kids, err := store.Children(ctx, "pl-t1")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "sq-a", kids[0].ID)
	assert.Equal(t, "sq-b", kids[1].ID)
}

func TestTemplateStore_Get_NotFound(t *testing.T) {
	store := memory.NewTemplateStore()
	_, err := store.Get(context.Background(), "ghost")
	var notFound *domain.TemplateNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
