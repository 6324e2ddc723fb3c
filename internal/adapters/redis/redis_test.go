package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryio/gantry/internal/adapters/redis"
	"github.com/gantryio/gantry/pkg/domain"
	"github.com/gantryio/gantry/pkg/ports/tests"
)

func newClient(t *testing.T) *backend.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestInstanceStore_Contract(t *testing.T) {
	store := redis.NewInstanceStore(newClient(t), "gantry:")
	tests.RunInstanceStoreContract(t, store)
}

func TestAuditLog_Contract(t *testing.T) {
	log := redis.NewAuditLog(newClient(t), "gantry:")
	tests.RunAuditLogContract(t, log)
}

func TestInstanceStore_CASExactlyOneWinner(t *testing.T) {
	store := redis.NewInstanceStore(newClient(t), "gantry:")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &domain.Instance{
		ID: "st-1", Kind: domain.EntityStep, Status: domain.StatusReady,
	}))

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.UpdateCAS(ctx, &domain.Instance{
				ID: "st-1", Kind: domain.EntityStep, Status: domain.StatusInProgress,
			}, domain.StatusReady)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one CAS may succeed")
}

func TestAuditLog_GlobalFeed(t *testing.T) {
	log := redis.NewAuditLog(newClient(t), "gantry:")
	ctx := context.Background()

	for _, id := range []string{"st-1", "ph-1", "st-1"} {
		require.NoError(t, log.Append(ctx, &domain.AuditEntry{
			ID: "e-" + id, EntityType: domain.EntityStep, EntityID: id,
			Op: domain.AuditTransition, ActorID: "alice", Timestamp: time.Now().UTC(),
		}))
	}

	all, err := log.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	trail, err := log.ByEntity(ctx, "ph-1")
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestLocker_MutualExclusion(t *testing.T) {
	locker := redis.NewLocker(newClient(t), "gantry:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "it-1", 5*time.Second)
	require.NoError(t, err)

	// A second acquire must not succeed while the lock is held.
	blockedCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(blockedCtx, "it-1", 5*time.Second)
	require.ErrorIs(t, err, redis.ErrLockAcquire)

	require.NoError(t, unlock(ctx))

	// Released; reacquire immediately.
	unlock2, err := locker.Lock(ctx, "it-1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestLocker_UnlockIsOwnerSafe(t *testing.T) {
	client := newClient(t)
	locker := redis.NewLocker(client, "gantry:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "it-1", 5*time.Second)
	require.NoError(t, err)

	// Simulate expiry plus takeover by another holder.
	require.NoError(t, client.Set(ctx, "gantry:lock:it-1", "someone-else", 0).Err())

	require.NoError(t, unlock(ctx))
	val, err := client.Get(ctx, "gantry:lock:it-1").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val, "stale unlock must not delete another holder's lock")
}
