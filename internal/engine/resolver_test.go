package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryio/gantry/pkg/domain"
)

func TestIsEligible_NoPredecessor(t *testing.T) {
	f := newFixture(t)
	f.materialize()

	eligible, err := f.eng.IsEligible(f.ctx, f.byTemplate("sq-t1").ID)
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestIsEligible_PredecessorMustTerminateSuccessfully(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	s1 := f.byTemplate("sq-t1")
	s2 := f.byTemplate("sq-t2")

	for _, status := range []domain.Status{domain.StatusReady, domain.StatusInProgress} {
		f.advance(s1.ID, status)
		eligible, err := f.eng.IsEligible(f.ctx, s2.ID)
		require.NoError(t, err)
		assert.False(t, eligible, "predecessor at %s does not satisfy", status)
	}

	f.advance(s1.ID, domain.StatusCompleted)
	eligible, err := f.eng.IsEligible(f.ctx, s2.ID)
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestIsEligible_CancelledPredecessorDoesNotSatisfy(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	s1 := f.byTemplate("sq-t1")
	s2 := f.byTemplate("sq-t2")

	f.advance(s1.ID, domain.StatusCancelled)

	eligible, err := f.eng.IsEligible(f.ctx, s2.ID)
	require.NoError(t, err)
	assert.False(t, eligible, "CANCELLED is terminal but not terminal-success")
}

func TestIsEligible_IsReadOnly(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	s2 := f.byTemplate("sq-t2")

	for i := 0; i < 3; i++ {
		_, err := f.eng.IsEligible(f.ctx, s2.ID)
		require.NoError(t, err)
	}

	got, err := f.eng.GetInstance(f.ctx, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	trail, err := f.eng.AuditTrail(f.ctx, s2.ID)
	require.NoError(t, err)
	assert.Empty(t, trail, "eligibility checks leave no audit trace")
}

func TestIsEligible_UnknownInstance(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.IsEligible(f.ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrInstanceNotFound)
}
