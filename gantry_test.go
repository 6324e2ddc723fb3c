package gantry_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryio/gantry"
	"github.com/gantryio/gantry/pkg/domain"
)

var (
	facadePlanner  = domain.Actor{ID: "paula", Role: domain.RolePlanner}
	facadeOperator = domain.Actor{ID: "oscar", Role: domain.RoleOperator}
)

func TestFacade_EndToEnd(t *testing.T) {
	eng := gantry.New()
	ctx := context.Background()

	mig, err := eng.CreateMigration(ctx, "DC exit", facadePlanner)
	require.NoError(t, err)
	iter, err := eng.CreateIteration(ctx, mig.ID, "wave 1", facadePlanner)
	require.NoError(t, err)

	loaded, err := eng.LoadPlanFile(ctx, filepath.Join("internal", "adapters", "file", "testdata", "plan.yaml"), facadePlanner)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded)

	result, err := eng.Materialize(ctx, iter.ID, "dc-exit", facadePlanner)
	require.NoError(t, err)
	assert.Equal(t, 12, result.Created)

	all, err := eng.ByIteration(ctx, iter.ID)
	require.NoError(t, err)
	assert.Len(t, all, 13)

	// Find the network sequence instance and start it.
	var network *domain.Instance
	for _, inst := range all {
		if inst.TemplateID == "network" {
			network = inst
		}
	}
	require.NotNil(t, network)

	for _, target := range []domain.Status{domain.StatusReady, domain.StatusInProgress} {
		_, err := eng.Transition(ctx, gantry.TransitionRequest{
			EntityID: network.ID, Target: target, Actor: facadeOperator,
		})
		require.NoError(t, err)
	}

	trail, err := eng.AuditTrail(ctx, network.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 2)
}

func TestFacade_GateAndCompletion(t *testing.T) {
	eng := gantry.New()
	ctx := context.Background()

	mig, err := eng.CreateMigration(ctx, "DC exit", facadePlanner)
	require.NoError(t, err)
	iter, err := eng.CreateIteration(ctx, mig.ID, "wave 1", facadePlanner)
	require.NoError(t, err)
	_, err = eng.LoadPlanFile(ctx, filepath.Join("internal", "adapters", "file", "testdata", "plan.yaml"), facadePlanner)
	require.NoError(t, err)
	_, err = eng.Materialize(ctx, iter.ID, "dc-exit", facadePlanner)
	require.NoError(t, err)

	all, err := eng.ByIteration(ctx, iter.ID)
	require.NoError(t, err)
	byTemplate := make(map[string]*domain.Instance)
	for _, inst := range all {
		byTemplate[inst.TemplateID] = inst
	}

	gate, err := eng.EvaluateGate(ctx, byTemplate["dns-cutover"].ID)
	require.NoError(t, err)
	assert.False(t, gate.Passed)
	assert.Len(t, gate.Failing, 2)

	progress, err := eng.Completion(ctx, byTemplate["flip-records"].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 0, progress.Completed)

	eligible, err := eng.IsEligible(ctx, byTemplate["storage"].ID)
	require.NoError(t, err)
	assert.False(t, eligible, "storage waits on the network sequence")
}

func TestFacade_TemplateFrozenAfterMaterialize(t *testing.T) {
	eng := gantry.New()
	ctx := context.Background()

	mig, err := eng.CreateMigration(ctx, "DC exit", facadePlanner)
	require.NoError(t, err)
	iter, err := eng.CreateIteration(ctx, mig.ID, "wave 1", facadePlanner)
	require.NoError(t, err)
	_, err = eng.LoadPlanFile(ctx, filepath.Join("internal", "adapters", "file", "testdata", "plan.yaml"), facadePlanner)
	require.NoError(t, err)
	_, err = eng.Materialize(ctx, iter.ID, "dc-exit", facadePlanner)
	require.NoError(t, err)

	err = eng.CreateTemplate(ctx, &domain.Template{
		ID: "late", Kind: domain.EntitySequence, ParentID: "dc-exit", Name: "too late",
	}, facadePlanner)
	require.ErrorIs(t, err, domain.ErrTemplateFrozen)

	tmpl, err := eng.GetTemplate(ctx, "dc-exit")
	require.NoError(t, err)
	assert.True(t, tmpl.Published)
}
