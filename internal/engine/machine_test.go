package engine_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryio/gantry/internal/engine"
	"github.com/gantryio/gantry/pkg/domain"
)

func TestTransition_IllegalEdgeRejected(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	step := f.byTemplate("st-t2")

	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: step.ID, Target: domain.StatusCompleted, Actor: operator,
	})
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.StatusPending, invalid.From)
	assert.Equal(t, domain.StatusCompleted, invalid.To)
	assert.Equal(t, domain.EntityStep, invalid.EntityType)

	// PASSED belongs to the control graph only.
	_, err = f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: step.ID, Target: domain.StatusPassed, Actor: operator,
	})
	require.ErrorAs(t, err, &invalid)
}

func TestTransition_EntityTypeMismatch(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	step := f.byTemplate("st-t2")

	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityType: domain.EntityPhase,
		EntityID:   step.ID,
		Target:     domain.StatusReady,
		Actor:      operator,
	})
	require.Error(t, err)
}

// Scenario: S2's predecessor S1 gates S2's opening.
func TestTransition_PredecessorGatesOpening(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	s1 := f.byTemplate("sq-t1")
	s2 := f.byTemplate("sq-t2")

	f.advance(s2.ID, domain.StatusReady)
	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: s2.ID, Target: domain.StatusInProgress, Actor: operator,
	})
	var dep *domain.DependencyNotSatisfiedError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, s1.ID, dep.PredecessorID)
	assert.Equal(t, domain.StatusPending, dep.PredecessorStatus)

	eligible, err := f.eng.IsEligible(f.ctx, s2.ID)
	require.NoError(t, err)
	assert.False(t, eligible)

	// Complete S1; S2 becomes eligible and the same transition succeeds.
	f.advance(s1.ID, domain.StatusReady, domain.StatusInProgress, domain.StatusCompleted)

	eligible, err = f.eng.IsEligible(f.ctx, s2.ID)
	require.NoError(t, err)
	assert.True(t, eligible)

	inst := f.advance(s2.ID, domain.StatusInProgress)
	assert.Equal(t, domain.StatusInProgress, inst.Status)
}

// Scenario: a step with three mandatory instructions cannot close early,
// and the audit trail shows exactly four completion records afterwards.
func TestTransition_StepBlockedByMandatoryInstructions(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	step := f.byTemplate("st-t1")
	i1, i2, i3 := f.byTemplate("in-t1"), f.byTemplate("in-t2"), f.byTemplate("in-t3")

	f.advance(step.ID, domain.StatusReady, domain.StatusInProgress)
	f.completeInstruction(i1.ID)
	f.completeInstruction(i2.ID)

	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: step.ID, Target: domain.StatusCompleted, Actor: operator,
	})
	var incomplete *domain.InstructionsIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, step.ID, incomplete.StepID)
	assert.Equal(t, []string{i3.ID}, incomplete.Incomplete)

	f.completeInstruction(i3.ID)
	inst := f.advance(step.ID, domain.StatusCompleted)
	assert.Equal(t, domain.StatusCompleted, inst.Status)

	// Exactly four completion records: three instructions plus the step.
	all, err := f.audit.All(f.ctx)
	require.NoError(t, err)
	var completions int
	for _, e := range all {
		if e.Op == domain.AuditTransition && len(e.Changes) == 1 && e.Changes[0].After == string(domain.StatusCompleted) {
			completions++
		}
	}
	assert.Equal(t, 4, completions)
}

// Invariant: isCompleted and completedAt are jointly set or jointly null.
func TestInstruction_CompletionFlagAndTimestampJoint(t *testing.T) {
	f := newFixture(t)
	f.materialize()

	done := f.completeInstruction(f.byTemplate("in-t1").ID)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "oscar", done.CompletedBy)

	// A cancelled instruction never gains the completion pair.
	cancelled := f.advance(f.byTemplate("in-t2").ID, domain.StatusCancelled)
	assert.False(t, cancelled.IsCompleted)
	assert.Nil(t, cancelled.CompletedAt)
}

// Attribution is stamped on every terminal transition, not only success,
// and a remediated control loses it again.
func TestTransition_TerminalAttributionStamped(t *testing.T) {
	f := newFixture(t)
	f.materialize()

	failed := f.advance(f.byTemplate("st-t2").ID,
		domain.StatusReady, domain.StatusInProgress, domain.StatusFailed)
	require.NotNil(t, failed.CompletedAt)
	assert.Equal(t, "oscar", failed.CompletedBy)

	cancelled := f.advance(f.byTemplate("st-t3").ID,
		domain.StatusReady, domain.StatusCancelled)
	require.NotNil(t, cancelled.CompletedAt)
	assert.Equal(t, "oscar", cancelled.CompletedBy)

	control := f.advance(f.byTemplate("ct-t1").ID,
		domain.StatusReady, domain.StatusInProgress, domain.StatusFailed)
	require.NotNil(t, control.CompletedAt)

	reopened := f.advance(control.ID, domain.StatusReady)
	assert.Nil(t, reopened.CompletedAt)
	assert.Empty(t, reopened.CompletedBy)
}

// completePhaseSteps drives every step under the fixture phase to COMPLETED.
func completePhaseSteps(f *fixture) {
	for _, in := range []string{"in-t1", "in-t2", "in-t3"} {
		f.completeInstruction(f.byTemplate(in).ID)
	}
	for _, st := range []string{"st-t1", "st-t2", "st-t3"} {
		f.advance(f.byTemplate(st).ID, domain.StatusReady, domain.StatusInProgress, domain.StatusCompleted)
	}
}

// Scenario: a critical FAILED control vetoes phase completion until remediated.
func TestTransition_ControlGateBlocksPhase(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	phase := f.byTemplate("ph-t1")
	critical := f.byTemplate("ct-t1")

	f.advance(phase.ID, domain.StatusReady, domain.StatusInProgress)
	completePhaseSteps(f)
	f.advance(critical.ID, domain.StatusReady, domain.StatusInProgress, domain.StatusFailed)

	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: phase.ID, Target: domain.StatusCompleted, Actor: operator,
	})
	var gateErr *domain.ControlGateFailedError
	require.ErrorAs(t, err, &gateErr)
	assert.Equal(t, phase.ID, gateErr.PhaseID)
	require.Len(t, gateErr.FailingControls, 1)
	assert.Equal(t, critical.ID, gateErr.FailingControls[0].ControlID)
	assert.True(t, gateErr.FailingControls[0].Critical)

	// Remediate the control; the retry succeeds. The advisory control is
	// still PENDING and does not block.
	f.advance(critical.ID, domain.StatusPassed)
	inst := f.advance(phase.ID, domain.StatusCompleted)
	assert.Equal(t, domain.StatusCompleted, inst.Status)
}

func TestTransition_PhaseBlockedByOpenSteps(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	phase := f.byTemplate("ph-t1")

	f.advance(phase.ID, domain.StatusReady, domain.StatusInProgress)

	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: phase.ID, Target: domain.StatusCompleted, Actor: operator,
	})
	var open *domain.ChildrenOpenError
	require.ErrorAs(t, err, &open)
	assert.Len(t, open.OpenIDs, 3)
}

// Scenario: cancelling a phase cascades to non-terminal descendants only.
func TestTransition_CancelCascade(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	phase := f.byTemplate("ph-t1")
	st2 := f.byTemplate("st-t2")

	// st-t2 completes before the cancellation.
	f.advance(st2.ID, domain.StatusReady, domain.StatusInProgress, domain.StatusCompleted)

	f.advance(phase.ID, domain.StatusReady, domain.StatusCancelled)

	completed, err := f.eng.GetInstance(f.ctx, st2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status, "cancellation does not rewrite history")

	for _, tid := range []string{"st-t1", "st-t3", "in-t1", "in-t2", "in-t3", "ct-t1", "ct-t2"} {
		inst := f.byTemplate(tid)
		assert.Equal(t, domain.StatusCancelled, inst.Status, "descendant %s must be cancelled", tid)
	}
}

func TestTransition_BlockedIsRecoverable(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	step := f.byTemplate("st-t2")

	f.advance(step.ID, domain.StatusReady, domain.StatusBlocked)
	require.Len(t, f.notifier.events, 1, "entering BLOCKED notifies")

	inst := f.advance(step.ID, domain.StatusReady, domain.StatusInProgress, domain.StatusCompleted)
	assert.Equal(t, domain.StatusCompleted, inst.Status)
}

func TestTransition_ExpectedStatusMismatch(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	step := f.byTemplate("st-t2")
	f.advance(step.ID, domain.StatusReady)

	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: step.ID,
		Target:   domain.StatusInProgress,
		Actor:    operator,
		Expected: domain.StatusPending, // stale read
	})
	var conflict *domain.ConcurrentModificationError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.StatusPending, conflict.Expected)
	assert.Equal(t, domain.StatusReady, conflict.Observed)
}

// Property: two concurrent transitions with the same expected pre-status --
// exactly one succeeds, the other gets ConcurrentModificationError.
func TestTransition_ConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	step := f.byTemplate("st-t2")
	f.advance(step.ID, domain.StatusReady)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.eng.Transition(f.ctx, engine.TransitionRequest{
				EntityID: step.ID,
				Target:   domain.StatusInProgress,
				Actor:    operator,
				Expected: domain.StatusReady,
			})
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		var conflict *domain.ConcurrentModificationError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
}

func TestTransition_TerminalIterationFreezesInstances(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	step := f.byTemplate("st-t2")

	f.advance(f.iter.ID, domain.StatusReady, domain.StatusInProgress, domain.StatusCompleted)

	_, err := f.eng.Transition(f.ctx, engine.TransitionRequest{
		EntityID: step.ID, Target: domain.StatusReady, Actor: operator,
	})
	require.ErrorIs(t, err, domain.ErrIterationClosed)

	_, err = f.eng.OverrideField(f.ctx, step.ID, domain.FieldName, "late edit", operator)
	require.ErrorIs(t, err, domain.ErrIterationClosed)
}

func TestTransition_SiblingsDoNotContend(t *testing.T) {
	f := newFixture(t)
	f.materialize()
	st2 := f.byTemplate("st-t2")
	st3 := f.byTemplate("st-t3")

	// Concurrent transitions on sibling steps both succeed.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{st2.ID, st3.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.eng.Transition(f.ctx, engine.TransitionRequest{
				EntityID: id, Target: domain.StatusReady, Actor: operator,
			})
		}(i, id)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
}
