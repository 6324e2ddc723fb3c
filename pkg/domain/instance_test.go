package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstance_EffectiveFields(t *testing.T) {
	tmpl := &Template{ID: "st-t1", Kind: EntityStep, ParentID: "ph-t1", Name: "Flip DNS", Description: "Point records at the new region", Order: 3}
	inst := &Instance{ID: "st-1", Kind: EntityStep, TemplateID: "st-t1"}

	// No overrides: template values shine through.
	assert.Equal(t, "Flip DNS", inst.EffectiveName(tmpl))
	assert.Equal(t, "Point records at the new region", inst.EffectiveDescription(tmpl))
	assert.Equal(t, 3, inst.EffectiveOrder(tmpl))

	require.NoError(t, inst.SetOverride(FieldName, "Flip DNS (us-east only)"))
	require.NoError(t, inst.SetOverride(FieldOrder, 7))

	assert.Equal(t, "Flip DNS (us-east only)", inst.EffectiveName(tmpl))
	assert.Equal(t, 7, inst.EffectiveOrder(tmpl))
	// Untouched field still resolves from the template.
	assert.Equal(t, "Point records at the new region", inst.EffectiveDescription(tmpl))
	// The template itself is untouched.
	assert.Equal(t, "Flip DNS", tmpl.Name)
	assert.Equal(t, 3, tmpl.Order)
}

func TestInstance_SetOverride_Predecessor(t *testing.T) {
	inst := &Instance{ID: "st-2", Kind: EntityStep, PredecessorID: "st-1"}
	require.NoError(t, inst.SetOverride(FieldPredecessor, "st-9"))
	assert.Equal(t, "st-9", inst.PredecessorID, "predecessor override must rewrite the live link")
	assert.Equal(t, "st-9", inst.Overrides[FieldPredecessor])
}

func TestInstance_SetOverride_Rejections(t *testing.T) {
	inst := &Instance{ID: "st-1", Kind: EntityStep}
	assert.Error(t, inst.SetOverride("status", "COMPLETED"), "status is not an overridable field")
	assert.Error(t, inst.SetOverride(FieldName, 42))
	assert.Error(t, inst.SetOverride(FieldOrder, "first"))
}

func TestInstance_SetOverride_JSONNumbers(t *testing.T) {
	inst := &Instance{ID: "st-1", Kind: EntityStep}
	require.NoError(t, inst.SetOverride(FieldOrder, float64(5)))
	assert.Equal(t, 5, inst.EffectiveOrder(nil))
}

func TestInstance_Clone_Isolation(t *testing.T) {
	done := time.Now().UTC()
	orig := &Instance{
		ID:          "in-1",
		Kind:        EntityInstruction,
		Status:      StatusCompleted,
		Overrides:   map[string]any{FieldName: "renamed"},
		IsCompleted: true,
		CompletedAt: &done,
	}

	cp := orig.Clone()
	cp.Overrides[FieldName] = "changed"
	*cp.CompletedAt = done.Add(time.Hour)

	assert.Equal(t, "renamed", orig.Overrides[FieldName])
	assert.Equal(t, done, *orig.CompletedAt)
}
