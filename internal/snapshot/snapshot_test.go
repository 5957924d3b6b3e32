package snapshot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/storeaudit/internal/models"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id%03d", n)
	}
}

func sampleCatalog() *models.Catalog {
	return &models.Catalog{
		Categories: []models.Category{
			{ID: "B", Name: "Exhibición", Weight: 20, Order: 2},
			{ID: "A", Name: "Limpieza", Weight: 10, Order: 1},
		},
		Subcategories: []models.Subcategory{
			{ID: "a1", CategoryID: "A", Name: "Piso", Order: 1},
			{ID: "b1", CategoryID: "B", Name: "Vitrinas", Order: 1},
		},
		Questions: []models.Question{
			{ID: "q4", SubcategoryID: "b1", Text: "Vitrina ordenada", Order: 1, Active: true},
			{ID: "q2", SubcategoryID: "a1", Text: "Piso sin basura", Order: 2, Active: true},
			{ID: "q1", SubcategoryID: "a1", Text: "Piso trapeado", Order: 1, Active: true},
			{ID: "q3", SubcategoryID: "a1", Text: "Retirada", Order: 3, Active: false},
		},
	}
}

func TestBuildCopiesActiveQuestionsInCatalogOrder(t *testing.T) {
	qs, err := Build("AUD1", sampleCatalog(), seqIDs())
	require.NoError(t, err)
	require.Len(t, qs, 3)

	assert.Equal(t, []string{"q1", "q2", "q4"}, []string{qs[0].SourceQuestionID, qs[1].SourceQuestionID, qs[2].SourceQuestionID})
	for _, q := range qs {
		assert.Equal(t, "AUD1", q.AuditID)
		assert.False(t, q.Variable())
		assert.NotEmpty(t, q.ID)
	}
	assert.Equal(t, "A", qs[0].CategoryID)
	assert.Equal(t, "B", qs[2].CategoryID)
	assert.Equal(t, "Piso trapeado", qs[0].Text)
}

func TestBuildFailsOnUnresolvedSubcategory(t *testing.T) {
	cat := sampleCatalog()
	cat.Questions = append(cat.Questions, models.Question{ID: "qx", SubcategoryID: "missing", Text: "x", Active: true})
	qs, err := Build("AUD1", cat, seqIDs())
	require.Error(t, err)
	assert.Nil(t, qs)
	var ue *UnresolvedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "qx", ue.QuestionID)
}

func TestBuildFailsOnUnresolvedCategory(t *testing.T) {
	cat := sampleCatalog()
	cat.Subcategories = append(cat.Subcategories, models.Subcategory{ID: "z1", CategoryID: "Z"})
	cat.Questions = append(cat.Questions, models.Question{ID: "qz", SubcategoryID: "z1", Text: "z", Active: true})
	_, err := Build("AUD1", cat, seqIDs())
	var ue *UnresolvedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Z", ue.CategoryID)
}

func TestBuildWithoutCatalogFails(t *testing.T) {
	qs, err := Build("AUD1", nil, seqIDs())
	assert.ErrorIs(t, err, ErrNoCatalog)
	assert.Nil(t, qs)
}

func TestBuildIgnoresInactiveQuestionWithBrokenMapping(t *testing.T) {
	cat := sampleCatalog()
	cat.Questions = append(cat.Questions, models.Question{ID: "old", SubcategoryID: "gone", Active: false})
	_, err := Build("AUD1", cat, seqIDs())
	require.NoError(t, err)
}

func TestCloneKeepsTuplesAndOrder(t *testing.T) {
	src := []models.AuditQuestion{
		{ID: "s1", AuditID: "OLD", SourceQuestionID: "q1", Text: "Piso trapeado", CategoryID: "A", SubcategoryID: "a1", Order: 1},
		{ID: "s2", AuditID: "OLD", VariableQuestionID: "v1", Text: "Extintor vigente", CategoryID: "A", SubcategoryID: "a1", Order: 1000},
		{ID: "s3", AuditID: "OLD", SourceQuestionID: "q4", Text: "Vitrina ordenada", CategoryID: "B", SubcategoryID: "b1", Order: 1},
	}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	qs, vars := Clone("NEW", src, "auditor-1", now, seqIDs())
	require.Len(t, qs, 3)
	require.Len(t, vars, 1)
	for i := range src {
		assert.Equal(t, src[i].Text, qs[i].Text)
		assert.Equal(t, src[i].CategoryID, qs[i].CategoryID)
		assert.Equal(t, src[i].SubcategoryID, qs[i].SubcategoryID)
		assert.Equal(t, src[i].Order, qs[i].Order)
		assert.Equal(t, "NEW", qs[i].AuditID)
		assert.NotEqual(t, src[i].ID, qs[i].ID)
	}
	assert.True(t, qs[1].Variable())
	assert.Equal(t, vars[0].ID, qs[1].VariableQuestionID)
	assert.Equal(t, "NEW", vars[0].AuditID)
	assert.Equal(t, now, vars[0].CreatedAt)
}

func TestNextVariableOrder(t *testing.T) {
	qs := []models.AuditQuestion{
		{SourceQuestionID: "q1", SubcategoryID: "a1", Order: 5},
		{VariableQuestionID: "v1", SubcategoryID: "a1", Order: 1000},
		{VariableQuestionID: "v2", SubcategoryID: "a1", Order: 1003},
		{VariableQuestionID: "v3", SubcategoryID: "b1", Order: 1007},
	}
	assert.Equal(t, 1004, NextVariableOrder(qs, "a1"))
	assert.Equal(t, 1008, NextVariableOrder(qs, "b1"))
	assert.Equal(t, VariableOrderBase, NextVariableOrder(qs, "c1"))
	assert.Equal(t, VariableOrderBase, NextVariableOrder(nil, "a1"))
}

func TestSortIsStableOnTies(t *testing.T) {
	qs := []models.AuditQuestion{{ID: "z", Order: 2}, {ID: "y", Order: 1}, {ID: "x", Order: 1}}
	Sort(qs)
	assert.Equal(t, []string{"y", "x", "z"}, []string{qs[0].ID, qs[1].ID, qs[2].ID})
}
