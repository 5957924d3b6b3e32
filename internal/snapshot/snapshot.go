// Package snapshot freezes the master catalog into per-audit question sets.
package snapshot

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soaringjerry/storeaudit/internal/models"
)

// VariableOrderBase is the first order number handed to ad-hoc questions.
// Catalog orders stay below it, so ad-hoc questions sort last in their
// subcategory.
const VariableOrderBase = 1000

// ErrNoCatalog is returned by Build when there is no catalog to copy.
var ErrNoCatalog = errors.New("snapshot: no catalog")

// UnresolvedError reports a catalog question whose subcategory or category
// cannot be found. Snapshot creation must abort when it is returned.
type UnresolvedError struct {
	QuestionID    string
	SubcategoryID string
	CategoryID    string
}

func (e *UnresolvedError) Error() string {
	if e.CategoryID != "" {
		return fmt.Sprintf("question %s: subcategory %s points to unknown category %s", e.QuestionID, e.SubcategoryID, e.CategoryID)
	}
	return fmt.Sprintf("question %s: unknown subcategory %s", e.QuestionID, e.SubcategoryID)
}

// Build copies every active catalog question into a new snapshot for
// auditID. The result is ordered by category, subcategory and question
// order. Nothing is returned if any question cannot be resolved.
func Build(auditID string, catalog *models.Catalog, newID func() string) ([]models.AuditQuestion, error) {
	if catalog == nil {
		return nil, ErrNoCatalog
	}
	cats := make(map[string]models.Category, len(catalog.Categories))
	for _, c := range catalog.Categories {
		cats[c.ID] = c
	}
	subs := make(map[string]models.Subcategory, len(catalog.Subcategories))
	for _, s := range catalog.Subcategories {
		subs[s.ID] = s
	}

	type keyed struct {
		q   models.AuditQuestion
		cat models.Category
		sub models.Subcategory
	}
	rows := make([]keyed, 0, len(catalog.Questions))
	for _, q := range catalog.Questions {
		if !q.Active {
			continue
		}
		sub, ok := subs[q.SubcategoryID]
		if !ok {
			return nil, &UnresolvedError{QuestionID: q.ID, SubcategoryID: q.SubcategoryID}
		}
		cat, ok := cats[sub.CategoryID]
		if !ok {
			return nil, &UnresolvedError{QuestionID: q.ID, SubcategoryID: sub.ID, CategoryID: sub.CategoryID}
		}
		rows = append(rows, keyed{
			q: models.AuditQuestion{
				AuditID:          auditID,
				SourceQuestionID: q.ID,
				Text:             q.Text,
				CategoryID:       cat.ID,
				SubcategoryID:    sub.ID,
				Order:            q.Order,
			},
			cat: cat,
			sub: sub,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.cat.Order != b.cat.Order {
			return a.cat.Order < b.cat.Order
		}
		if a.cat.ID != b.cat.ID {
			return a.cat.ID < b.cat.ID
		}
		if a.sub.Order != b.sub.Order {
			return a.sub.Order < b.sub.Order
		}
		if a.sub.ID != b.sub.ID {
			return a.sub.ID < b.sub.ID
		}
		if a.q.Order != b.q.Order {
			return a.q.Order < b.q.Order
		}
		return a.q.SourceQuestionID < b.q.SourceQuestionID
	})
	out := make([]models.AuditQuestion, 0, len(rows))
	for _, r := range rows {
		r.q.ID = newID()
		out = append(out, r.q)
	}
	return out, nil
}

// Clone copies an existing snapshot into auditID, keeping order and text.
// Variable questions get fresh variable records owned by the new audit.
func Clone(auditID string, source []models.AuditQuestion, createdBy string, now time.Time, newID func() string) ([]models.AuditQuestion, []models.VariableQuestion) {
	qs := make([]models.AuditQuestion, 0, len(source))
	var vars []models.VariableQuestion
	for _, src := range source {
		q := models.AuditQuestion{
			ID:               newID(),
			AuditID:          auditID,
			SourceQuestionID: src.SourceQuestionID,
			Text:             src.Text,
			CategoryID:       src.CategoryID,
			SubcategoryID:    src.SubcategoryID,
			Order:            src.Order,
		}
		if src.Variable() {
			v := models.VariableQuestion{
				ID:            newID(),
				AuditID:       auditID,
				SubcategoryID: src.SubcategoryID,
				Text:          src.Text,
				CreatedBy:     createdBy,
				CreatedAt:     now,
			}
			q.VariableQuestionID = v.ID
			vars = append(vars, v)
		}
		qs = append(qs, q)
	}
	return qs, vars
}

// NextVariableOrder returns the order for a new ad-hoc question in
// subcategoryID: one past the highest ad-hoc order there, never below
// VariableOrderBase.
func NextVariableOrder(qs []models.AuditQuestion, subcategoryID string) int {
	next := VariableOrderBase
	for _, q := range qs {
		if q.SubcategoryID != subcategoryID || !q.Variable() {
			continue
		}
		if q.Order >= next {
			next = q.Order + 1
		}
	}
	return next
}

// Sort orders questions by their order number. Ties keep snapshot order.
func Sort(qs []models.AuditQuestion) {
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
}
