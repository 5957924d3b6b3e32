package services

import (
	"sort"

	"github.com/soaringjerry/storeaudit/internal/models"
	"github.com/soaringjerry/storeaudit/internal/scoring"
	"github.com/soaringjerry/storeaudit/internal/snapshot"
)

// QuestionView is one snapshot question with its current response.
type QuestionView struct {
	models.AuditQuestion
	Passed           *bool  `json:"passed"`
	Comment          string `json:"comment,omitempty"`
	CorrectiveAction string `json:"corrective_action,omitempty"`
}

type SubcategoryView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Score     float64        `json:"score"`
	Questions []QuestionView `json:"questions"`
}

type CategoryView struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Weight        float64           `json:"weight"`
	Score         float64           `json:"score"`
	Subcategories []SubcategoryView `json:"subcategories"`
}

// AuditTree is the full category > subcategory > question view of an audit.
type AuditTree struct {
	Audit      models.Audit   `json:"audit"`
	Categories []CategoryView `json:"categories"`
	TotalScore int            `json:"total_score"`
}

// buildTree groups snapshot questions by the category and subcategory ids
// frozen on them, so catalog groups added or emptied later never change an
// existing audit. The catalog only supplies names, order and weights. Ids
// the catalog no longer has keep the id as name, weight 0, and sort last in
// snapshot order.
func buildTree(catalog *models.Catalog, qs []models.AuditQuestion, ledger *Ledger) []scoring.Category {
	if catalog == nil {
		catalog = &models.Catalog{}
	}
	cats := make(map[string]models.Category, len(catalog.Categories))
	for _, c := range catalog.Categories {
		cats[c.ID] = c
	}
	subs := make(map[string]models.Subcategory, len(catalog.Subcategories))
	for _, s := range catalog.Subcategories {
		subs[s.ID] = s
	}

	var catIDs []string
	subIDs := map[string][]string{}
	bySub := map[string][]models.AuditQuestion{}
	for _, q := range qs {
		if _, ok := bySub[q.SubcategoryID]; !ok {
			if _, seen := subIDs[q.CategoryID]; !seen {
				catIDs = append(catIDs, q.CategoryID)
			}
			subIDs[q.CategoryID] = append(subIDs[q.CategoryID], q.SubcategoryID)
		}
		bySub[q.SubcategoryID] = append(bySub[q.SubcategoryID], q)
	}

	sort.SliceStable(catIDs, func(i, j int) bool {
		a, aok := cats[catIDs[i]]
		b, bok := cats[catIDs[j]]
		return catalogLess(aok, bok, a.Order, b.Order, a.ID, b.ID)
	})

	out := make([]scoring.Category, 0, len(catIDs))
	for _, cid := range catIDs {
		c := scoring.Category{ID: cid, Name: cid}
		if known, ok := cats[cid]; ok {
			c.Name = known.Name
			c.Weight = known.Weight
		}
		ids := subIDs[cid]
		sort.SliceStable(ids, func(i, j int) bool {
			a, aok := subs[ids[i]]
			b, bok := subs[ids[j]]
			return catalogLess(aok, bok, a.Order, b.Order, a.ID, b.ID)
		})
		for _, sid := range ids {
			name := sid
			if known, ok := subs[sid]; ok {
				name = known.Name
			}
			list := bySub[sid]
			snapshot.Sort(list)
			questions := make([]scoring.Question, 0, len(list))
			for _, q := range list {
				questions = append(questions, scoring.Question{ID: q.ID, Passed: ledger.Passed(q.ID)})
			}
			c.Subcategories = append(c.Subcategories, scoring.Subcategory{ID: sid, Name: name, Questions: questions})
		}
		out = append(out, c)
	}
	return out
}

// catalogLess orders known catalog nodes by position then id, ahead of
// unknown ones, which keep their relative order.
func catalogLess(aKnown, bKnown bool, aOrder, bOrder int, aID, bID string) bool {
	if aKnown != bKnown {
		return aKnown
	}
	if !aKnown {
		return false
	}
	if aOrder != bOrder {
		return aOrder < bOrder
	}
	return aID < bID
}

// buildViews decorates the scoring tree with question text and responses.
func buildViews(tree []scoring.Category, qs []models.AuditQuestion, ledger *Ledger) []CategoryView {
	byID := make(map[string]models.AuditQuestion, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	out := make([]CategoryView, 0, len(tree))
	for _, c := range tree {
		cv := CategoryView{ID: c.ID, Name: c.Name, Weight: c.Weight, Score: scoring.CategoryScore(c)}
		for _, s := range c.Subcategories {
			sv := SubcategoryView{ID: s.ID, Name: s.Name, Score: scoring.SubcategoryScore(s)}
			for _, sq := range s.Questions {
				r, _ := ledger.Get(sq.ID)
				sv.Questions = append(sv.Questions, QuestionView{
					AuditQuestion:    byID[sq.ID],
					Passed:           r.Passed,
					Comment:          r.Comment,
					CorrectiveAction: r.CorrectiveAction,
				})
			}
			cv.Subcategories = append(cv.Subcategories, sv)
		}
		out = append(out, cv)
	}
	return out
}
