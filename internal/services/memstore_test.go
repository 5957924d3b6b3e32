package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/soaringjerry/storeaudit/internal/models"
)

// memStore is an in-memory AuditStore and CatalogStore for service tests.
type memStore struct {
	mu             sync.Mutex
	stores         map[string]models.Store
	categories     map[string]models.Category
	subcategories  map[string]models.Subcategory
	questions      map[string]models.Question
	audits         map[string]models.Audit
	auditQuestions []models.AuditQuestion
	variables      map[string]models.VariableQuestion
	responses      map[string]models.Response
	deleted        map[string]models.DeletedQuestion
	photos         []models.Photo
	activity       []models.ActivityEntry

	upserts       int
	failUpsert    error
	failCreate    error
	failUpdate    error
	onLoadCatalog func()
	onUpsert      func()
}

func newMemStore() *memStore {
	return &memStore{
		stores:        map[string]models.Store{},
		categories:    map[string]models.Category{},
		subcategories: map[string]models.Subcategory{},
		questions:     map[string]models.Question{},
		audits:        map[string]models.Audit{},
		variables:     map[string]models.VariableQuestion{},
		responses:     map[string]models.Response{},
		deleted:       map[string]models.DeletedQuestion{},
	}
}

func (m *memStore) InsertCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = *c
	return nil
}

func (m *memStore) UpdateCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = *c
	return nil
}

func (m *memStore) GetCategory(_ context.Context, id string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memStore) InsertSubcategory(_ context.Context, s *models.Subcategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subcategories[s.ID] = *s
	return nil
}

func (m *memStore) GetSubcategory(_ context.Context, id string) (*models.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subcategories[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) InsertQuestion(_ context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = *q
	return nil
}

func (m *memStore) UpdateQuestion(_ context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = *q
	return nil
}

func (m *memStore) GetQuestion(_ context.Context, id string) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *memStore) SetQuestionActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.questions[id]
	q.Active = active
	m.questions[id] = q
	return nil
}

func (m *memStore) ReorderQuestions(_ context.Context, subcategoryID string, order []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range order {
		if q, ok := m.questions[id]; !ok || q.SubcategoryID != subcategoryID {
			return false, nil
		}
	}
	for i, id := range order {
		q := m.questions[id]
		q.Order = i + 1
		m.questions[id] = q
	}
	return true, nil
}

func (m *memStore) LoadCatalog(_ context.Context, activeOnly bool) (*models.Catalog, error) {
	if m.onLoadCatalog != nil {
		m.onLoadCatalog()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.Catalog{}
	for _, v := range m.categories {
		c.Categories = append(c.Categories, v)
	}
	for _, v := range m.subcategories {
		c.Subcategories = append(c.Subcategories, v)
	}
	for _, v := range m.questions {
		if activeOnly && !v.Active {
			continue
		}
		c.Questions = append(c.Questions, v)
	}
	sort.Slice(c.Categories, func(i, j int) bool { return c.Categories[i].ID < c.Categories[j].ID })
	sort.Slice(c.Subcategories, func(i, j int) bool { return c.Subcategories[i].ID < c.Subcategories[j].ID })
	sort.Slice(c.Questions, func(i, j int) bool { return c.Questions[i].ID < c.Questions[j].ID })
	return c, nil
}

func (m *memStore) AddActivity(_ context.Context, e models.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, e)
	return nil
}

func (m *memStore) ListActivity(_ context.Context, target string) ([]models.ActivityEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ActivityEntry
	for _, e := range m.activity {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) InsertStore(_ context.Context, st *models.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[st.ID] = *st
	return nil
}

func (m *memStore) GetStore(_ context.Context, id string) (*models.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stores[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memStore) ListStores(_ context.Context) ([]models.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Store
	for _, st := range m.stores {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateAuditWithQuestions(_ context.Context, a *models.Audit, qs []models.AuditQuestion, vars []models.VariableQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	m.audits[a.ID] = *a
	for _, v := range vars {
		m.variables[v.ID] = v
	}
	m.auditQuestions = append(m.auditQuestions, qs...)
	return nil
}

func (m *memStore) GetAudit(_ context.Context, id string) (*models.Audit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.audits[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStore) ListAudits(_ context.Context, storeID string) ([]models.Audit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Audit
	for _, a := range m.audits {
		if storeID == "" || a.StoreID == storeID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateAudit(_ context.Context, a *models.Audit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, ok := m.audits[a.ID]; !ok {
		return errors.New("no such audit")
	}
	m.audits[a.ID] = *a
	return nil
}

func (m *memStore) ListAuditQuestions(_ context.Context, auditID string) ([]models.AuditQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditQuestion
	for _, q := range m.auditQuestions {
		if q.AuditID == auditID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memStore) GetAuditQuestion(_ context.Context, id string) (*models.AuditQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.auditQuestions {
		if q.ID == id {
			q := q
			return &q, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertVariableQuestion(_ context.Context, v models.VariableQuestion, q models.AuditQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables[v.ID] = v
	m.auditQuestions = append(m.auditQuestions, q)
	return nil
}

func (m *memStore) dropAuditQuestion(id string) {
	out := m.auditQuestions[:0]
	for _, q := range m.auditQuestions {
		if q.ID != id {
			out = append(out, q)
		}
	}
	m.auditQuestions = out
	delete(m.responses, id)
}

func (m *memStore) RemoveCatalogQuestion(_ context.Context, marker models.DeletedQuestion, auditQuestionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := marker.AuditID + "|" + marker.QuestionID
	_, exists := m.deleted[key]
	if !exists {
		m.deleted[key] = marker
	}
	m.dropAuditQuestion(auditQuestionID)
	return !exists, nil
}

func (m *memStore) RemoveVariableQuestion(_ context.Context, auditQuestionID, variableQuestionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropAuditQuestion(auditQuestionID)
	delete(m.variables, variableQuestionID)
	return nil
}

func (m *memStore) ListResponses(_ context.Context, auditID string) ([]models.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Response
	for _, r := range m.responses {
		if r.AuditID == auditID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpsertResponse(_ context.Context, r models.Response) error {
	if m.onUpsert != nil {
		m.onUpsert()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return m.failUpsert
	}
	m.upserts++
	m.responses[r.AuditQuestionID] = r
	return nil
}

func (m *memStore) AddPhoto(_ context.Context, p *models.Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos = append(m.photos, *p)
	return nil
}

func (m *memStore) ListPhotos(_ context.Context, auditID string) ([]models.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Photo
	for _, p := range m.photos {
		if p.AuditID == auditID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CountPhotos(_ context.Context, auditID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, p := range m.photos {
		if p.AuditID == auditID {
			out[p.PhotoType]++
		}
	}
	return out, nil
}

func (m *memStore) response(id string) (models.Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.responses[id]
	return r, ok
}

func (m *memStore) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// seedScenario builds two categories (weights 10 and 20), each with one
// subcategory of two questions, plus one store.
func seedScenario(m *memStore) {
	m.stores["S1"] = models.Store{ID: "S1", Name: "Sucursal Centro", Active: true}
	m.categories["A"] = models.Category{ID: "A", Name: "Limpieza", Weight: 10, Order: 1}
	m.categories["B"] = models.Category{ID: "B", Name: "Exhibición", Weight: 20, Order: 2}
	m.subcategories["a1"] = models.Subcategory{ID: "a1", CategoryID: "A", Name: "Piso", Order: 1}
	m.subcategories["b1"] = models.Subcategory{ID: "b1", CategoryID: "B", Name: "Vitrinas", Order: 1}
	m.questions["qa1"] = models.Question{ID: "qa1", SubcategoryID: "a1", Text: "Piso trapeado", Order: 1, Active: true}
	m.questions["qa2"] = models.Question{ID: "qa2", SubcategoryID: "a1", Text: "Piso sin basura", Order: 2, Active: true}
	m.questions["qb1"] = models.Question{ID: "qb1", SubcategoryID: "b1", Text: "Vitrina ordenada", Order: 1, Active: true}
	m.questions["qb2"] = models.Question{ID: "qb2", SubcategoryID: "b1", Text: "Precios visibles", Order: 2, Active: true}
}

func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", prefix, n)
	}
}
