package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/soaringjerry/storeaudit/internal/models"
)

// CatalogService edits the master catalog. Edits only affect audits
// created afterwards; existing snapshots keep their own copy.
type CatalogService struct {
	store       CatalogStore
	logger      *slog.Logger
	now         func() time.Time
	idGenerator func() string
}

func NewCatalogService(store CatalogStore, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		store:       store,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: func() string { return shortID(8) },
	}
}

func (s *CatalogService) Catalog(ctx context.Context, activeOnly bool) (*models.Catalog, error) {
	c, err := s.store.LoadCatalog(ctx, activeOnly)
	if err != nil {
		return nil, remote("load_catalog", err)
	}
	return c, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, c *models.Category, actor string) (*models.Category, error) {
	if c == nil {
		return nil, NewValidationError("category required")
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, NewValidationError("category name required")
	}
	if c.Weight <= 0 {
		return nil, NewValidationError("category weight must be positive")
	}
	if c.ID == "" {
		c.ID = s.idGenerator()
	}
	if err := s.store.InsertCategory(ctx, c); err != nil {
		return nil, remote("insert_category", err)
	}
	s.activity(ctx, actor, "create_category", c.ID, c.Name)
	return c, nil
}

// CategoryPatch lists the category fields to change; nil leaves a field as is.
type CategoryPatch struct {
	Name   *string  `json:"name"`
	Weight *float64 `json:"weight"`
	Order  *int     `json:"order"`
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id string, p CategoryPatch, actor string) (*models.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, remote("get_category", err)
	}
	if c == nil {
		return nil, NewNotFoundError("category not found")
	}
	updated := *c
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, NewValidationError("category name required")
		}
		updated.Name = strings.TrimSpace(*p.Name)
	}
	if p.Weight != nil {
		if *p.Weight <= 0 {
			return nil, NewValidationError("category weight must be positive")
		}
		updated.Weight = *p.Weight
	}
	if p.Order != nil {
		updated.Order = *p.Order
	}
	if err := s.store.UpdateCategory(ctx, &updated); err != nil {
		return nil, remote("update_category", err)
	}
	if updated.Weight != c.Weight {
		s.activity(ctx, actor, "weight_change", id, strconv.FormatFloat(updated.Weight, 'f', -1, 64))
	}
	return &updated, nil
}

func (s *CatalogService) CreateSubcategory(ctx context.Context, sub *models.Subcategory) (*models.Subcategory, error) {
	if sub == nil {
		return nil, NewValidationError("subcategory required")
	}
	sub.Name = strings.TrimSpace(sub.Name)
	if sub.Name == "" {
		return nil, NewValidationError("subcategory name required")
	}
	c, err := s.store.GetCategory(ctx, sub.CategoryID)
	if err != nil {
		return nil, remote("get_category", err)
	}
	if c == nil {
		return nil, NewValidationError("category not found")
	}
	if sub.ID == "" {
		sub.ID = s.idGenerator()
	}
	if err := s.store.InsertSubcategory(ctx, sub); err != nil {
		return nil, remote("insert_subcategory", err)
	}
	return sub, nil
}

// AddCatalogQuestion creates an active catalog question.
func (s *CatalogService) AddCatalogQuestion(ctx context.Context, q *models.Question, actor string) (*models.Question, error) {
	if q == nil {
		return nil, NewValidationError("question required")
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, NewValidationError("question text required")
	}
	sub, err := s.store.GetSubcategory(ctx, q.SubcategoryID)
	if err != nil {
		return nil, remote("get_subcategory", err)
	}
	if sub == nil {
		return nil, NewValidationError("subcategory not found")
	}
	if q.ID == "" {
		q.ID = s.idGenerator()
	}
	q.Active = true
	if err := s.store.InsertQuestion(ctx, q); err != nil {
		return nil, remote("insert_question", err)
	}
	s.activity(ctx, actor, "add_question", q.ID, "")
	return q, nil
}

// QuestionPatch lists the question fields to change.
type QuestionPatch struct {
	Text  *string `json:"text"`
	Order *int    `json:"order"`
}

// EditCatalogQuestion changes the catalog copy only.
func (s *CatalogService) EditCatalogQuestion(ctx context.Context, id string, p QuestionPatch, actor string) (*models.Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, remote("get_question", err)
	}
	if q == nil {
		return nil, NewNotFoundError("question not found")
	}
	updated := *q
	if p.Text != nil {
		if strings.TrimSpace(*p.Text) == "" {
			return nil, NewValidationError("question text required")
		}
		updated.Text = strings.TrimSpace(*p.Text)
	}
	if p.Order != nil {
		updated.Order = *p.Order
	}
	if err := s.store.UpdateQuestion(ctx, &updated); err != nil {
		return nil, remote("update_question", err)
	}
	s.activity(ctx, actor, "edit_question", id, "")
	return &updated, nil
}

// DeactivateCatalogQuestion hides a question from future audits.
func (s *CatalogService) DeactivateCatalogQuestion(ctx context.Context, id, actor string) error {
	return s.setActive(ctx, id, false, actor)
}

func (s *CatalogService) ActivateCatalogQuestion(ctx context.Context, id, actor string) error {
	return s.setActive(ctx, id, true, actor)
}

func (s *CatalogService) setActive(ctx context.Context, id string, active bool, actor string) error {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return remote("get_question", err)
	}
	if q == nil {
		return NewNotFoundError("question not found")
	}
	if q.Active == active {
		return nil
	}
	if err := s.store.SetQuestionActive(ctx, id, active); err != nil {
		return remote("set_question_active", err)
	}
	action := "deactivate_question"
	if active {
		action = "activate_question"
	}
	s.activity(ctx, actor, action, id, "")
	return nil
}

// ReorderQuestions assigns orders 1..n to the given question ids.
func (s *CatalogService) ReorderQuestions(ctx context.Context, subcategoryID string, order []string) (int, error) {
	if len(order) == 0 {
		return 0, NewValidationError("order required")
	}
	sub, err := s.store.GetSubcategory(ctx, subcategoryID)
	if err != nil {
		return 0, remote("get_subcategory", err)
	}
	if sub == nil {
		return 0, NewNotFoundError("subcategory not found")
	}
	ok, err := s.store.ReorderQuestions(ctx, subcategoryID, order)
	if err != nil {
		return 0, remote("reorder_questions", err)
	}
	if !ok {
		return 0, NewValidationError("order must list questions of this subcategory")
	}
	return len(order), nil
}

var catalogCSVHeader = []string{"category", "weight", "subcategory", "question", "order", "active"}

// ExportCSV writes the whole catalog, one question per row, in the format
// ImportCSV reads. Output starts with a UTF-8 BOM for spreadsheet apps.
func (s *CatalogService) ExportCSV(ctx context.Context) ([]byte, error) {
	c, err := s.Catalog(ctx, false)
	if err != nil {
		return nil, err
	}
	cats := map[string]models.Category{}
	for _, cat := range c.Categories {
		cats[cat.ID] = cat
	}
	subs := map[string]models.Subcategory{}
	for _, sub := range c.Subcategories {
		subs[sub.ID] = sub
	}
	qs := append([]models.Question(nil), c.Questions...)
	sort.SliceStable(qs, func(i, j int) bool {
		si, sj := subs[qs[i].SubcategoryID], subs[qs[j].SubcategoryID]
		ci, cj := cats[si.CategoryID], cats[sj.CategoryID]
		if ci.Order != cj.Order {
			return ci.Order < cj.Order
		}
		if si.Order != sj.Order {
			return si.Order < sj.Order
		}
		return qs[i].Order < qs[j].Order
	})

	var buf bytes.Buffer
	buf.Write([]byte{0xEF, 0xBB, 0xBF})
	w := csv.NewWriter(&buf)
	_ = w.Write(catalogCSVHeader)
	for _, q := range qs {
		sub := subs[q.SubcategoryID]
		cat := cats[sub.CategoryID]
		_ = w.Write([]string{
			cat.Name,
			strconv.FormatFloat(cat.Weight, 'f', -1, 64),
			sub.Name,
			q.Text,
			strconv.Itoa(q.Order),
			strconv.FormatBool(q.Active),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportCSV appends questions from a CSV as produced by ExportCSV.
// Categories and subcategories are matched by name and created when
// missing. It returns the number of questions created.
func (s *CatalogService) ImportCSV(ctx context.Context, data []byte, actor string) (int, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return 0, NewValidationError("invalid csv: " + err.Error())
	}
	if len(rows) == 0 {
		return 0, NewValidationError("empty csv")
	}
	header := rows[0]
	idx := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}
	iCat, iWeight, iSub, iQ, iOrder, iActive := idx("category"), idx("weight"), idx("subcategory"), idx("question"), idx("order"), idx("active")
	if iCat < 0 || iSub < 0 || iQ < 0 {
		return 0, NewValidationError("csv needs category, subcategory and question columns")
	}

	current, err := s.Catalog(ctx, false)
	if err != nil {
		return 0, err
	}
	ix := newCatalogIndex(current)

	created := 0
	for n, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		get := func(i int) string {
			if i >= 0 && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		line := n + 2
		catName, subName, text := get(iCat), get(iSub), get(iQ)
		if catName == "" || subName == "" || text == "" {
			return created, NewValidationError("row " + strconv.Itoa(line) + ": category, subcategory and question required")
		}
		cat, ok := ix.category(catName)
		if !ok {
			w, err := strconv.ParseFloat(get(iWeight), 64)
			if err != nil || w <= 0 {
				return created, NewValidationError("row " + strconv.Itoa(line) + ": new category needs a positive weight")
			}
			cat, err = s.CreateCategory(ctx, &models.Category{Name: catName, Weight: w, Order: ix.nextCategoryOrder()}, actor)
			if err != nil {
				return created, err
			}
			ix.addCategory(*cat)
		}
		sub, ok := ix.subcategory(cat.ID, subName)
		if !ok {
			sub, err = s.CreateSubcategory(ctx, &models.Subcategory{CategoryID: cat.ID, Name: subName, Order: ix.nextSubcategoryOrder(cat.ID)})
			if err != nil {
				return created, err
			}
			ix.addSubcategory(*sub)
		}
		q := &models.Question{ID: s.idGenerator(), SubcategoryID: sub.ID, Text: text, Active: true}
		if o, err := strconv.Atoi(get(iOrder)); err == nil {
			q.Order = o
		} else {
			q.Order = ix.nextQuestionOrder(sub.ID)
		}
		if v := get(iActive); v != "" {
			q.Active = parseBool(v)
		}
		if err := s.store.InsertQuestion(ctx, q); err != nil {
			return created, remote("insert_question", err)
		}
		ix.addQuestion(*q)
		created++
	}
	s.activity(ctx, actor, "import_catalog", "catalog", strconv.Itoa(created))
	return created, nil
}

func (s *CatalogService) activity(ctx context.Context, actor, action, target, note string) {
	e := models.ActivityEntry{Time: s.now(), Actor: actor, Action: action, Target: target, Note: note}
	if err := s.store.AddActivity(ctx, e); err != nil {
		s.logger.Warn("activity log write failed", "action", action, "error", err)
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "si", "sí":
		return true
	}
	return false
}

// catalogIndex resolves catalog names during imports.
type catalogIndex struct {
	cats        map[string]*models.Category
	subs        map[string]*models.Subcategory
	maxCat      int
	maxSub      map[string]int
	maxQuestion map[string]int
}

func newCatalogIndex(c *models.Catalog) *catalogIndex {
	ix := &catalogIndex{
		cats:        map[string]*models.Category{},
		subs:        map[string]*models.Subcategory{},
		maxSub:      map[string]int{},
		maxQuestion: map[string]int{},
	}
	if c == nil {
		return ix
	}
	for _, cat := range c.Categories {
		ix.addCategory(cat)
	}
	for _, sub := range c.Subcategories {
		ix.addSubcategory(sub)
	}
	for _, q := range c.Questions {
		ix.addQuestion(q)
	}
	return ix
}

func nameKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (ix *catalogIndex) category(name string) (*models.Category, bool) {
	c, ok := ix.cats[nameKey(name)]
	return c, ok
}

func (ix *catalogIndex) subcategory(categoryID, name string) (*models.Subcategory, bool) {
	s, ok := ix.subs[categoryID+"\x00"+nameKey(name)]
	return s, ok
}

func (ix *catalogIndex) addCategory(c models.Category) {
	ix.cats[nameKey(c.Name)] = &c
	if c.Order > ix.maxCat {
		ix.maxCat = c.Order
	}
}

func (ix *catalogIndex) addSubcategory(s models.Subcategory) {
	ix.subs[s.CategoryID+"\x00"+nameKey(s.Name)] = &s
	if s.Order > ix.maxSub[s.CategoryID] {
		ix.maxSub[s.CategoryID] = s.Order
	}
}

func (ix *catalogIndex) addQuestion(q models.Question) {
	if q.Order > ix.maxQuestion[q.SubcategoryID] {
		ix.maxQuestion[q.SubcategoryID] = q.Order
	}
}

func (ix *catalogIndex) nextCategoryOrder() int { return ix.maxCat + 1 }

func (ix *catalogIndex) nextSubcategoryOrder(categoryID string) int {
	return ix.maxSub[categoryID] + 1
}

func (ix *catalogIndex) nextQuestionOrder(subcategoryID string) int {
	return ix.maxQuestion[subcategoryID] + 1
}
