package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/soaringjerry/storeaudit/internal/metrics"
	"github.com/soaringjerry/storeaudit/internal/models"
	"github.com/soaringjerry/storeaudit/internal/scoring"
	"github.com/soaringjerry/storeaudit/internal/snapshot"
)

const dateLayout = "2006-01-02"

// AuditConfig tunes the audit workflow.
type AuditConfig struct {
	// RequiredPhotoTypes are the photo tags the pre-finalize check expects
	// at least one upload for.
	RequiredPhotoTypes []string
	// DebounceDelay is the quiet period before a free-text edit is written.
	DebounceDelay time.Duration
	// WriteTimeout bounds debounced writes, which run outside any request.
	WriteTimeout time.Duration
}

func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		RequiredPhotoTypes: []string{"facade", "interior"},
		DebounceDelay:      time.Second,
		WriteTimeout:       10 * time.Second,
	}
}

type AuditOption func(*AuditService)

func WithNotifier(n Notifier) AuditOption        { return func(s *AuditService) { s.notifier = n } }
func WithMetrics(m *metrics.Metrics) AuditOption { return func(s *AuditService) { s.metrics = m } }
func WithLogger(l *slog.Logger) AuditOption      { return func(s *AuditService) { s.logger = l } }
func WithAuditConfig(c AuditConfig) AuditOption  { return func(s *AuditService) { s.cfg = c } }

// AuditService runs snapshot creation and the audit lifecycle.
type AuditService struct {
	store       AuditStore
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	cfg         AuditConfig
	now         func() time.Time
	idGenerator func() string
}

func NewAuditService(store AuditStore, opts ...AuditOption) *AuditService {
	s := &AuditService{
		store:       store,
		logger:      slog.Default(),
		cfg:         DefaultAuditConfig(),
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.DebounceDelay <= 0 {
		s.cfg.DebounceDelay = time.Second
	}
	if s.cfg.WriteTimeout <= 0 {
		s.cfg.WriteTimeout = 10 * time.Second
	}
	return s
}

// CreateAuditRequest carries the form fields for a new audit.
type CreateAuditRequest struct {
	StoreID    string `json:"store_id"`
	Date       string `json:"date"`
	ReceivedBy string `json:"received_by"`
	AuditorID  string `json:"-"`
}

func (s *AuditService) CreateStore(ctx context.Context, name, code string) (*models.Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("store name required")
	}
	st := &models.Store{ID: s.idGenerator(), Name: name, Code: strings.TrimSpace(code), Active: true, CreatedAt: s.now()}
	if err := s.store.InsertStore(ctx, st); err != nil {
		return nil, s.fail("insert_store", err)
	}
	return st, nil
}

func (s *AuditService) ListStores(ctx context.Context) ([]models.Store, error) {
	out, err := s.store.ListStores(ctx)
	if err != nil {
		return nil, s.fail("list_stores", err)
	}
	return out, nil
}

func (s *AuditService) validateHeader(ctx context.Context, storeID, date, auditorID string) (time.Time, error) {
	if strings.TrimSpace(auditorID) == "" {
		return time.Time{}, NewUnauthorizedError("auditor required")
	}
	if strings.TrimSpace(storeID) == "" {
		return time.Time{}, NewValidationError("store required")
	}
	if strings.TrimSpace(date) == "" {
		return time.Time{}, NewValidationError("date required")
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, NewValidationError("date must be YYYY-MM-DD")
	}
	st, err := s.store.GetStore(ctx, storeID)
	if err != nil {
		return time.Time{}, s.fail("get_store", err)
	}
	if st == nil {
		return time.Time{}, NewValidationError("store not found")
	}
	return d, nil
}

// CreateAudit snapshots every active catalog question into a new audit.
// Nothing is written when a question cannot be resolved to its category.
func (s *AuditService) CreateAudit(ctx context.Context, req CreateAuditRequest) (*models.Audit, error) {
	date, err := s.validateHeader(ctx, req.StoreID, req.Date, req.AuditorID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.store.LoadCatalog(ctx, true)
	if err != nil {
		return nil, s.fail("load_catalog", err)
	}
	a := s.newAudit(req.StoreID, req.AuditorID, req.ReceivedBy, date)
	qs, err := snapshot.Build(a.ID, catalog, s.idGenerator)
	if err != nil {
		s.logger.Error("snapshot build failed", "audit", a.ID, "error", err)
		return nil, NewSnapshotCreationError(err)
	}
	if err := s.store.CreateAuditWithQuestions(ctx, a, qs, nil); err != nil {
		return nil, s.fail("create_audit", err)
	}
	s.metrics.AuditCreated("catalog")
	s.logger.Info("audit created", "audit", a.ID, "store", a.StoreID, "questions", len(qs))
	return a, nil
}

// CloneRequest overrides the header of a cloned audit. Empty fields fall
// back to the template, except Date which defaults to today.
type CloneRequest struct {
	StoreID    string `json:"store_id"`
	Date       string `json:"date"`
	ReceivedBy string `json:"received_by"`
	AuditorID  string `json:"-"`
}

// CloneFromTemplate starts a new audit with the exact question set of
// templateID, variable questions included, and no responses.
func (s *AuditService) CloneFromTemplate(ctx context.Context, templateID string, req CloneRequest) (*models.Audit, error) {
	tpl, err := s.store.GetAudit(ctx, templateID)
	if err != nil {
		return nil, s.fail("get_audit", err)
	}
	if tpl == nil {
		return nil, NewNotFoundError("template audit not found")
	}
	if req.StoreID == "" {
		req.StoreID = tpl.StoreID
	}
	if req.ReceivedBy == "" {
		req.ReceivedBy = tpl.ReceivedBy
	}
	if req.Date == "" {
		req.Date = s.now().Format(dateLayout)
	}
	date, err := s.validateHeader(ctx, req.StoreID, req.Date, req.AuditorID)
	if err != nil {
		return nil, err
	}
	source, err := s.store.ListAuditQuestions(ctx, templateID)
	if err != nil {
		return nil, s.fail("list_audit_questions", err)
	}
	a := s.newAudit(req.StoreID, req.AuditorID, req.ReceivedBy, date)
	qs, vars := snapshot.Clone(a.ID, source, req.AuditorID, s.now(), s.idGenerator)
	if err := s.store.CreateAuditWithQuestions(ctx, a, qs, vars); err != nil {
		return nil, s.fail("create_audit", err)
	}
	s.metrics.AuditCreated("template")
	s.logger.Info("audit cloned", "audit", a.ID, "template", templateID, "questions", len(qs))
	return a, nil
}

func (s *AuditService) newAudit(storeID, auditorID, receivedBy string, date time.Time) *models.Audit {
	now := s.now()
	return &models.Audit{
		ID:         s.idGenerator(),
		StoreID:    storeID,
		AuditorID:  auditorID,
		Date:       date,
		ReceivedBy: strings.TrimSpace(receivedBy),
		State:      models.StateInProgress,
		TotalScore: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AddVariableQuestion appends an ad-hoc question to one audit. It sorts
// after every catalog question of its subcategory.
func (s *AuditService) AddVariableQuestion(ctx context.Context, auditID, subcategoryID, text, actor string) (*models.AuditQuestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewValidationError("question text required")
	}
	if _, err := s.requireAudit(ctx, auditID); err != nil {
		return nil, err
	}
	sub, err := s.store.GetSubcategory(ctx, subcategoryID)
	if err != nil {
		return nil, s.fail("get_subcategory", err)
	}
	if sub == nil {
		return nil, NewValidationError("subcategory not found")
	}
	existing, err := s.store.ListAuditQuestions(ctx, auditID)
	if err != nil {
		return nil, s.fail("list_audit_questions", err)
	}
	v := models.VariableQuestion{
		ID:            s.idGenerator(),
		AuditID:       auditID,
		SubcategoryID: sub.ID,
		Text:          text,
		CreatedBy:     actor,
		CreatedAt:     s.now(),
	}
	q := models.AuditQuestion{
		ID:                 s.idGenerator(),
		AuditID:            auditID,
		VariableQuestionID: v.ID,
		Text:               text,
		CategoryID:         sub.CategoryID,
		SubcategoryID:      sub.ID,
		Order:              snapshot.NextVariableOrder(existing, sub.ID),
	}
	if err := s.store.InsertVariableQuestion(ctx, v, q); err != nil {
		return nil, s.fail("insert_variable_question", err)
	}
	return &q, nil
}

// RemoveQuestionFromAudit hides a question from one audit. Catalog
// questions leave a deleted-question marker; variable questions are
// dropped with their response. Removing a question that is already gone
// succeeds without doing anything.
func (s *AuditService) RemoveQuestionFromAudit(ctx context.Context, auditID, auditQuestionID, actor, reason string) error {
	q, err := s.store.GetAuditQuestion(ctx, auditQuestionID)
	if err != nil {
		return s.fail("get_audit_question", err)
	}
	if q == nil {
		return nil
	}
	if q.AuditID != auditID {
		return NewNotFoundError("question not in audit")
	}
	if q.Variable() {
		if err := s.store.RemoveVariableQuestion(ctx, q.ID, q.VariableQuestionID); err != nil {
			return s.fail("remove_variable_question", err)
		}
		return nil
	}
	marker := models.DeletedQuestion{
		AuditID:    auditID,
		QuestionID: q.SourceQuestionID,
		RemovedBy:  actor,
		Reason:     strings.TrimSpace(reason),
		RemovedAt:  s.now(),
	}
	created, err := s.store.RemoveCatalogQuestion(ctx, marker, q.ID)
	if err != nil {
		return s.fail("remove_catalog_question", err)
	}
	if !created {
		s.logger.Debug("deleted-question marker already present", "audit", auditID, "question", q.SourceQuestionID)
	}
	return nil
}

func (s *AuditService) requireAudit(ctx context.Context, auditID string) (*models.Audit, error) {
	a, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		return nil, s.fail("get_audit", err)
	}
	if a == nil {
		return nil, NewNotFoundError("audit not found")
	}
	return a, nil
}

func (s *AuditService) GetAudit(ctx context.Context, auditID string) (*models.Audit, error) {
	return s.requireAudit(ctx, auditID)
}

func (s *AuditService) ListAudits(ctx context.Context, storeID string) ([]models.Audit, error) {
	out, err := s.store.ListAudits(ctx, storeID)
	if err != nil {
		return nil, s.fail("list_audits", err)
	}
	return out, nil
}

// auditState is everything needed to render and score one audit.
type auditState struct {
	audit     *models.Audit
	catalog   *models.Catalog
	questions []models.AuditQuestion
	ledger    *Ledger
}

func (s *AuditService) load(ctx context.Context, auditID string) (*auditState, error) {
	a, err := s.requireAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	qs, err := s.store.ListAuditQuestions(ctx, auditID)
	if err != nil {
		return nil, s.fail("list_audit_questions", err)
	}
	rs, err := s.store.ListResponses(ctx, auditID)
	if err != nil {
		return nil, s.fail("list_responses", err)
	}
	// Inactive catalog entries still name the groups old snapshots use.
	catalog, err := s.store.LoadCatalog(ctx, false)
	if err != nil {
		return nil, s.fail("load_catalog", err)
	}
	return &auditState{audit: a, catalog: catalog, questions: qs, ledger: NewLedger(rs)}, nil
}

func (st *auditState) tree() *AuditTree {
	tree := buildTree(st.catalog, st.questions, st.ledger)
	return &AuditTree{
		Audit:      *st.audit,
		Categories: buildViews(tree, st.questions, st.ledger),
		TotalScore: scoring.TotalWeightedScore(tree),
	}
}

func (st *auditState) summary() scoring.Summary {
	return scoring.Summarize(buildTree(st.catalog, st.questions, st.ledger))
}

// Tree returns the audit with every question grouped and scored.
func (s *AuditService) Tree(ctx context.Context, auditID string) (*AuditTree, error) {
	st, err := s.load(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return st.tree(), nil
}

// Score computes the live scores of an audit without persisting them.
func (s *AuditService) Score(ctx context.Context, auditID string) (*scoring.Summary, error) {
	st, err := s.load(ctx, auditID)
	if err != nil {
		return nil, err
	}
	sum := st.summary()
	return &sum, nil
}

// Precheck lists what is still missing before finalize. It is advisory.
type Precheck struct {
	Unanswered        []models.AuditQuestion `json:"unanswered"`
	MissingPhotoTypes []string               `json:"missing_photo_types"`
	Complete          bool                   `json:"complete"`
}

func (s *AuditService) precheck(ctx context.Context, st *auditState) (*Precheck, error) {
	pc := &Precheck{Unanswered: []models.AuditQuestion{}, MissingPhotoTypes: []string{}}
	for _, q := range st.questions {
		if st.ledger.Passed(q.ID) == nil {
			pc.Unanswered = append(pc.Unanswered, q)
		}
	}
	counts, err := s.store.CountPhotos(ctx, st.audit.ID)
	if err != nil {
		return nil, s.fail("count_photos", err)
	}
	for _, t := range s.cfg.RequiredPhotoTypes {
		if counts[t] == 0 {
			pc.MissingPhotoTypes = append(pc.MissingPhotoTypes, t)
		}
	}
	sort.Strings(pc.MissingPhotoTypes)
	pc.Complete = len(pc.Unanswered) == 0 && len(pc.MissingPhotoTypes) == 0
	return pc, nil
}

func (s *AuditService) Precheck(ctx context.Context, auditID string) (*Precheck, error) {
	st, err := s.load(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return s.precheck(ctx, st)
}

// AddPhoto registers an uploaded photo. The bytes live elsewhere.
func (s *AuditService) AddPhoto(ctx context.Context, auditID, photoType, url string) (*models.Photo, error) {
	photoType = strings.TrimSpace(photoType)
	url = strings.TrimSpace(url)
	if photoType == "" || url == "" {
		return nil, NewValidationError("photo_type and url required")
	}
	if _, err := s.requireAudit(ctx, auditID); err != nil {
		return nil, err
	}
	p := &models.Photo{ID: s.idGenerator(), AuditID: auditID, PhotoType: photoType, URL: url, CreatedAt: s.now()}
	if err := s.store.AddPhoto(ctx, p); err != nil {
		return nil, s.fail("add_photo", err)
	}
	return p, nil
}

func (s *AuditService) ListPhotos(ctx context.Context, auditID string) ([]models.Photo, error) {
	out, err := s.store.ListPhotos(ctx, auditID)
	if err != nil {
		return nil, s.fail("list_photos", err)
	}
	return out, nil
}

// History returns the activity trail of an audit, finalize records included.
func (s *AuditService) History(ctx context.Context, auditID string) ([]models.ActivityEntry, error) {
	out, err := s.store.ListActivity(ctx, auditID)
	if err != nil {
		return nil, s.fail("list_activity", err)
	}
	return out, nil
}

func (s *AuditService) notify(ctx context.Context, ev FinalizedEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AuditFinalized(ctx, ev); err != nil {
		s.metrics.NotifyFailed()
		s.logger.Warn("finalize notification failed", "audit", ev.AuditID, "error", err)
	}
}

// fail logs a data layer error and converts it for the caller.
func (s *AuditService) fail(op string, err error) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return NewRemoteIOError(op, err)
	}
	s.metrics.StoreError(op)
	s.logger.Error("store call failed", "op", op, "error", err)
	return remote(op, err)
}
