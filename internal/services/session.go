package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/soaringjerry/storeaudit/internal/debounce"
	"github.com/soaringjerry/storeaudit/internal/models"
	"github.com/soaringjerry/storeaudit/internal/scoring"
)

// Session is one auditor's editing context for one audit. It keeps the
// snapshot and response ledger in memory, writes pass/fail answers
// immediately and coalesces free-text edits per question.
//
// Every load, local edit and completed write takes a ticket from seq. A
// load is dropped only when a newer load has already been applied. When a
// load is applied, responses and audit fields changed after its ticket was
// taken are laid back over it, so a slow reload never rolls back fresher
// state and never loses the structure it read.
type Session struct {
	svc     *AuditService
	auditID string
	actor   string

	mu         sync.Mutex
	audit      *models.Audit
	catalog    *models.Catalog
	questions  []models.AuditQuestion
	ledger     *Ledger
	mode       models.AuditState
	loaded     uint64
	touched    map[string]uint64
	dirty      map[string]uint64
	auditAt    uint64
	lastErr    error
	lastEdited string
	closed     bool

	seq       atomic.Uint64
	debouncer *debounce.Debouncer[string]
}

// OpenSession loads auditID for actor.
func (s *AuditService) OpenSession(ctx context.Context, auditID, actor string) (*Session, error) {
	sess := &Session{
		svc:       s,
		auditID:   auditID,
		actor:     actor,
		touched:   map[string]uint64{},
		dirty:     map[string]uint64{},
		debouncer: debounce.New[string](s.cfg.DebounceDelay),
	}
	if err := sess.Reload(ctx); err != nil {
		sess.debouncer.Close()
		return nil, err
	}
	s.metrics.SessionOpened()
	return sess, nil
}

func (s *Session) AuditID() string { return s.auditID }

// Reload rebuilds the snapshot and ledger from storage. Pending text edits
// are written first. The current mode survives the reload.
func (s *Session) Reload(ctx context.Context) error {
	s.debouncer.FlushAll()
	ticket := s.seq.Add(1)
	st, err := s.svc.load(ctx, s.auditID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err != nil {
		s.lastErr = err
		return err
	}
	if ticket < s.loaded {
		s.svc.logger.Debug("stale reload dropped", "audit", s.auditID, "ticket", ticket, "loaded", s.loaded)
		return nil
	}
	s.loaded = ticket
	if s.audit == nil {
		s.mode = st.audit.State
	}
	if s.audit == nil || s.auditAt < ticket {
		s.audit = st.audit
	}
	s.catalog = st.catalog
	s.questions = st.questions
	s.overlay(st.ledger, ticket)
	s.ledger = st.ledger
	return nil
}

// overlay copies into fresh the local responses that changed after ticket
// or still wait for their debounced write. Callers hold s.mu.
func (s *Session) overlay(fresh *Ledger, ticket uint64) {
	for id, at := range s.touched {
		if at < ticket && s.dirty[id] == 0 {
			delete(s.touched, id)
			continue
		}
		if !containsQuestion(s.questions, id) {
			delete(s.touched, id)
			delete(s.dirty, id)
			continue
		}
		if r, ok := s.ledger.Get(id); ok {
			fresh.Set(r)
		}
	}
}

func containsQuestion(qs []models.AuditQuestion, id string) bool {
	for _, q := range qs {
		if q.ID == id {
			return true
		}
	}
	return false
}

// touch stamps a local change to one response. Callers hold s.mu.
func (s *Session) touch(auditQuestionID string) uint64 {
	n := s.seq.Add(1)
	s.touched[auditQuestionID] = n
	return n
}

// touchAudit stamps a completed write of the audit row. Callers hold s.mu.
func (s *Session) touchAudit() {
	s.auditAt = s.seq.Add(1)
}

// ready checks the session can take a request. Callers hold s.mu.
func (s *Session) ready() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.audit == nil {
		return ErrNoActiveAudit
	}
	return nil
}

func (s *Session) hasQuestion(id string) bool {
	return containsQuestion(s.questions, id)
}

// ResponsePatch names the response fields to change. Passed is applied
// only when SetPassed is true, so a nil Passed can clear an answer or be
// left alone.
type ResponsePatch struct {
	Passed           *bool
	SetPassed        bool
	Comment          *string
	CorrectiveAction *string
}

// RecordResponse writes the pass/fail value of a question, and the text
// fields when given, straight to storage.
func (s *Session) RecordResponse(ctx context.Context, auditQuestionID string, passed *bool, comment, correctiveAction *string) error {
	return s.PatchResponse(ctx, auditQuestionID, ResponsePatch{
		Passed: passed, SetPassed: true, Comment: comment, CorrectiveAction: correctiveAction,
	})
}

// PatchResponse writes the fields of p straight to storage. Local state
// changes only after the write succeeds, and then only for the fields in
// p, so text typed while the write was in flight is kept.
func (s *Session) PatchResponse(ctx context.Context, auditQuestionID string, p ResponsePatch) error {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.hasQuestion(auditQuestionID) {
		s.mu.Unlock()
		return NewValidationError("question not in audit")
	}
	// This write carries the latest text too. Edits from here on schedule
	// their own write.
	hadPending := s.debouncer.Cancel(auditQuestionID)
	delete(s.dirty, auditQuestionID)
	next, _ := s.ledger.Get(auditQuestionID)
	next.AuditQuestionID = auditQuestionID
	next.AuditID = s.auditID
	if p.SetPassed {
		next.Passed = p.Passed
	}
	if p.Comment != nil {
		next.Comment = *p.Comment
	}
	if p.CorrectiveAction != nil {
		next.CorrectiveAction = *p.CorrectiveAction
	}
	next.UpdatedAt = s.svc.now()
	s.mu.Unlock()

	err := s.svc.store.UpsertResponse(ctx, next)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = s.svc.fail("upsert_response", err)
		// Text that was waiting on the cancelled write stays scheduled.
		if hadPending {
			s.dirty[auditQuestionID] = s.touch(auditQuestionID)
			s.debouncer.Trigger(auditQuestionID, func() { s.persist(auditQuestionID) })
		}
		return s.lastErr
	}
	cur, ok := s.ledger.Get(auditQuestionID)
	if !ok {
		cur = next
	}
	cur.AuditQuestionID = auditQuestionID
	cur.AuditID = s.auditID
	if p.SetPassed {
		cur.Passed = p.Passed
	}
	if p.Comment != nil {
		cur.Comment = *p.Comment
	}
	if p.CorrectiveAction != nil {
		cur.CorrectiveAction = *p.CorrectiveAction
	}
	if next.UpdatedAt.After(cur.UpdatedAt) {
		cur.UpdatedAt = next.UpdatedAt
	}
	s.ledger.Set(cur)
	s.touch(auditQuestionID)
	s.svc.metrics.ResponseWritten("immediate")
	return nil
}

// UpdateComment changes the comment locally and schedules its write.
func (s *Session) UpdateComment(auditQuestionID, text string) error {
	return s.editText(auditQuestionID, func(r *models.Response) { r.Comment = text })
}

// UpdateCorrectiveAction changes the corrective action locally and
// schedules its write.
func (s *Session) UpdateCorrectiveAction(auditQuestionID, text string) error {
	return s.editText(auditQuestionID, func(r *models.Response) { r.CorrectiveAction = text })
}

func (s *Session) editText(auditQuestionID string, apply func(*models.Response)) error {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.hasQuestion(auditQuestionID) {
		s.mu.Unlock()
		return NewValidationError("question not in audit")
	}
	r, _ := s.ledger.Get(auditQuestionID)
	r.AuditQuestionID = auditQuestionID
	r.AuditID = s.auditID
	apply(&r)
	r.UpdatedAt = s.svc.now()
	s.ledger.Set(r)
	s.dirty[auditQuestionID] = s.touch(auditQuestionID)
	prev := s.lastEdited
	s.lastEdited = auditQuestionID
	s.mu.Unlock()

	// Moving to another question writes the previous one now.
	if prev != "" && prev != auditQuestionID {
		s.debouncer.Flush(prev)
	}
	if !s.debouncer.Trigger(auditQuestionID, func() { s.persist(auditQuestionID) }) {
		return ErrSessionClosed
	}
	return nil
}

// persist writes the latest local state of one response.
func (s *Session) persist(auditQuestionID string) {
	s.mu.Lock()
	r, ok := s.ledger.Get(auditQuestionID)
	gen := s.dirty[auditQuestionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.svc.cfg.WriteTimeout)
	defer cancel()
	err := s.svc.store.UpsertResponse(ctx, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = s.svc.fail("upsert_response", err)
		return
	}
	if s.dirty[auditQuestionID] == gen {
		delete(s.dirty, auditQuestionID)
	}
	s.touch(auditQuestionID)
	s.svc.metrics.ResponseWritten("debounced")
}

// Flush writes every pending text edit now.
func (s *Session) Flush() int { return s.debouncer.FlushAll() }

// FinalizeRequest carries the closing notes of an audit.
type FinalizeRequest struct {
	PersonalNotes   string `json:"personal_notes"`
	CampaignNotes   string `json:"campaign_notes"`
	ConclusionNotes string `json:"conclusion_notes"`
}

// Finalize scores the audit, stores the notes and marks it completed. It
// may be called again; each call recomputes and overwrites the score and
// leaves a record in the activity trail. Notification failures are logged
// and do not fail the call.
func (s *Session) Finalize(ctx context.Context, req FinalizeRequest) (*models.Audit, error) {
	s.debouncer.FlushAll()

	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	tree := buildTree(s.catalog, s.questions, s.ledger)
	total := scoring.TotalWeightedScore(tree)
	prev := *s.audit
	updated := prev
	updated.State = models.StateCompleted
	updated.TotalScore = total
	updated.PersonalNotes = req.PersonalNotes
	updated.CampaignNotes = req.CampaignNotes
	updated.ConclusionNotes = req.ConclusionNotes
	updated.UpdatedAt = s.svc.now()
	answered := s.ledger.Answered()
	questions := len(s.questions)
	s.mu.Unlock()

	if err := s.svc.store.UpdateAudit(ctx, &updated); err != nil {
		err = s.svc.fail("update_audit", err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.audit = &updated
	s.mode = models.StateCompleted
	s.touchAudit()
	s.mu.Unlock()

	note := fmt.Sprintf("score %d", total)
	if prev.State == models.StateCompleted {
		note = fmt.Sprintf("score %d -> %d", prev.TotalScore, total)
	}
	entry := models.ActivityEntry{Time: updated.UpdatedAt, Actor: s.actor, Action: "finalize", Target: s.auditID, Note: note}
	if err := s.svc.store.AddActivity(ctx, entry); err != nil {
		s.svc.logger.Warn("activity log write failed", "audit", s.auditID, "error", err)
	}
	s.svc.metrics.AuditFinalized(total)
	s.svc.logger.Info("audit finalized", "audit", s.auditID, "score", total, "answered", answered, "questions", questions)
	s.svc.notify(ctx, FinalizedEvent{
		AuditID:    updated.ID,
		StoreID:    updated.StoreID,
		AuditorID:  updated.AuditorID,
		TotalScore: total,
		Answered:   answered,
		Questions:  questions,
		At:         updated.UpdatedAt,
	})
	out := updated
	return &out, nil
}

// SaveNotes stores the note fields without changing state or score.
func (s *Session) SaveNotes(ctx context.Context, req FinalizeRequest) error {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return err
	}
	updated := *s.audit
	updated.PersonalNotes = req.PersonalNotes
	updated.CampaignNotes = req.CampaignNotes
	updated.ConclusionNotes = req.ConclusionNotes
	updated.UpdatedAt = s.svc.now()
	s.mu.Unlock()

	if err := s.svc.store.UpdateAudit(ctx, &updated); err != nil {
		err = s.svc.fail("update_audit", err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.audit = &updated
	s.touchAudit()
	s.mu.Unlock()
	return nil
}

// PreFinalizeCheck reports unanswered questions and missing photo types.
func (s *Session) PreFinalizeCheck(ctx context.Context) (*Precheck, error) {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	st := s.state()
	s.mu.Unlock()
	return s.svc.precheck(ctx, st)
}

// AddVariableQuestion adds an ad-hoc question and reloads the audit.
func (s *Session) AddVariableQuestion(ctx context.Context, subcategoryID, text string) (*models.AuditQuestion, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	q, err := s.svc.AddVariableQuestion(ctx, s.auditID, subcategoryID, text, s.actor)
	if err != nil {
		return nil, err
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// RemoveQuestion removes a question from this audit and reloads it.
func (s *Session) RemoveQuestion(ctx context.Context, auditQuestionID, reason string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.debouncer.Cancel(auditQuestionID)
	if err := s.svc.RemoveQuestionFromAudit(ctx, s.auditID, auditQuestionID, s.actor, reason); err != nil {
		return err
	}
	return s.Reload(ctx)
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready()
}

// state copies the loaded audit. Callers hold s.mu.
func (s *Session) state() *auditState {
	rs := s.ledger.Responses()
	a := *s.audit
	return &auditState{
		audit:     &a,
		catalog:   s.catalog,
		questions: append([]models.AuditQuestion(nil), s.questions...),
		ledger:    NewLedger(rs),
	}
}

// Tree renders the in-memory audit, including unsaved text edits.
func (s *Session) Tree() (*AuditTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.state().tree(), nil
}

// Summary scores the in-memory audit.
func (s *Session) Summary() (*scoring.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	sum := s.state().summary()
	return &sum, nil
}

func (s *Session) Response(auditQuestionID string) (models.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger == nil {
		return models.Response{}, false
	}
	return s.ledger.Get(auditQuestionID)
}

func (s *Session) Questions() []models.AuditQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditQuestion(nil), s.questions...)
}

func (s *Session) Audit() (models.Audit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return models.Audit{}, false
	}
	return *s.audit, true
}

// Mode is the editing mode the session is in. Reloads keep it.
func (s *Session) Mode() models.AuditState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) SetMode(m models.AuditState) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// LastError returns the most recent failure, including ones from
// background writes.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close writes pending edits and rejects further calls. Nothing is written
// after Close returns.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Close()
	s.svc.metrics.SessionClosed()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
