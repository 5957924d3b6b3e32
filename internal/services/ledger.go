package services

import "github.com/soaringjerry/storeaudit/internal/models"

// Ledger holds the responses of one audit keyed by audit question id.
// It is not safe for concurrent use; Session guards it.
type Ledger struct {
	byQuestion map[string]models.Response
}

func NewLedger(rs []models.Response) *Ledger {
	l := &Ledger{byQuestion: make(map[string]models.Response, len(rs))}
	for _, r := range rs {
		l.byQuestion[r.AuditQuestionID] = r
	}
	return l
}

func (l *Ledger) Get(auditQuestionID string) (models.Response, bool) {
	r, ok := l.byQuestion[auditQuestionID]
	return r, ok
}

func (l *Ledger) Set(r models.Response) { l.byQuestion[r.AuditQuestionID] = r }

// Passed returns the pass/fail value for a question, nil if unanswered.
func (l *Ledger) Passed(auditQuestionID string) *bool {
	return l.byQuestion[auditQuestionID].Passed
}

func (l *Ledger) Len() int { return len(l.byQuestion) }

// Answered counts responses with a pass/fail value.
func (l *Ledger) Answered() int {
	n := 0
	for _, r := range l.byQuestion {
		if r.Answered() {
			n++
		}
	}
	return n
}

// Responses returns a copy of every response.
func (l *Ledger) Responses() []models.Response {
	out := make([]models.Response, 0, len(l.byQuestion))
	for _, r := range l.byQuestion {
		out = append(out, r)
	}
	return out
}
