package models

import "time"

// AuditState is the lifecycle state of an audit.
type AuditState string

const (
	StateInProgress AuditState = "in_progress"
	StateCompleted  AuditState = "completed"
)

// Store is a retail location that gets audited.
type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a weighted top-level group of the master catalog.
// Weights are not normalized; the final score divides by the sum of the
// weights of categories that have at least one answer.
type Category struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Order  int     `json:"order"`
}

// Subcategory groups questions inside a category. It carries no weight.
type Subcategory struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
}

// Question is a catalog question. Inactive questions are hidden from new
// audits but stay referenced by old snapshots.
type Question struct {
	ID            string `json:"id"`
	SubcategoryID string `json:"subcategory_id"`
	Text          string `json:"text"`
	Order         int    `json:"order"`
	Active        bool   `json:"active"`
}

// Catalog is a read-only view of the master catalog taken at one point in time.
type Catalog struct {
	Categories    []Category    `json:"categories"`
	Subcategories []Subcategory `json:"subcategories"`
	Questions     []Question    `json:"questions"`
}

// AuditQuestion is one frozen question of an audit's snapshot. Text,
// CategoryID and SubcategoryID never change after the snapshot is taken.
type AuditQuestion struct {
	ID                 string `json:"id"`
	AuditID            string `json:"audit_id"`
	SourceQuestionID   string `json:"source_question_id,omitempty"`
	VariableQuestionID string `json:"variable_question_id,omitempty"`
	Text               string `json:"text"`
	CategoryID         string `json:"category_id"`
	SubcategoryID      string `json:"subcategory_id"`
	Order              int    `json:"order"`
}

// Variable reports whether the question was added to this audit only.
func (q AuditQuestion) Variable() bool { return q.SourceQuestionID == "" }

// VariableQuestion backs an ad-hoc question that exists in one audit only.
type VariableQuestion struct {
	ID            string    `json:"id"`
	AuditID       string    `json:"audit_id"`
	SubcategoryID string    `json:"subcategory_id"`
	Text          string    `json:"text"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Response is the answer to one snapshot question. A nil Passed means unanswered.
type Response struct {
	AuditQuestionID  string    `json:"audit_question_id"`
	AuditID          string    `json:"audit_id"`
	Passed           *bool     `json:"passed"`
	Comment          string    `json:"comment,omitempty"`
	CorrectiveAction string    `json:"corrective_action,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Answered reports whether the response carries a pass/fail value.
func (r Response) Answered() bool { return r.Passed != nil }

// Audit is one store audit and owns exactly one snapshot of questions.
type Audit struct {
	ID              string     `json:"id"`
	StoreID         string     `json:"store_id"`
	AuditorID       string     `json:"auditor_id"`
	Date            time.Time  `json:"date"`
	ReceivedBy      string     `json:"received_by,omitempty"`
	State           AuditState `json:"state"`
	TotalScore      int        `json:"total_score"`
	PersonalNotes   string     `json:"personal_notes,omitempty"`
	CampaignNotes   string     `json:"campaign_notes,omitempty"`
	ConclusionNotes string     `json:"conclusion_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DeletedQuestion marks a catalog question hidden from one audit.
type DeletedQuestion struct {
	AuditID    string    `json:"audit_id"`
	QuestionID string    `json:"question_id"`
	RemovedBy  string    `json:"removed_by,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RemovedAt  time.Time `json:"removed_at"`
}

// Photo is an uploaded picture reference; the bytes live in object storage.
type Photo struct {
	ID        string    `json:"id"`
	AuditID   string    `json:"audit_id"`
	PhotoType string    `json:"photo_type"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityEntry is an append-only trail record (finalize history, catalog edits).
type ActivityEntry struct {
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
