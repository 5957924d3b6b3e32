package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/storeaudit/internal/models"
)

// Getters return (nil, nil) when the row does not exist.

// CatalogStore persists the master catalog.
type CatalogStore interface {
	InsertCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	InsertSubcategory(ctx context.Context, s *models.Subcategory) error
	GetSubcategory(ctx context.Context, id string) (*models.Subcategory, error)
	InsertQuestion(ctx context.Context, q *models.Question) error
	UpdateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	SetQuestionActive(ctx context.Context, id string, active bool) error
	ReorderQuestions(ctx context.Context, subcategoryID string, order []string) (bool, error)
	LoadCatalog(ctx context.Context, activeOnly bool) (*models.Catalog, error)
	AddActivity(ctx context.Context, e models.ActivityEntry) error
}

// AuditStore persists audits, their snapshots and responses.
type AuditStore interface {
	LoadCatalog(ctx context.Context, activeOnly bool) (*models.Catalog, error)
	GetSubcategory(ctx context.Context, id string) (*models.Subcategory, error)

	InsertStore(ctx context.Context, st *models.Store) error
	GetStore(ctx context.Context, id string) (*models.Store, error)
	ListStores(ctx context.Context) ([]models.Store, error)

	// CreateAuditWithQuestions writes the audit, its variable records and
	// its snapshot in one transaction.
	CreateAuditWithQuestions(ctx context.Context, a *models.Audit, qs []models.AuditQuestion, vars []models.VariableQuestion) error
	GetAudit(ctx context.Context, id string) (*models.Audit, error)
	ListAudits(ctx context.Context, storeID string) ([]models.Audit, error)
	UpdateAudit(ctx context.Context, a *models.Audit) error

	ListAuditQuestions(ctx context.Context, auditID string) ([]models.AuditQuestion, error)
	GetAuditQuestion(ctx context.Context, id string) (*models.AuditQuestion, error)
	InsertVariableQuestion(ctx context.Context, v models.VariableQuestion, q models.AuditQuestion) error
	// RemoveCatalogQuestion records the marker and drops the snapshot row and
	// its response. It reports false when the marker already existed.
	RemoveCatalogQuestion(ctx context.Context, marker models.DeletedQuestion, auditQuestionID string) (bool, error)
	RemoveVariableQuestion(ctx context.Context, auditQuestionID, variableQuestionID string) error

	ListResponses(ctx context.Context, auditID string) ([]models.Response, error)
	UpsertResponse(ctx context.Context, r models.Response) error

	AddPhoto(ctx context.Context, p *models.Photo) error
	ListPhotos(ctx context.Context, auditID string) ([]models.Photo, error)
	CountPhotos(ctx context.Context, auditID string) (map[string]int, error)

	AddActivity(ctx context.Context, e models.ActivityEntry) error
	ListActivity(ctx context.Context, target string) ([]models.ActivityEntry, error)
}

// FinalizedEvent is published after an audit is finalized.
type FinalizedEvent struct {
	AuditID    string    `json:"audit_id"`
	StoreID    string    `json:"store_id"`
	AuditorID  string    `json:"auditor_id"`
	TotalScore int       `json:"total_score"`
	Answered   int       `json:"answered"`
	Questions  int       `json:"questions"`
	At         time.Time `json:"at"`
}

// Notifier delivers finalize notifications. Failures never fail a finalize.
type Notifier interface {
	AuditFinalized(ctx context.Context, ev FinalizedEvent) error
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func defaultID() string { return shortID(12) }
