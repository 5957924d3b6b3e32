package services

import (
	"context"
	"math"
	"sort"

	"github.com/soaringjerry/storeaudit/internal/models"
)

type AnalyticsStore interface {
	GetStore(ctx context.Context, id string) (*models.Store, error)
	ListAudits(ctx context.Context, storeID string) ([]models.Audit, error)
	ListAuditQuestions(ctx context.Context, auditID string) ([]models.AuditQuestion, error)
	ListResponses(ctx context.Context, auditID string) ([]models.Response, error)
}

type AnalyticsService struct {
	store AnalyticsStore
}

type ScorePoint struct {
	Date    string `json:"date"`
	AuditID string `json:"audit_id"`
	Score   int    `json:"score"`
}

// FailedQuestion counts failures of one question text across audits.
type FailedQuestion struct {
	Text     string `json:"text"`
	Failed   int    `json:"failed"`
	Answered int    `json:"answered"`
}

type StoreSummary struct {
	StoreID      string           `json:"store_id"`
	Audits       int              `json:"audits"`
	Completed    int              `json:"completed"`
	AverageScore float64          `json:"average_score"`
	LastScore    int              `json:"last_score"`
	Timeseries   []ScorePoint     `json:"timeseries"`
	MostFailed   []FailedQuestion `json:"most_failed"`
}

const mostFailedLimit = 10

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// StoreSummary aggregates the completed audits of one store: score trend
// by audit date and the questions failed most often.
func (s *AnalyticsService) StoreSummary(ctx context.Context, storeID string) (*StoreSummary, error) {
	st, err := s.store.GetStore(ctx, storeID)
	if err != nil {
		return nil, remote("get_store", err)
	}
	if st == nil {
		return nil, NewNotFoundError("store not found")
	}
	audits, err := s.store.ListAudits(ctx, storeID)
	if err != nil {
		return nil, remote("list_audits", err)
	}
	out := &StoreSummary{StoreID: storeID, Audits: len(audits), Timeseries: []ScorePoint{}, MostFailed: []FailedQuestion{}}
	completed := make([]models.Audit, 0, len(audits))
	for _, a := range audits {
		if a.State == models.StateCompleted {
			completed = append(completed, a)
		}
	}
	if len(completed) == 0 {
		return out, nil
	}
	sort.SliceStable(completed, func(i, j int) bool {
		if !completed[i].Date.Equal(completed[j].Date) {
			return completed[i].Date.Before(completed[j].Date)
		}
		return completed[i].CreatedAt.Before(completed[j].CreatedAt)
	})

	failures := map[string]*FailedQuestion{}
	sum := 0
	for _, a := range completed {
		sum += a.TotalScore
		out.Timeseries = append(out.Timeseries, ScorePoint{Date: a.Date.Format(dateLayout), AuditID: a.ID, Score: a.TotalScore})
		if err := s.countFailures(ctx, a.ID, failures); err != nil {
			return nil, err
		}
	}
	out.Completed = len(completed)
	out.AverageScore = math.Round(float64(sum)/float64(len(completed))*10) / 10
	out.LastScore = completed[len(completed)-1].TotalScore
	out.MostFailed = rankFailures(failures, mostFailedLimit)
	return out, nil
}

func (s *AnalyticsService) countFailures(ctx context.Context, auditID string, into map[string]*FailedQuestion) error {
	qs, err := s.store.ListAuditQuestions(ctx, auditID)
	if err != nil {
		return remote("list_audit_questions", err)
	}
	rs, err := s.store.ListResponses(ctx, auditID)
	if err != nil {
		return remote("list_responses", err)
	}
	ledger := NewLedger(rs)
	for _, q := range qs {
		p := ledger.Passed(q.ID)
		if p == nil {
			continue
		}
		fq := into[q.Text]
		if fq == nil {
			fq = &FailedQuestion{Text: q.Text}
			into[q.Text] = fq
		}
		fq.Answered++
		if !*p {
			fq.Failed++
		}
	}
	return nil
}

func rankFailures(m map[string]*FailedQuestion, limit int) []FailedQuestion {
	out := make([]FailedQuestion, 0, len(m))
	for _, fq := range m {
		if fq.Failed > 0 {
			out = append(out, *fq)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failed != out[j].Failed {
			return out[i].Failed > out[j].Failed
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
