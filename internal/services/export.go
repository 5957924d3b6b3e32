package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/soaringjerry/storeaudit/internal/models"
)

// Report is the data behind the CSV and XLSX audit reports.
type Report struct {
	Store models.Store `json:"store"`
	Tree  *AuditTree   `json:"tree"`
}

// Report loads an audit with its store for export.
func (s *AuditService) Report(ctx context.Context, auditID string) (*Report, error) {
	st, err := s.load(ctx, auditID)
	if err != nil {
		return nil, err
	}
	store, err := s.store.GetStore(ctx, st.audit.StoreID)
	if err != nil {
		return nil, s.fail("get_store", err)
	}
	r := &Report{Tree: st.tree()}
	if store != nil {
		r.Store = *store
	} else {
		r.Store = models.Store{ID: st.audit.StoreID, Name: st.audit.StoreID}
	}
	return r, nil
}

var detailHeader = []string{"category", "subcategory", "question", "result", "comment", "corrective_action"}

func resultLabel(p *bool) string {
	switch {
	case p == nil:
		return ""
	case *p:
		return "pass"
	default:
		return "fail"
	}
}

func formatScore(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func (r *Report) detailRows() [][]string {
	var rows [][]string
	for _, c := range r.Tree.Categories {
		for _, s := range c.Subcategories {
			for _, q := range s.Questions {
				rows = append(rows, []string{c.Name, s.Name, q.Text, resultLabel(q.Passed), q.Comment, q.CorrectiveAction})
			}
		}
	}
	return rows
}

// ExportReportCSV renders one row per question with its result.
func ExportReportCSV(r *Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(detailHeader)
	for _, row := range r.detailRows() {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

const (
	sheetSummary = "Summary"
	sheetDetails = "Details"
)

// ExportReportXLSX renders a workbook with a summary sheet (header fields,
// category scores and the total) and a details sheet with every question.
func ExportReportXLSX(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetDetails); err != nil {
		return nil, err
	}

	a := r.Tree.Audit
	summary := [][]any{
		{"Store", r.Store.Name},
		{"Date", a.Date.Format(dateLayout)},
		{"Auditor", a.AuditorID},
		{"Received by", a.ReceivedBy},
		{"State", string(a.State)},
		{"Total score", r.Tree.TotalScore},
		{},
		{"Category", "Weight", "Score"},
	}
	for _, c := range r.Tree.Categories {
		summary = append(summary, []any{c.Name, c.Weight, formatScore(c.Score)})
	}
	if a.ConclusionNotes != "" {
		summary = append(summary, []any{}, []any{"Conclusions", a.ConclusionNotes})
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return nil, err
	}

	details := [][]any{toAny(detailHeader)}
	for _, row := range r.detailRows() {
		details = append(details, toAny(row))
	}
	if err := writeRows(f, sheetDetails, details); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(sheetDetails, "C", "C", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := row
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return err
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
