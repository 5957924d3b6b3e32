package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/soaringjerry/storeaudit/internal/models"
)

func (s *SQLStore) InsertStore(ctx context.Context, st *models.Store) error {
	_, err := s.exec(ctx, s.db, "insert store",
		"INSERT INTO stores (id, name, code, active, created_at) VALUES (?, ?, ?, ?, ?)",
		st.ID, st.Name, st.Code, st.Active, st.CreatedAt)
	return err
}

func (s *SQLStore) GetStore(ctx context.Context, id string) (*models.Store, error) {
	var st models.Store
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, name, code, active, created_at FROM stores WHERE id = ?"), id).
		Scan(&st.ID, &st.Name, &st.Code, &st.Active, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logErr("get store", err)
		return nil, err
	}
	return &st, nil
}

func (s *SQLStore) ListStores(ctx context.Context) ([]models.Store, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, code, active, created_at FROM stores ORDER BY name, id")
	if err != nil {
		s.logErr("list stores", err)
		return nil, err
	}
	var out []models.Store
	for rows.Next() {
		var st models.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Code, &st.Active, &st.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, st)
	}
	return out, closeRows(rows)
}

const auditColumns = "id, store_id, auditor_id, audit_date, received_by, state, total_score, personal_notes, campaign_notes, conclusion_notes, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanAudit(r scanner) (*models.Audit, error) {
	var a models.Audit
	var date, state string
	if err := r.Scan(&a.ID, &a.StoreID, &a.AuditorID, &date, &a.ReceivedBy, &state, &a.TotalScore,
		&a.PersonalNotes, &a.CampaignNotes, &a.ConclusionNotes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Date = parseDate(date)
	a.State = models.AuditState(state)
	return &a, nil
}

// CreateAuditWithQuestions writes the audit row, its variable questions and
// the whole snapshot atomically. The snapshot keeps its slice order in seq.
func (s *SQLStore) CreateAuditWithQuestions(ctx context.Context, a *models.Audit, qs []models.AuditQuestion, vars []models.VariableQuestion) error {
	return s.withTx(ctx, "create audit", func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, "insert audit",
			"INSERT INTO audits ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			a.ID, a.StoreID, a.AuditorID, a.Date.Format(dateLayout), a.ReceivedBy, string(a.State), a.TotalScore,
			a.PersonalNotes, a.CampaignNotes, a.ConclusionNotes, a.CreatedAt, a.UpdatedAt); err != nil {
			return err
		}
		for _, v := range vars {
			if err := s.insertVariable(ctx, tx, v); err != nil {
				return err
			}
		}
		for i, q := range qs {
			if err := s.insertAuditQuestion(ctx, tx, q, i+1); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) insertVariable(ctx context.Context, tx *sql.Tx, v models.VariableQuestion) error {
	_, err := s.exec(ctx, tx, "insert variable question",
		"INSERT INTO variable_questions (id, audit_id, subcategory_id, text, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		v.ID, v.AuditID, v.SubcategoryID, v.Text, v.CreatedBy, v.CreatedAt)
	return err
}

func (s *SQLStore) insertAuditQuestion(ctx context.Context, tx *sql.Tx, q models.AuditQuestion, seq int) error {
	_, err := s.exec(ctx, tx, "insert audit question",
		`INSERT INTO audit_questions (id, audit_id, source_question_id, variable_question_id, text, category_id, subcategory_id, position, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.AuditID, nullString(q.SourceQuestionID), nullString(q.VariableQuestionID), q.Text,
		q.CategoryID, q.SubcategoryID, q.Order, seq)
	return err
}

func (s *SQLStore) GetAudit(ctx context.Context, id string) (*models.Audit, error) {
	a, err := scanAudit(s.db.QueryRowContext(ctx, s.rebind("SELECT "+auditColumns+" FROM audits WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logErr("get audit", err)
		return nil, err
	}
	return a, nil
}

// ListAudits returns audits newest first; an empty storeID lists all.
func (s *SQLStore) ListAudits(ctx context.Context, storeID string) ([]models.Audit, error) {
	query := "SELECT " + auditColumns + " FROM audits"
	var args []any
	if storeID != "" {
		query += " WHERE store_id = ?"
		args = append(args, storeID)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query+" ORDER BY audit_date DESC, created_at DESC"), args...)
	if err != nil {
		s.logErr("list audits", err)
		return nil, err
	}
	var out []models.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, *a)
	}
	return out, closeRows(rows)
}

func (s *SQLStore) UpdateAudit(ctx context.Context, a *models.Audit) error {
	res, err := s.exec(ctx, s.db, "update audit",
		`UPDATE audits SET received_by = ?, state = ?, total_score = ?, personal_notes = ?, campaign_notes = ?,
		 conclusion_notes = ?, updated_at = ? WHERE id = ?`,
		a.ReceivedBy, string(a.State), a.TotalScore, a.PersonalNotes, a.CampaignNotes, a.ConclusionNotes, a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const auditQuestionColumns = "id, audit_id, source_question_id, variable_question_id, text, category_id, subcategory_id, position"

func scanAuditQuestion(r scanner) (*models.AuditQuestion, error) {
	var q models.AuditQuestion
	var src, variable sql.NullString
	if err := r.Scan(&q.ID, &q.AuditID, &src, &variable, &q.Text, &q.CategoryID, &q.SubcategoryID, &q.Order); err != nil {
		return nil, err
	}
	q.SourceQuestionID = src.String
	q.VariableQuestionID = variable.String
	return &q, nil
}

// ListAuditQuestions returns the snapshot in the order it was written.
func (s *SQLStore) ListAuditQuestions(ctx context.Context, auditID string) ([]models.AuditQuestion, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT "+auditQuestionColumns+" FROM audit_questions WHERE audit_id = ? ORDER BY seq"), auditID)
	if err != nil {
		s.logErr("list audit questions", err)
		return nil, err
	}
	var out []models.AuditQuestion
	for rows.Next() {
		q, err := scanAuditQuestion(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, *q)
	}
	return out, closeRows(rows)
}

func (s *SQLStore) GetAuditQuestion(ctx context.Context, id string) (*models.AuditQuestion, error) {
	q, err := scanAuditQuestion(s.db.QueryRowContext(ctx, s.rebind("SELECT "+auditQuestionColumns+" FROM audit_questions WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logErr("get audit question", err)
		return nil, err
	}
	return q, nil
}

func (s *SQLStore) InsertVariableQuestion(ctx context.Context, v models.VariableQuestion, q models.AuditQuestion) error {
	return s.withTx(ctx, "insert variable question", func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx, s.rebind("SELECT COALESCE(MAX(seq), 0) FROM audit_questions WHERE audit_id = ?"), q.AuditID).Scan(&seq); err != nil {
			return err
		}
		if err := s.insertVariable(ctx, tx, v); err != nil {
			return err
		}
		return s.insertAuditQuestion(ctx, tx, q, seq+1)
	})
}

// RemoveCatalogQuestion stores the deleted-question marker unless one
// exists and drops the snapshot row with its response.
func (s *SQLStore) RemoveCatalogQuestion(ctx context.Context, m models.DeletedQuestion, auditQuestionID string) (bool, error) {
	created := false
	err := s.withTx(ctx, "remove catalog question", func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, "insert deleted question",
			`INSERT INTO deleted_questions (audit_id, question_id, removed_by, reason, removed_at)
			 VALUES (?, ?, ?, ?, ?) ON CONFLICT (audit_id, question_id) DO NOTHING`,
			m.AuditID, m.QuestionID, m.RemovedBy, m.Reason, m.RemovedAt)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			created = true
		}
		if _, err := s.exec(ctx, tx, "delete response", "DELETE FROM responses WHERE audit_question_id = ?", auditQuestionID); err != nil {
			return err
		}
		_, err = s.exec(ctx, tx, "delete audit question", "DELETE FROM audit_questions WHERE id = ?", auditQuestionID)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *SQLStore) RemoveVariableQuestion(ctx context.Context, auditQuestionID, variableQuestionID string) error {
	return s.withTx(ctx, "remove variable question", func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, "delete response", "DELETE FROM responses WHERE audit_question_id = ?", auditQuestionID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, "delete audit question", "DELETE FROM audit_questions WHERE id = ?", auditQuestionID); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, "delete variable question", "DELETE FROM variable_questions WHERE id = ?", variableQuestionID)
		return err
	})
}

// ListDeletedQuestions returns the markers of one audit.
func (s *SQLStore) ListDeletedQuestions(ctx context.Context, auditID string) ([]models.DeletedQuestion, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT audit_id, question_id, removed_by, reason, removed_at FROM deleted_questions WHERE audit_id = ? ORDER BY removed_at, question_id"), auditID)
	if err != nil {
		s.logErr("list deleted questions", err)
		return nil, err
	}
	var out []models.DeletedQuestion
	for rows.Next() {
		var m models.DeletedQuestion
		if err := rows.Scan(&m.AuditID, &m.QuestionID, &m.RemovedBy, &m.Reason, &m.RemovedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	return out, closeRows(rows)
}
