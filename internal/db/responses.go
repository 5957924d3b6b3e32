package db

import (
	"context"
	"database/sql"

	"github.com/soaringjerry/storeaudit/internal/models"
)

func (s *SQLStore) ListResponses(ctx context.Context, auditID string) ([]models.Response, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT audit_question_id, audit_id, passed, comment, corrective_action, updated_at FROM responses WHERE audit_id = ?"), auditID)
	if err != nil {
		s.logErr("list responses", err)
		return nil, err
	}
	var out []models.Response
	for rows.Next() {
		var r models.Response
		var passed sql.NullBool
		if err := rows.Scan(&r.AuditQuestionID, &r.AuditID, &passed, &r.Comment, &r.CorrectiveAction, &r.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		r.Passed = boolPtr(passed)
		out = append(out, r)
	}
	return out, closeRows(rows)
}

// UpsertResponse keeps at most one response per audit question; the last
// write wins.
func (s *SQLStore) UpsertResponse(ctx context.Context, r models.Response) error {
	_, err := s.exec(ctx, s.db, "upsert response",
		`INSERT INTO responses (audit_question_id, audit_id, passed, comment, corrective_action, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (audit_question_id) DO UPDATE SET
		   passed = excluded.passed,
		   comment = excluded.comment,
		   corrective_action = excluded.corrective_action,
		   updated_at = excluded.updated_at`,
		r.AuditQuestionID, r.AuditID, nullBool(r.Passed), r.Comment, r.CorrectiveAction, r.UpdatedAt)
	return err
}

func (s *SQLStore) AddPhoto(ctx context.Context, p *models.Photo) error {
	_, err := s.exec(ctx, s.db, "insert photo",
		"INSERT INTO photos (id, audit_id, photo_type, url, created_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.AuditID, p.PhotoType, p.URL, p.CreatedAt)
	return err
}

func (s *SQLStore) ListPhotos(ctx context.Context, auditID string) ([]models.Photo, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, audit_id, photo_type, url, created_at FROM photos WHERE audit_id = ? ORDER BY created_at, id"), auditID)
	if err != nil {
		s.logErr("list photos", err)
		return nil, err
	}
	var out []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.AuditID, &p.PhotoType, &p.URL, &p.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	return out, closeRows(rows)
}

func (s *SQLStore) CountPhotos(ctx context.Context, auditID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT photo_type, COUNT(*) FROM photos WHERE audit_id = ? GROUP BY photo_type"), auditID)
	if err != nil {
		s.logErr("count photos", err)
		return nil, err
	}
	out := map[string]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out[t] = n
	}
	return out, closeRows(rows)
}

func (s *SQLStore) AddActivity(ctx context.Context, e models.ActivityEntry) error {
	_, err := s.exec(ctx, s.db, "insert activity",
		"INSERT INTO activity_log (at, actor, action, target, note) VALUES (?, ?, ?, ?, ?)",
		e.Time, e.Actor, e.Action, e.Target, e.Note)
	return err
}

// ListActivity returns entries for target oldest first.
func (s *SQLStore) ListActivity(ctx context.Context, target string) ([]models.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT at, actor, action, target, note FROM activity_log WHERE target = ? ORDER BY id"), target)
	if err != nil {
		s.logErr("list activity", err)
		return nil, err
	}
	var out []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	return out, closeRows(rows)
}
