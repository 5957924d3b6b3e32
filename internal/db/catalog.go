package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/soaringjerry/storeaudit/internal/models"
)

func (s *SQLStore) InsertCategory(ctx context.Context, c *models.Category) error {
	_, err := s.exec(ctx, s.db, "insert category",
		"INSERT INTO categories (id, name, weight, position) VALUES (?, ?, ?, ?)",
		c.ID, c.Name, c.Weight, c.Order)
	return err
}

func (s *SQLStore) UpdateCategory(ctx context.Context, c *models.Category) error {
	_, err := s.exec(ctx, s.db, "update category",
		"UPDATE categories SET name = ?, weight = ?, position = ? WHERE id = ?",
		c.Name, c.Weight, c.Order, c.ID)
	return err
}

func (s *SQLStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var c models.Category
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, name, weight, position FROM categories WHERE id = ?"), id).
		Scan(&c.ID, &c.Name, &c.Weight, &c.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logErr("get category", err)
		return nil, err
	}
	return &c, nil
}

func (s *SQLStore) InsertSubcategory(ctx context.Context, sub *models.Subcategory) error {
	_, err := s.exec(ctx, s.db, "insert subcategory",
		"INSERT INTO subcategories (id, category_id, name, position) VALUES (?, ?, ?, ?)",
		sub.ID, sub.CategoryID, sub.Name, sub.Order)
	return err
}

func (s *SQLStore) GetSubcategory(ctx context.Context, id string) (*models.Subcategory, error) {
	var sub models.Subcategory
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, category_id, name, position FROM subcategories WHERE id = ?"), id).
		Scan(&sub.ID, &sub.CategoryID, &sub.Name, &sub.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logErr("get subcategory", err)
		return nil, err
	}
	return &sub, nil
}

func (s *SQLStore) InsertQuestion(ctx context.Context, q *models.Question) error {
	_, err := s.exec(ctx, s.db, "insert question",
		"INSERT INTO questions (id, subcategory_id, text, position, active) VALUES (?, ?, ?, ?, ?)",
		q.ID, q.SubcategoryID, q.Text, q.Order, q.Active)
	return err
}

func (s *SQLStore) UpdateQuestion(ctx context.Context, q *models.Question) error {
	_, err := s.exec(ctx, s.db, "update question",
		"UPDATE questions SET text = ?, position = ? WHERE id = ?",
		q.Text, q.Order, q.ID)
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var q models.Question
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, subcategory_id, text, position, active FROM questions WHERE id = ?"), id).
		Scan(&q.ID, &q.SubcategoryID, &q.Text, &q.Order, &q.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logErr("get question", err)
		return nil, err
	}
	return &q, nil
}

func (s *SQLStore) SetQuestionActive(ctx context.Context, id string, active bool) error {
	_, err := s.exec(ctx, s.db, "set question active", "UPDATE questions SET active = ? WHERE id = ?", active, id)
	return err
}

// ReorderQuestions gives the listed questions positions 1..n. It reports
// false, changing nothing, if an id is not in the subcategory.
func (s *SQLStore) ReorderQuestions(ctx context.Context, subcategoryID string, order []string) (bool, error) {
	ok := true
	err := s.withTx(ctx, "reorder questions", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.rebind("SELECT id FROM questions WHERE subcategory_id = ?"), subcategoryID)
		if err != nil {
			return err
		}
		member := map[string]bool{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			member[id] = true
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range order {
			if !member[strings.TrimSpace(id)] {
				ok = false
				return nil
			}
		}
		for i, id := range order {
			if _, err := s.exec(ctx, tx, "reorder question", "UPDATE questions SET position = ? WHERE id = ?", i+1, strings.TrimSpace(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// LoadCatalog reads the catalog in display order.
func (s *SQLStore) LoadCatalog(ctx context.Context, activeOnly bool) (*models.Catalog, error) {
	c := &models.Catalog{}

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, weight, position FROM categories ORDER BY position, id")
	if err != nil {
		s.logErr("load categories", err)
		return nil, err
	}
	for rows.Next() {
		var v models.Category
		if err := rows.Scan(&v.ID, &v.Name, &v.Weight, &v.Order); err != nil {
			_ = rows.Close()
			return nil, err
		}
		c.Categories = append(c.Categories, v)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT id, category_id, name, position FROM subcategories ORDER BY position, id")
	if err != nil {
		s.logErr("load subcategories", err)
		return nil, err
	}
	for rows.Next() {
		var v models.Subcategory
		if err := rows.Scan(&v.ID, &v.CategoryID, &v.Name, &v.Order); err != nil {
			_ = rows.Close()
			return nil, err
		}
		c.Subcategories = append(c.Subcategories, v)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	query := "SELECT id, subcategory_id, text, position, active FROM questions"
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	rows, err = s.db.QueryContext(ctx, query+" ORDER BY position, id")
	if err != nil {
		s.logErr("load questions", err)
		return nil, err
	}
	for rows.Next() {
		var v models.Question
		if err := rows.Scan(&v.ID, &v.SubcategoryID, &v.Text, &v.Order, &v.Active); err != nil {
			_ = rows.Close()
			return nil, err
		}
		c.Questions = append(c.Questions, v)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}
	return c, nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	return err
}
