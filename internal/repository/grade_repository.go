package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/motta-superate/grades-api/internal/models"
)

// GradeRepository manages persistence for grades and grade categories.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grades matching the provided filters.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	base := "FROM grades WHERE 1=1"
	var args []interface{}

	if filter.StudentID != "" {
		base += fmt.Sprintf(" AND student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		base += fmt.Sprintf(" AND subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.CategoryID != "" {
		base += fmt.Sprintf(" AND category_id = $%d", len(args)+1)
		args = append(args, filter.CategoryID)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, student_id, subject_id, teacher_id, category_id, title, score, max_score, recorded_at, created_at, updated_at %s ORDER BY recorded_at DESC LIMIT %d OFFSET %d", base, size, offset)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID fetches a grade by ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, student_id, subject_id, teacher_id, category_id, title, score, max_score, recorded_at, created_at, updated_at FROM grades WHERE id = $1 LIMIT 1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Create inserts a new grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	if grade.RecordedAt.IsZero() {
		grade.RecordedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, student_id, subject_id, teacher_id, category_id, title, score, max_score, recorded_at, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :teacher_id, :category_id, :title, :score, :max_score, :recorded_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update modifies an existing grade.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET category_id = :category_id, title = :title, score = :score, max_score = :max_score, recorded_at = :recorded_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grades WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}

// ListCategories returns the grade categories of a subject.
func (r *GradeRepository) ListCategories(ctx context.Context, subjectID string) ([]models.GradeCategory, error) {
	const query = `SELECT id, subject_id, name, weight, created_at FROM grade_categories WHERE subject_id = $1 ORDER BY name ASC`
	var categories []models.GradeCategory
	if err := r.db.SelectContext(ctx, &categories, query, subjectID); err != nil {
		return nil, fmt.Errorf("list grade categories: %w", err)
	}
	return categories, nil
}

// FindCategory fetches a grade category by ID.
func (r *GradeRepository) FindCategory(ctx context.Context, id string) (*models.GradeCategory, error) {
	const query = `SELECT id, subject_id, name, weight, created_at FROM grade_categories WHERE id = $1 LIMIT 1`
	var category models.GradeCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// CreateCategory inserts a new grade category.
func (r *GradeRepository) CreateCategory(ctx context.Context, category *models.GradeCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grade_categories (id, subject_id, name, weight, created_at) VALUES (:id, :subject_id, :name, :weight, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create grade category: %w", err)
	}
	return nil
}
