package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/motta-superate/grades-api/internal/models"
)

// SubjectRepository manages persistence for subjects and their promotion
// sets.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects matching the provided filters.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	base := "FROM subjects s LEFT JOIN teachers t ON t.id = s.teacher_id"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.PromotionID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM subject_promotions sp WHERE sp.subject_id = s.id AND sp.promotion_id = $%d)", len(args)+1))
		args = append(args, filter.PromotionID)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("s.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Semester != nil {
		conditions = append(conditions, fmt.Sprintf("s.semester = $%d", len(args)+1))
		args = append(args, *filter.Semester)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{"name": "s.name", "academic_year": "s.academic_year", "created_at": "s.created_at"}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.name, s.teacher_id, s.academic_year, s.semester, s.created_at, s.updated_at,
        CONCAT(t.first_name, ' ', t.last_name) AS teacher_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var subjects []models.SubjectDetail
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT s.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	for i := range subjects {
		ids, err := r.ListPromotionIDs(ctx, subjects[i].ID)
		if err != nil {
			return nil, 0, err
		}
		subjects[i].PromotionIDs = ids
	}
	return subjects, total, nil
}

// FindByID fetches a subject detail by ID including its promotion set.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	const query = `SELECT s.id, s.name, s.teacher_id, s.academic_year, s.semester, s.created_at, s.updated_at,
        CONCAT(t.first_name, ' ', t.last_name) AS teacher_name
        FROM subjects s LEFT JOIN teachers t ON t.id = s.teacher_id
        WHERE s.id = $1 LIMIT 1`
	var detail models.SubjectDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	ids, err := r.ListPromotionIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.PromotionIDs = ids
	return &detail, nil
}

// ListByPromotion returns every subject whose promotion set contains the
// promotion. This is the fan-out query for new enrollments.
func (r *SubjectRepository) ListByPromotion(ctx context.Context, promotionID string) ([]models.Subject, error) {
	const query = `SELECT s.id, s.name, s.teacher_id, s.academic_year, s.semester, s.created_at, s.updated_at
        FROM subjects s
        JOIN subject_promotions sp ON sp.subject_id = s.id
        WHERE sp.promotion_id = $1
        ORDER BY s.name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, promotionID); err != nil {
		return nil, fmt.Errorf("list subjects by promotion: %w", err)
	}
	return subjects, nil
}

// ListPromotionIDs returns the promotion set of a subject.
func (r *SubjectRepository) ListPromotionIDs(ctx context.Context, subjectID string) ([]string, error) {
	const query = `SELECT promotion_id FROM subject_promotions WHERE subject_id = $1 ORDER BY promotion_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, subjectID); err != nil {
		return nil, fmt.Errorf("list subject promotions: %w", err)
	}
	return ids, nil
}

// Create inserts a new subject together with its promotion set.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject, promotionIDs []string) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, name, teacher_id, academic_year, semester, created_at, updated_at) VALUES (:id, :name, :teacher_id, :academic_year, :semester, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	for _, promotionID := range promotionIDs {
		if err := r.AddPromotion(ctx, subject.ID, promotionID); err != nil {
			return err
		}
	}
	return nil
}

// Update modifies an existing subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET name = :name, teacher_id = :teacher_id, academic_year = :academic_year, semester = :semester, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// AddPromotion links a promotion into the subject's promotion set. Already
// existing students of that promotion are not retroactively enrolled.
func (r *SubjectRepository) AddPromotion(ctx context.Context, subjectID, promotionID string) error {
	const query = `INSERT INTO subject_promotions (subject_id, promotion_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, subjectID, promotionID); err != nil {
		return fmt.Errorf("add subject promotion: %w", err)
	}
	return nil
}

// RemovePromotion unlinks a promotion from the subject's promotion set.
func (r *SubjectRepository) RemovePromotion(ctx context.Context, subjectID, promotionID string) error {
	const query = `DELETE FROM subject_promotions WHERE subject_id = $1 AND promotion_id = $2`
	if _, err := r.db.ExecContext(ctx, query, subjectID, promotionID); err != nil {
		return fmt.Errorf("remove subject promotion: %w", err)
	}
	return nil
}

// Delete removes the subject, its promotion links and its assignment rows.
// Deleting a subject is the only path that removes StudentSubject rows.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM student_subjects WHERE subject_id = $1`, id); err != nil {
		return fmt.Errorf("delete subject assignments: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subject_promotions WHERE subject_id = $1`, id); err != nil {
		return fmt.Errorf("delete subject promotions: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
