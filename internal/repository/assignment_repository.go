package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/motta-superate/grades-api/internal/models"
)

// AssignmentRepository manages StudentSubject rows. Inserts are issued one
// at a time by design: the fan-out contract is strictly sequential and never
// batched.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a single assignment row. There is no uniqueness check; a
// repeated fan-out for the same student duplicates rows.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.StudentSubject) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_subjects (id, student_id, subject_id, promotion_id, created_at) VALUES (:id, :student_id, :subject_id, :promotion_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// ListByStudent returns all assignment rows of a student with subject names.
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentSubjectDetail, error) {
	const query = `SELECT ss.id, ss.student_id, ss.subject_id, ss.promotion_id, ss.created_at, s.name AS subject_name
        FROM student_subjects ss
        LEFT JOIN subjects s ON s.id = ss.subject_id
        WHERE ss.student_id = $1
        ORDER BY ss.created_at ASC`
	var assignments []models.StudentSubjectDetail
	if err := r.db.SelectContext(ctx, &assignments, query, studentID); err != nil {
		return nil, fmt.Errorf("list assignments by student: %w", err)
	}
	return assignments, nil
}

// ListStudentIDsBySubject returns the IDs of students assigned to a subject.
func (r *AssignmentRepository) ListStudentIDsBySubject(ctx context.Context, subjectID string) ([]string, error) {
	const query = `SELECT DISTINCT student_id FROM student_subjects WHERE subject_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, subjectID); err != nil {
		return nil, fmt.Errorf("list student ids by subject: %w", err)
	}
	return ids, nil
}

// CountByStudent returns the number of assignment rows for a student.
func (r *AssignmentRepository) CountByStudent(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_subjects WHERE student_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, studentID); err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return total, nil
}
