package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

type studentAssignmentRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentSubjectDetail, error)
}

// UpdateStudentRequest is the payload for updating a student profile.
// Credentials are not editable here; the email stays whatever enrollment
// generated or the operator overrode at creation.
type UpdateStudentRequest struct {
	FirstName   string              `json:"first_name" validate:"required"`
	LastName    string              `json:"last_name" validate:"required"`
	PromotionID string              `json:"promotion_id" validate:"required"`
	Level       models.StudentLevel `json:"level" validate:"required,oneof=FRESHMAN JUNIOR SENIOR"`
	Active      *bool               `json:"active"`
}

// StudentService covers reads and profile edits. Creation goes through
// EnrollmentService, which owns credentials and the subject fan-out.
type StudentService struct {
	students    studentRepository
	assignments studentAssignmentRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(students studentRepository, assignments studentAssignmentRepository, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		students:    students,
		assignments: assignments,
		validator:   validator.New(),
		logger:      logger,
	}
}

// List returns students matching the filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, total, nil
}

// Get returns a student profile by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Assignments returns the student's assignment rows with subject names.
// Duplicates from repeated fan-outs show up as-is.
func (s *StudentService) Assignments(ctx context.Context, studentID string) ([]models.StudentSubjectDetail, error) {
	if _, err := s.Get(ctx, studentID); err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Update modifies a student profile. Moving a student to another promotion
// does not touch existing assignment rows and does not trigger a fan-out.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	student := detail.Student
	student.FirstName = req.FirstName
	student.LastName = req.LastName
	student.PromotionID = req.PromotionID
	student.Level = req.Level
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := s.students.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.Get(ctx, id)
}

// Deactivate marks a student profile inactive.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.students.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}
