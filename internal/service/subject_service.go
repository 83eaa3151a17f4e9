package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	Create(ctx context.Context, subject *models.Subject, promotionIDs []string) error
	Update(ctx context.Context, subject *models.Subject) error
	AddPromotion(ctx context.Context, subjectID, promotionID string) error
	RemovePromotion(ctx context.Context, subjectID, promotionID string) error
	Delete(ctx context.Context, id string) error
}

type subjectTeacherRepository interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type subjectPromotionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Promotion, error)
}

// CreateSubjectRequest is the payload for creating a subject.
type CreateSubjectRequest struct {
	Name         string   `json:"name" validate:"required"`
	TeacherID    string   `json:"teacher_id" validate:"required"`
	AcademicYear string   `json:"academic_year" validate:"required"`
	Semester     int      `json:"semester" validate:"required,oneof=1 2"`
	PromotionIDs []string `json:"promotion_ids"`
}

// UpdateSubjectRequest is the payload for updating a subject.
type UpdateSubjectRequest struct {
	Name         string `json:"name" validate:"required"`
	TeacherID    string `json:"teacher_id" validate:"required"`
	AcademicYear string `json:"academic_year" validate:"required"`
	Semester     int    `json:"semester" validate:"required,oneof=1 2"`
}

// SubjectService manages subjects and their promotion sets.
type SubjectService struct {
	subjects   subjectRepository
	teachers   subjectTeacherRepository
	promotions subjectPromotionRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSubjectService constructs a SubjectService.
func NewSubjectService(subjects subjectRepository, teachers subjectTeacherRepository, promotions subjectPromotionRepository, logger *zap.Logger) *SubjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{
		subjects:   subjects,
		teachers:   teachers,
		promotions: promotions,
		validator:  validator.New(),
		logger:     logger,
	}
}

// List returns subjects matching the filter.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	subjects, total, err := s.subjects.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, total, nil
}

// Get returns a subject by ID with its promotion set.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.SubjectDetail, error) {
	subject, err := s.subjects.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create registers a new subject with its initial promotion set. The teacher
// and every referenced promotion must exist.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.SubjectDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	if _, err := s.teachers.FindByID(ctx, req.TeacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher")
	}
	for _, promotionID := range req.PromotionIDs {
		if _, err := s.promotions.FindByID(ctx, promotionID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrValidation, "promotion not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check promotion")
		}
	}

	subject := &models.Subject{
		Name:         req.Name,
		TeacherID:    req.TeacherID,
		AcademicYear: req.AcademicYear,
		Semester:     req.Semester,
	}
	if err := s.subjects.Create(ctx, subject, req.PromotionIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return s.Get(ctx, subject.ID)
}

// Update modifies an existing subject's own fields. The promotion set is
// managed through AddPromotion and RemovePromotion.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.SubjectDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	subject := detail.Subject
	subject.Name = req.Name
	subject.TeacherID = req.TeacherID
	subject.AcademicYear = req.AcademicYear
	subject.Semester = req.Semester
	if err := s.subjects.Update(ctx, &subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return s.Get(ctx, id)
}

// AddPromotion links a promotion into the subject's promotion set. Students
// already enrolled in that promotion are not retroactively assigned; the set
// only matters for future enrollments.
func (s *SubjectService) AddPromotion(ctx context.Context, subjectID, promotionID string) error {
	if _, err := s.Get(ctx, subjectID); err != nil {
		return err
	}
	if _, err := s.promotions.FindByID(ctx, promotionID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "promotion not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check promotion")
	}
	if err := s.subjects.AddPromotion(ctx, subjectID, promotionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add promotion to subject")
	}
	return nil
}

// RemovePromotion unlinks a promotion from the subject's promotion set.
// Existing assignment rows from earlier enrollments stay in place.
func (s *SubjectService) RemovePromotion(ctx context.Context, subjectID, promotionID string) error {
	if _, err := s.Get(ctx, subjectID); err != nil {
		return err
	}
	if err := s.subjects.RemovePromotion(ctx, subjectID, promotionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove promotion from subject")
	}
	return nil
}

// Delete removes the subject together with its promotion links and every
// assignment row pointing at it.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.subjects.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.logger.Info("subject deleted", zap.String("subject_id", id))
	return nil
}
