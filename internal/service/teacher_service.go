package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/pkg/config"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Deactivate(ctx context.Context, id string) error
}

// CreateTeacherRequest is the payload for creating a teacher. Unlike student
// enrollment the email is explicit; only the passcode is generated.
type CreateTeacherRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Specialty string `json:"specialty"`
}

// UpdateTeacherRequest is the payload for updating a teacher profile.
type UpdateTeacherRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Specialty string `json:"specialty"`
	Active    *bool  `json:"active"`
}

// CreateTeacherResult pairs the new profile with the generated passcode for
// distribution.
type CreateTeacherResult struct {
	Teacher  *models.Teacher `json:"teacher"`
	Passcode string          `json:"passcode"`
}

// TeacherService manages teacher profiles and their accounts.
type TeacherService struct {
	teachers  teacherRepository
	identity  identityProvider
	cfg       config.EnrollmentConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(teachers teacherRepository, identity identityProvider, cfg config.EnrollmentConfig, logger *zap.Logger) *TeacherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{
		teachers:  teachers,
		identity:  identity,
		cfg:       cfg,
		validator: validator.New(),
		logger:    logger,
	}
}

// List returns teachers matching the filter.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	teachers, total, err := s.teachers.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, total, nil
}

// Get returns a teacher profile by ID.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a teacher account plus profile. Same two-write pairing as
// student enrollment: account first, profile second, no transaction across
// the two.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*CreateTeacherResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	passcode, err := GeneratePasscode(s.cfg.PasscodeLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate passcode")
	}

	fullName := strings.TrimSpace(req.FirstName + " " + req.LastName)
	identity, err := s.identity.CreateIdentity(ctx, req.Email, passcode, fullName, models.RoleTeacher)
	if err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		ID:        identity.ID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     identity.Email,
		Specialty: req.Specialty,
		Active:    true,
	}
	if err := s.teachers.Create(ctx, teacher); err != nil {
		s.logger.Error("account created without teacher profile",
			zap.String("user_id", identity.ID),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			"account was created but the teacher profile could not be saved")
	}

	s.logger.Info("teacher created", zap.String("teacher_id", teacher.ID))
	return &CreateTeacherResult{Teacher: teacher, Passcode: passcode}, nil
}

// Update modifies an existing teacher profile.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	teacher.FirstName = req.FirstName
	teacher.LastName = req.LastName
	teacher.Specialty = req.Specialty
	if req.Active != nil {
		teacher.Active = *req.Active
	}
	if err := s.teachers.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// Deactivate marks a teacher profile inactive. The identity itself stays
// active; blocking sign-in requires deleting the account.
func (s *TeacherService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.teachers.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate teacher")
	}
	return nil
}
