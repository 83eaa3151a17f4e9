package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type promotionRepository interface {
	List(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error)
	FindByID(ctx context.Context, id string) (*models.Promotion, error)
	Create(ctx context.Context, promotion *models.Promotion) error
	Update(ctx context.Context, promotion *models.Promotion) error
	Delete(ctx context.Context, id string) error
	DetachFromSubjects(ctx context.Context, promotionID string) error
}

type promotionStudentRepository interface {
	DeleteByPromotion(ctx context.Context, promotionID string) (int64, error)
}

// CreatePromotionRequest is the payload for creating a promotion.
type CreatePromotionRequest struct {
	Name           string               `json:"name" validate:"required"`
	Turn           models.PromotionTurn `json:"turn" validate:"required,oneof=AM PM"`
	GraduationYear int                  `json:"graduation_year" validate:"required,gte=2000,lte=2100"`
}

// UpdatePromotionRequest is the payload for updating a promotion.
type UpdatePromotionRequest struct {
	Name           string               `json:"name" validate:"required"`
	Turn           models.PromotionTurn `json:"turn" validate:"required,oneof=AM PM"`
	GraduationYear int                  `json:"graduation_year" validate:"required,gte=2000,lte=2100"`
}

// PromotionDeleteSummary reports what the delete cascade removed. Assignment
// rows and student identities are not part of the cascade and stay behind.
type PromotionDeleteSummary struct {
	PromotionID     string `json:"promotion_id"`
	StudentsRemoved int64  `json:"students_removed"`
}

// PromotionService manages promotion CRUD and the delete cascade.
type PromotionService struct {
	promotions promotionRepository
	students   promotionStudentRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewPromotionService constructs a PromotionService.
func NewPromotionService(promotions promotionRepository, students promotionStudentRepository, logger *zap.Logger) *PromotionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotionService{
		promotions: promotions,
		students:   students,
		validator:  validator.New(),
		logger:     logger,
	}
}

// List returns promotions matching the filter.
func (s *PromotionService) List(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error) {
	promotions, total, err := s.promotions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list promotions")
	}
	return promotions, total, nil
}

// Get returns a promotion by ID.
func (s *PromotionService) Get(ctx context.Context, id string) (*models.Promotion, error) {
	promotion, err := s.promotions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "promotion not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion")
	}
	return promotion, nil
}

// Create registers a new promotion.
func (s *PromotionService) Create(ctx context.Context, req CreatePromotionRequest) (*models.Promotion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	promotion := &models.Promotion{
		Name:           req.Name,
		Turn:           req.Turn,
		GraduationYear: req.GraduationYear,
	}
	if err := s.promotions.Create(ctx, promotion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create promotion")
	}
	return promotion, nil
}

// Update modifies an existing promotion.
func (s *PromotionService) Update(ctx context.Context, id string, req UpdatePromotionRequest) (*models.Promotion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	promotion, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	promotion.Name = req.Name
	promotion.Turn = req.Turn
	promotion.GraduationYear = req.GraduationYear
	if err := s.promotions.Update(ctx, promotion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update promotion")
	}
	return promotion, nil
}

// Delete removes a promotion with its cascade: the promotion is detached
// from every subject's promotion set and its student profiles are deleted.
// The cascade deliberately stops there; assignment rows and the students'
// identities are left behind and need administrative cleanup.
func (s *PromotionService) Delete(ctx context.Context, id string) (*PromotionDeleteSummary, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	if err := s.promotions.DetachFromSubjects(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detach promotion from subjects")
	}

	removed, err := s.students.DeleteByPromotion(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete promotion students")
	}

	if err := s.promotions.Delete(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete promotion")
	}

	s.logger.Info("promotion deleted",
		zap.String("promotion_id", id),
		zap.Int64("students_removed", removed),
	)
	return &PromotionDeleteSummary{PromotionID: id, StudentsRemoved: removed}, nil
}
