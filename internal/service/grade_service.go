package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
	ListCategories(ctx context.Context, subjectID string) ([]models.GradeCategory, error)
	FindCategory(ctx context.Context, id string) (*models.GradeCategory, error)
	CreateCategory(ctx context.Context, category *models.GradeCategory) error
}

type gradeSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.SubjectDetail, error)
}

// RecordGradeRequest is the payload for recording a score. CategoryID is
// empty for simple grades.
type RecordGradeRequest struct {
	StudentID  string  `json:"student_id" validate:"required"`
	SubjectID  string  `json:"subject_id" validate:"required"`
	CategoryID string  `json:"category_id"`
	Title      string  `json:"title" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0"`
	MaxScore   float64 `json:"max_score" validate:"gt=0"`
}

// UpdateGradeRequest is the payload for correcting a recorded score.
type UpdateGradeRequest struct {
	Title    string  `json:"title" validate:"required"`
	Score    float64 `json:"score" validate:"gte=0"`
	MaxScore float64 `json:"max_score" validate:"gt=0"`
}

// CreateGradeCategoryRequest adds a weighted bucket to a subject.
type CreateGradeCategoryRequest struct {
	SubjectID string  `json:"subject_id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Weight    float64 `json:"weight" validate:"gt=0,lte=100"`
}

// GradeService manages grade entry and per-subject statistics.
type GradeService struct {
	grades    gradeRepository
	subjects  gradeSubjectRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs a GradeService.
func NewGradeService(grades gradeRepository, subjects gradeSubjectRepository, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:    grades,
		subjects:  subjects,
		validator: validator.New(),
		logger:    logger,
	}
}

// List returns grades matching the filter.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	grades, total, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, total, nil
}

// Record stores a new grade. actorID is the authenticated teacher; only the
// subject's own teacher (or an admin, signalled by admin=true) may record
// into it. Score cannot exceed the maximum.
func (s *GradeService) Record(ctx context.Context, actorID string, admin bool, req RecordGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Score > req.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score cannot exceed max score")
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if !admin && subject.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the subject's teacher can record grades")
	}

	grade := &models.Grade{
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		TeacherID: subject.TeacherID,
		Title:     req.Title,
		Score:     req.Score,
		MaxScore:  req.MaxScore,
	}
	if req.CategoryID != "" {
		category, err := s.grades.FindCategory(ctx, req.CategoryID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "grade category not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade category")
		}
		if category.SubjectID != req.SubjectID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "category belongs to a different subject")
		}
		grade.CategoryID = &category.ID
	}

	if err := s.grades.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	return grade, nil
}

// Update corrects an existing grade. Subject, student and category are
// fixed; only title and scores change.
func (s *GradeService) Update(ctx context.Context, actorID string, admin bool, gradeID string, req UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Score > req.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score cannot exceed max score")
	}

	grade, err := s.grades.FindByID(ctx, gradeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if !admin && grade.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the recording teacher can change this grade")
	}

	grade.Title = req.Title
	grade.Score = req.Score
	grade.MaxScore = req.MaxScore
	if err := s.grades.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	return grade, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, actorID string, admin bool, gradeID string) error {
	grade, err := s.grades.FindByID(ctx, gradeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if !admin && grade.TeacherID != actorID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the recording teacher can delete this grade")
	}
	if err := s.grades.Delete(ctx, gradeID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	return nil
}

// Categories returns the weighted buckets of a subject.
func (s *GradeService) Categories(ctx context.Context, subjectID string) ([]models.GradeCategory, error) {
	categories, err := s.grades.ListCategories(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade categories")
	}
	return categories, nil
}

// CreateCategory adds a weighted bucket. The new weight together with the
// existing ones must not push the subject past 100.
func (s *GradeService) CreateCategory(ctx context.Context, actorID string, admin bool, req CreateGradeCategoryRequest) (*models.GradeCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if !admin && subject.TeacherID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the subject's teacher can manage categories")
	}

	existing, err := s.grades.ListCategories(ctx, req.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade categories")
	}
	total := req.Weight
	for _, category := range existing {
		total += category.Weight
	}
	if total > 100 {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights, "category weights would exceed 100")
	}

	category := &models.GradeCategory{
		SubjectID: req.SubjectID,
		Name:      req.Name,
		Weight:    req.Weight,
	}
	if err := s.grades.CreateCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade category")
	}
	return category, nil
}

// SubjectStats summarises a student's standing in one subject. Average is
// the plain mean of score percentages. WeightedAverage is only reported when
// the subject's category weights sum to exactly 100 and every grade belongs
// to a category; otherwise it stays nil and callers fall back to Average.
func (s *GradeService) SubjectStats(ctx context.Context, studentID, subjectID string) (*models.SubjectStats, error) {
	grades, _, err := s.grades.List(ctx, models.GradeFilter{StudentID: studentID, SubjectID: subjectID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}

	stats := &models.SubjectStats{SubjectID: subjectID, GradeCount: len(grades)}
	if len(grades) == 0 {
		return stats, nil
	}

	var sum float64
	for _, grade := range grades {
		sum += grade.Score / grade.MaxScore * 100
	}
	stats.Average = sum / float64(len(grades))

	categories, err := s.grades.ListCategories(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade categories")
	}
	if weighted, ok := weightedAverage(grades, categories); ok {
		stats.WeightedAverage = &weighted
	}
	return stats, nil
}

func weightedAverage(grades []models.Grade, categories []models.GradeCategory) (float64, bool) {
	if len(categories) == 0 {
		return 0, false
	}
	var weightSum float64
	for _, category := range categories {
		weightSum += category.Weight
	}
	if weightSum != 100 {
		return 0, false
	}

	byCategory := make(map[string][]models.Grade)
	for _, grade := range grades {
		if grade.CategoryID == nil {
			// An uncategorised grade makes the weighted view misleading.
			return 0, false
		}
		byCategory[*grade.CategoryID] = append(byCategory[*grade.CategoryID], grade)
	}

	var weighted float64
	for _, category := range categories {
		bucket := byCategory[category.ID]
		if len(bucket) == 0 {
			continue
		}
		var sum float64
		for _, grade := range bucket {
			sum += grade.Score / grade.MaxScore * 100
		}
		weighted += (sum / float64(len(bucket))) * category.Weight / 100
	}
	return weighted, true
}
