package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type mockGradeRepo struct {
	grades     map[string]models.Grade
	categories []models.GradeCategory
	created    *models.Grade
	updated    *models.Grade
	deleted    []string
}

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	var list []models.Grade
	for _, g := range m.grades {
		if filter.StudentID != "" && g.StudentID != filter.StudentID {
			continue
		}
		if filter.SubjectID != "" && g.SubjectID != filter.SubjectID {
			continue
		}
		list = append(list, g)
	}
	return list, len(list), nil
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	if g, ok := m.grades[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = "new-grade"
	}
	if m.grades == nil {
		m.grades = make(map[string]models.Grade)
	}
	m.grades[grade.ID] = *grade
	m.created = grade
	return nil
}

func (m *mockGradeRepo) Update(ctx context.Context, grade *models.Grade) error {
	m.grades[grade.ID] = *grade
	m.updated = grade
	return nil
}

func (m *mockGradeRepo) Delete(ctx context.Context, id string) error {
	delete(m.grades, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockGradeRepo) ListCategories(ctx context.Context, subjectID string) ([]models.GradeCategory, error) {
	return m.categories, nil
}

func (m *mockGradeRepo) FindCategory(ctx context.Context, id string) (*models.GradeCategory, error) {
	for _, c := range m.categories {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) CreateCategory(ctx context.Context, category *models.GradeCategory) error {
	if category.ID == "" {
		category.ID = "new-category"
	}
	m.categories = append(m.categories, *category)
	return nil
}

type mockGradeSubjectRepo struct {
	subjects map[string]*models.SubjectDetail
}

func (m *mockGradeSubjectRepo) FindByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	if s, ok := m.subjects[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func gradeWithCategory(id, categoryID string, score, max float64) models.Grade {
	g := models.Grade{ID: id, StudentID: "s1", SubjectID: "sub1", TeacherID: "t1", Score: score, MaxScore: max}
	if categoryID != "" {
		g.CategoryID = &categoryID
	}
	return g
}

func newTestGradeService(grades *mockGradeRepo, subjects *mockGradeSubjectRepo) *GradeService {
	if subjects == nil {
		subjects = &mockGradeSubjectRepo{subjects: map[string]*models.SubjectDetail{
			"sub1": {Subject: models.Subject{ID: "sub1", TeacherID: "t1"}},
		}}
	}
	return NewGradeService(grades, subjects, nil)
}

func TestRecordGradeRejectsForeignTeacher(t *testing.T) {
	svc := newTestGradeService(&mockGradeRepo{}, nil)

	_, err := svc.Record(context.Background(), "other-teacher", false, RecordGradeRequest{
		StudentID: "s1", SubjectID: "sub1", Title: "Quiz 1", Score: 8, MaxScore: 10,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestRecordGradeAdminBypassesOwnership(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newTestGradeService(repo, nil)

	grade, err := svc.Record(context.Background(), "admin-1", true, RecordGradeRequest{
		StudentID: "s1", SubjectID: "sub1", Title: "Quiz 1", Score: 8, MaxScore: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", grade.TeacherID)
	assert.NotNil(t, repo.created)
}

func TestRecordGradeRejectsScoreAboveMax(t *testing.T) {
	svc := newTestGradeService(&mockGradeRepo{}, nil)

	_, err := svc.Record(context.Background(), "t1", false, RecordGradeRequest{
		StudentID: "s1", SubjectID: "sub1", Title: "Quiz 1", Score: 11, MaxScore: 10,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestRecordGradeRejectsCategoryOfOtherSubject(t *testing.T) {
	repo := &mockGradeRepo{categories: []models.GradeCategory{{ID: "c1", SubjectID: "sub2", Weight: 50}}}
	svc := newTestGradeService(repo, nil)

	_, err := svc.Record(context.Background(), "t1", false, RecordGradeRequest{
		StudentID: "s1", SubjectID: "sub1", CategoryID: "c1", Title: "Quiz 1", Score: 8, MaxScore: 10,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestCreateCategoryRejectsWeightOverflow(t *testing.T) {
	repo := &mockGradeRepo{categories: []models.GradeCategory{{ID: "c1", SubjectID: "sub1", Weight: 70}}}
	svc := newTestGradeService(repo, nil)

	_, err := svc.CreateCategory(context.Background(), "t1", false, CreateGradeCategoryRequest{
		SubjectID: "sub1", Name: "Exams", Weight: 40,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidWeights.Code))
}

func TestSubjectStatsPlainAverage(t *testing.T) {
	repo := &mockGradeRepo{grades: map[string]models.Grade{
		"g1": gradeWithCategory("g1", "", 8, 10),
		"g2": gradeWithCategory("g2", "", 6, 10),
	}}
	svc := newTestGradeService(repo, nil)

	stats, err := svc.SubjectStats(context.Background(), "s1", "sub1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.GradeCount)
	assert.InDelta(t, 70, stats.Average, 0.001)
	assert.Nil(t, stats.WeightedAverage)
}

func TestSubjectStatsWeightedAverage(t *testing.T) {
	repo := &mockGradeRepo{
		grades: map[string]models.Grade{
			"g1": gradeWithCategory("g1", "c1", 8, 10),
			"g2": gradeWithCategory("g2", "c2", 6, 10),
		},
		categories: []models.GradeCategory{
			{ID: "c1", SubjectID: "sub1", Weight: 60},
			{ID: "c2", SubjectID: "sub1", Weight: 40},
		},
	}
	svc := newTestGradeService(repo, nil)

	stats, err := svc.SubjectStats(context.Background(), "s1", "sub1")
	require.NoError(t, err)
	require.NotNil(t, stats.WeightedAverage)
	// 80 * 0.6 + 60 * 0.4
	assert.InDelta(t, 72, *stats.WeightedAverage, 0.001)
}

func TestSubjectStatsNoWeightedAverageWhenWeightsIncomplete(t *testing.T) {
	repo := &mockGradeRepo{
		grades: map[string]models.Grade{
			"g1": gradeWithCategory("g1", "c1", 8, 10),
		},
		categories: []models.GradeCategory{
			{ID: "c1", SubjectID: "sub1", Weight: 60},
		},
	}
	svc := newTestGradeService(repo, nil)

	stats, err := svc.SubjectStats(context.Background(), "s1", "sub1")
	require.NoError(t, err)
	assert.Nil(t, stats.WeightedAverage)
}

func TestSubjectStatsNoWeightedAverageWithUncategorisedGrade(t *testing.T) {
	repo := &mockGradeRepo{
		grades: map[string]models.Grade{
			"g1": gradeWithCategory("g1", "c1", 8, 10),
			"g2": gradeWithCategory("g2", "", 6, 10),
		},
		categories: []models.GradeCategory{
			{ID: "c1", SubjectID: "sub1", Weight: 100},
		},
	}
	svc := newTestGradeService(repo, nil)

	stats, err := svc.SubjectStats(context.Background(), "s1", "sub1")
	require.NoError(t, err)
	assert.Nil(t, stats.WeightedAverage)
}

func TestUpdateGradeKeepsOwnership(t *testing.T) {
	repo := &mockGradeRepo{grades: map[string]models.Grade{
		"g1": gradeWithCategory("g1", "", 8, 10),
	}}
	svc := newTestGradeService(repo, nil)

	_, err := svc.Update(context.Background(), "other-teacher", false, "g1", UpdateGradeRequest{Title: "Quiz 1", Score: 9, MaxScore: 10})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	grade, err := svc.Update(context.Background(), "t1", false, "g1", UpdateGradeRequest{Title: "Quiz 1", Score: 9, MaxScore: 10})
	require.NoError(t, err)
	assert.Equal(t, 9.0, grade.Score)
}
