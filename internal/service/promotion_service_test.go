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

type mockPromotionRepo struct {
	promotions map[string]models.Promotion
	detached   []string
	deleted    []string
}

func (m *mockPromotionRepo) List(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error) {
	var list []models.Promotion
	for _, p := range m.promotions {
		list = append(list, p)
	}
	return list, len(list), nil
}

func (m *mockPromotionRepo) FindByID(ctx context.Context, id string) (*models.Promotion, error) {
	if p, ok := m.promotions[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPromotionRepo) Create(ctx context.Context, promotion *models.Promotion) error {
	if promotion.ID == "" {
		promotion.ID = "new-promotion"
	}
	if m.promotions == nil {
		m.promotions = make(map[string]models.Promotion)
	}
	m.promotions[promotion.ID] = *promotion
	return nil
}

func (m *mockPromotionRepo) Update(ctx context.Context, promotion *models.Promotion) error {
	m.promotions[promotion.ID] = *promotion
	return nil
}

func (m *mockPromotionRepo) Delete(ctx context.Context, id string) error {
	delete(m.promotions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockPromotionRepo) DetachFromSubjects(ctx context.Context, promotionID string) error {
	m.detached = append(m.detached, promotionID)
	return nil
}

type mockPromotionStudentRepo struct {
	removed int64
	calls   []string
}

func (m *mockPromotionStudentRepo) DeleteByPromotion(ctx context.Context, promotionID string) (int64, error) {
	m.calls = append(m.calls, promotionID)
	return m.removed, nil
}

func TestPromotionCreateValidatesTurn(t *testing.T) {
	svc := NewPromotionService(&mockPromotionRepo{}, &mockPromotionStudentRepo{}, nil)

	_, err := svc.Create(context.Background(), CreatePromotionRequest{Name: "2026 X", Turn: "NIGHT", GraduationYear: 2026})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	promotion, err := svc.Create(context.Background(), CreatePromotionRequest{Name: "2026 AM", Turn: models.TurnMorning, GraduationYear: 2026})
	require.NoError(t, err)
	assert.Equal(t, models.TurnMorning, promotion.Turn)
}

func TestPromotionDeleteCascade(t *testing.T) {
	repo := &mockPromotionRepo{promotions: map[string]models.Promotion{
		"p1": {ID: "p1", Name: "2026 AM", Turn: models.TurnMorning, GraduationYear: 2026},
	}}
	students := &mockPromotionStudentRepo{removed: 23}
	svc := NewPromotionService(repo, students, nil)

	summary, err := svc.Delete(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", summary.PromotionID)
	assert.Equal(t, int64(23), summary.StudentsRemoved)
	assert.Equal(t, []string{"p1"}, repo.detached)
	assert.Equal(t, []string{"p1"}, students.calls)
	assert.Equal(t, []string{"p1"}, repo.deleted)
}

func TestPromotionDeleteUnknownID(t *testing.T) {
	svc := NewPromotionService(&mockPromotionRepo{}, &mockPromotionStudentRepo{}, nil)

	_, err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestPromotionUpdate(t *testing.T) {
	repo := &mockPromotionRepo{promotions: map[string]models.Promotion{
		"p1": {ID: "p1", Name: "2026 AM", Turn: models.TurnMorning, GraduationYear: 2026},
	}}
	svc := NewPromotionService(repo, &mockPromotionStudentRepo{}, nil)

	promotion, err := svc.Update(context.Background(), "p1", UpdatePromotionRequest{Name: "2026 PM", Turn: models.TurnAfternoon, GraduationYear: 2026})
	require.NoError(t, err)
	assert.Equal(t, models.TurnAfternoon, promotion.Turn)
	assert.Equal(t, "2026 PM", repo.promotions["p1"].Name)
}
