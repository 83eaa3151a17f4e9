package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/service"
	"github.com/motta-superate/grades-api/pkg/config"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type stubStudentRepo struct {
	students    map[string]models.StudentDetail
	listErr     error
	deactivated []string
}

func (s *stubStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	var out []models.StudentDetail
	for _, d := range s.students {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (s *stubStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if d, ok := s.students[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubStudentRepo) Update(ctx context.Context, student *models.Student) error {
	return nil
}

func (s *stubStudentRepo) Deactivate(ctx context.Context, id string) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

type stubAssignmentRepo struct{}

func (s *stubAssignmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.StudentSubjectDetail, error) {
	return nil, nil
}

type stubRosterCache struct{}

func (s *stubRosterCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (s *stubRosterCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (s *stubRosterCache) Delete(ctx context.Context, keys ...string) error {
	return nil
}

func newDeactivateTestHandler(listErr error) (*StudentHandler, *stubStudentRepo) {
	repo := &stubStudentRepo{
		students: map[string]models.StudentDetail{
			"s1": {Student: models.Student{ID: "s1", FirstName: "Ana", LastName: "Gómez", Active: true}},
		},
		listErr: listErr,
	}
	students := service.NewStudentService(repo, &stubAssignmentRepo{}, nil)
	roster := service.NewRosterService(repo, nil, nil, nil, &stubRosterCache{}, nil, config.RosterConfig{}, nil)
	return NewStudentHandler(students, nil, roster, nil), repo
}

func performDeactivate(h *StudentHandler, id string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.DELETE("/students/:id", h.Deactivate)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/students/"+id, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestDeactivateRespondsNoContentWhenReloadIsFresh(t *testing.T) {
	h, repo := newDeactivateTestHandler(nil)

	w := performDeactivate(h, "s1")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, []string{"s1"}, repo.deactivated)
}

func TestDeactivateSurfacesStaleRosterWarning(t *testing.T) {
	h, repo := newDeactivateTestHandler(&pq.Error{Code: "42501"})

	w := performDeactivate(h, "s1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stale")
	assert.Equal(t, []string{"s1"}, repo.deactivated)
}
