package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/repository"
	"github.com/motta-superate/grades-api/pkg/config"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type mockRosterCache struct {
	data map[string][]byte
}

func newMockRosterCache() *mockRosterCache {
	return &mockRosterCache{data: make(map[string][]byte)}
}

func (m *mockRosterCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockRosterCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *mockRosterCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

type mockRosterStudentRepo struct {
	errs     []error
	students []models.StudentDetail
	calls    int
}

func (m *mockRosterStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, 0, err
		}
	}
	return m.students, len(m.students), nil
}

type mockRosterPromotionRepo struct{}

func (m *mockRosterPromotionRepo) List(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error) {
	return []models.Promotion{{ID: "p1", Name: "2026 AM"}}, 1, nil
}

type mockRosterSubjectRepo struct{}

func (m *mockRosterSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	return nil, 0, nil
}

type mockRosterTeacherRepo struct{}

func (m *mockRosterTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	return nil, 0, nil
}

type mockSessionRefresher struct {
	calls int
	err   error
}

func (m *mockSessionRefresher) RefreshSession(ctx context.Context) error {
	m.calls++
	return m.err
}

func permissionDeniedErr() error {
	return &pq.Error{Code: "42501", Message: "permission denied for table students"}
}

func newTestRosterService(students *mockRosterStudentRepo, cache *mockRosterCache, refresher *mockSessionRefresher) (*RosterService, *int) {
	cfg := config.RosterConfig{CacheTTL: 5 * time.Minute, ReloadRetryDelay: 3 * time.Second}
	svc := NewRosterService(students, &mockRosterPromotionRepo{}, &mockRosterSubjectRepo{}, &mockRosterTeacherRepo{}, cache, refresher, cfg, nil)
	sleeps := 0
	svc.sleep = func(time.Duration) { sleeps++ }
	return svc, &sleeps
}

func TestRosterStudentsServedFromCache(t *testing.T) {
	cache := newMockRosterCache()
	cached := []models.StudentDetail{{Student: models.Student{ID: "s1", FirstName: "Ana"}}}
	require.NoError(t, cache.Set(context.Background(), repository.CacheKeyStudents, cached, time.Minute))

	repo := &mockRosterStudentRepo{}
	svc, _ := newTestRosterService(repo, cache, &mockSessionRefresher{})

	students, err := svc.Students(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "s1", students[0].ID)
	assert.Zero(t, repo.calls)
}

func TestRosterStudentsCacheMissLoadsAndStores(t *testing.T) {
	cache := newMockRosterCache()
	repo := &mockRosterStudentRepo{students: []models.StudentDetail{{Student: models.Student{ID: "s1"}}}}
	svc, _ := newTestRosterService(repo, cache, &mockSessionRefresher{})

	students, err := svc.Students(context.Background())
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, repo.calls)
	assert.Contains(t, cache.data, repository.CacheKeyStudents)
}

func TestReloadStudentsRetriesAfterSessionRefresh(t *testing.T) {
	cache := newMockRosterCache()
	repo := &mockRosterStudentRepo{
		errs:     []error{permissionDeniedErr(), nil},
		students: []models.StudentDetail{{Student: models.Student{ID: "s1"}}},
	}
	refresher := &mockSessionRefresher{}
	svc, sleeps := newTestRosterService(repo, cache, refresher)

	result, err := svc.ReloadStudents(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Len(t, result.Students, 1)
	assert.Equal(t, 1, refresher.calls)
	assert.Zero(t, *sleeps)
	assert.Equal(t, 2, repo.calls)
}

func TestReloadStudentsSecondRetryWaitsFixedDelay(t *testing.T) {
	cache := newMockRosterCache()
	repo := &mockRosterStudentRepo{
		errs:     []error{permissionDeniedErr(), permissionDeniedErr(), nil},
		students: []models.StudentDetail{{Student: models.Student{ID: "s1"}}},
	}
	refresher := &mockSessionRefresher{}
	svc, sleeps := newTestRosterService(repo, cache, refresher)

	result, err := svc.ReloadStudents(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, result.Stale)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, 1, *sleeps)
	assert.Equal(t, 3, repo.calls)
}

func TestReloadStudentsExhaustedServesStaleSnapshot(t *testing.T) {
	cache := newMockRosterCache()
	stale := []models.StudentDetail{{Student: models.Student{ID: "old"}}}
	require.NoError(t, cache.Set(context.Background(), repository.CacheKeyStudents, stale, time.Minute))

	repo := &mockRosterStudentRepo{
		errs: []error{permissionDeniedErr(), permissionDeniedErr(), permissionDeniedErr()},
	}
	svc, _ := newTestRosterService(repo, cache, &mockSessionRefresher{})

	result, err := svc.ReloadStudents(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, result.Stale)
	require.Len(t, result.Students, 1)
	assert.Equal(t, "old", result.Students[0].ID)
}

func TestReloadStudentsOtherErrorsPropagate(t *testing.T) {
	cache := newMockRosterCache()
	repo := &mockRosterStudentRepo{errs: []error{errors.New("connection reset")}}
	svc, _ := newTestRosterService(repo, cache, &mockSessionRefresher{})

	_, err := svc.ReloadStudents(context.Background(), 2)
	require.Error(t, err)
	assert.False(t, appErrors.HasCode(err, appErrors.ErrPermissionDenied.Code))
	assert.Equal(t, 1, repo.calls)
}

func TestInvalidateDropsKeys(t *testing.T) {
	cache := newMockRosterCache()
	require.NoError(t, cache.Set(context.Background(), repository.CacheKeyPromotions, []models.Promotion{{ID: "p1"}}, time.Minute))
	svc, _ := newTestRosterService(&mockRosterStudentRepo{}, cache, &mockSessionRefresher{})

	svc.Invalidate(context.Background(), repository.CacheKeyPromotions)
	assert.NotContains(t, cache.data, repository.CacheKeyPromotions)
}
