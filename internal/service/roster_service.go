package service

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/repository"
	"github.com/motta-superate/grades-api/pkg/config"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type rosterStudentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

type rosterPromotionRepository interface {
	List(ctx context.Context, filter models.PromotionFilter) ([]models.Promotion, int, error)
}

type rosterSubjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error)
}

type rosterTeacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
}

type rosterCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// sessionRefresher re-establishes the data store session when a read is
// rejected with a permission error. Bulk account creation can invalidate the
// session that loaded the roster.
type sessionRefresher interface {
	RefreshSession(ctx context.Context) error
}

// StudentReloadResult is the outcome of a roster reload. Stale means every
// retry failed and the returned snapshot is the previous cached one; the
// mutation that triggered the reload still succeeded.
type StudentReloadResult struct {
	Students []models.StudentDetail `json:"students"`
	Stale    bool                   `json:"stale"`
}

// RosterService is the single store for the collection snapshots the UI
// lists: promotions, subjects, teachers and students. Snapshots are cached
// whole and refreshed explicitly after mutations.
type RosterService struct {
	students   rosterStudentRepository
	promotions rosterPromotionRepository
	subjects   rosterSubjectRepository
	teachers   rosterTeacherRepository
	cache      rosterCache
	refresher  sessionRefresher
	cfg        config.RosterConfig
	logger     *zap.Logger

	sleep func(time.Duration)
}

// NewRosterService constructs a RosterService.
func NewRosterService(
	students rosterStudentRepository,
	promotions rosterPromotionRepository,
	subjects rosterSubjectRepository,
	teachers rosterTeacherRepository,
	cache rosterCache,
	refresher sessionRefresher,
	cfg config.RosterConfig,
	logger *zap.Logger,
) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		students:   students,
		promotions: promotions,
		subjects:   subjects,
		teachers:   teachers,
		cache:      cache,
		refresher:  refresher,
		cfg:        cfg,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

func rosterFilterPageSize() int {
	// Snapshots are whole-collection; the repository caps page size at 100.
	return 100
}

// Students returns the cached student snapshot, loading it on a miss.
func (s *RosterService) Students(ctx context.Context) ([]models.StudentDetail, error) {
	var cached []models.StudentDetail
	if err := s.cache.Get(ctx, repository.CacheKeyStudents, &cached); err == nil {
		return cached, nil
	}
	return s.loadStudents(ctx)
}

// Promotions returns the cached promotion snapshot, loading it on a miss.
func (s *RosterService) Promotions(ctx context.Context) ([]models.Promotion, error) {
	var cached []models.Promotion
	if err := s.cache.Get(ctx, repository.CacheKeyPromotions, &cached); err == nil {
		return cached, nil
	}
	promotions, _, err := s.promotions.List(ctx, models.PromotionFilter{PageSize: rosterFilterPageSize()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotions")
	}
	s.store(ctx, repository.CacheKeyPromotions, promotions)
	return promotions, nil
}

// Subjects returns the cached subject snapshot, loading it on a miss.
func (s *RosterService) Subjects(ctx context.Context) ([]models.SubjectDetail, error) {
	var cached []models.SubjectDetail
	if err := s.cache.Get(ctx, repository.CacheKeySubjects, &cached); err == nil {
		return cached, nil
	}
	subjects, _, err := s.subjects.List(ctx, models.SubjectFilter{PageSize: rosterFilterPageSize()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	s.store(ctx, repository.CacheKeySubjects, subjects)
	return subjects, nil
}

// Teachers returns the cached teacher snapshot, loading it on a miss.
func (s *RosterService) Teachers(ctx context.Context) ([]models.Teacher, error) {
	var cached []models.Teacher
	if err := s.cache.Get(ctx, repository.CacheKeyTeachers, &cached); err == nil {
		return cached, nil
	}
	teachers, _, err := s.teachers.List(ctx, models.TeacherFilter{PageSize: rosterFilterPageSize()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	s.store(ctx, repository.CacheKeyTeachers, teachers)
	return teachers, nil
}

// ReloadStudents refreshes the student snapshot after a mutation. Permission
// errors get one retry after a session refresh and one more after a fixed
// delay, bounded by maxRetries; when retries are exhausted the previous
// cached snapshot is returned marked stale instead of an error, because the
// mutation that triggered the reload already succeeded.
func (s *RosterService) ReloadStudents(ctx context.Context, maxRetries int) (*StudentReloadResult, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	students, err := s.loadStudents(ctx)
	for attempt := 0; err != nil && attempt < maxRetries; attempt++ {
		if !appErrors.HasCode(err, appErrors.ErrPermissionDenied.Code) {
			return nil, err
		}
		if attempt == 0 && s.refresher != nil {
			if refreshErr := s.refresher.RefreshSession(ctx); refreshErr != nil {
				s.logger.Warn("session refresh failed during roster reload", zap.Error(refreshErr))
			}
		} else {
			s.sleep(s.cfg.ReloadRetryDelay)
		}
		students, err = s.loadStudents(ctx)
	}

	if err != nil {
		if !appErrors.HasCode(err, appErrors.ErrPermissionDenied.Code) {
			return nil, err
		}
		s.logger.Warn("roster reload exhausted retries, serving stale snapshot", zap.Error(err))
		var cached []models.StudentDetail
		if cacheErr := s.cache.Get(ctx, repository.CacheKeyStudents, &cached); cacheErr != nil {
			cached = nil
		}
		return &StudentReloadResult{Students: cached, Stale: true}, nil
	}

	return &StudentReloadResult{Students: students}, nil
}

// ReloadAll refreshes every collection snapshot. Used on startup and after
// mutations that touch more than the student list.
func (s *RosterService) ReloadAll(ctx context.Context) error {
	if err := s.cache.Delete(ctx,
		repository.CacheKeyPromotions,
		repository.CacheKeySubjects,
		repository.CacheKeyTeachers,
		repository.CacheKeyStudents,
	); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.Error(err))
	}
	if _, err := s.Promotions(ctx); err != nil {
		return err
	}
	if _, err := s.Subjects(ctx); err != nil {
		return err
	}
	if _, err := s.Teachers(ctx); err != nil {
		return err
	}
	if _, err := s.loadStudents(ctx); err != nil {
		return err
	}
	return nil
}

// Invalidate drops the given snapshots so the next read reloads them.
func (s *RosterService) Invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate roster cache", zap.Error(err))
	}
}

func (s *RosterService) loadStudents(ctx context.Context) ([]models.StudentDetail, error) {
	students, _, err := s.students.List(ctx, models.StudentFilter{PageSize: rosterFilterPageSize()})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42501" {
			return nil, appErrors.Wrap(err, appErrors.ErrPermissionDenied.Code, appErrors.ErrPermissionDenied.Status, appErrors.ErrPermissionDenied.Message)
		}
		if appErrors.HasCode(err, appErrors.ErrPermissionDenied.Code) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	s.store(ctx, repository.CacheKeyStudents, students)
	return students, nil
}

func (s *RosterService) store(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache roster snapshot", zap.String("key", key), zap.Error(err))
	}
}
