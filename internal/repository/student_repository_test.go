package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/motta-superate/grades-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	promotionName := "2026 AM"
	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "passcode", "promotion_id", "level", "active", "created_at", "updated_at", "promotion_name"}).
		AddRow("s1", "Ana", "Gómez", "ana.gomez2026@motta.superate.org.pa", "ABCD1234", "p1", models.LevelFreshman, true, time.Now(), time.Now(), promotionName)
	mock.ExpectQuery(`SELECT s\.id, s\.first_name`).
		WithArgs("s1").
		WillReturnRows(rows)

	detail, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "Ana", detail.FirstName)
	require.NotNil(t, detail.PromotionName)
	require.Equal(t, "2026 AM", *detail.PromotionName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "passcode", "promotion_id", "level", "active", "created_at", "updated_at", "promotion_name"}).
		AddRow("s1", "Ana", "Gómez", "ana@x.org", "ABCD1234", "p1", models.LevelFreshman, true, time.Now(), time.Now(), nil)
	mock.ExpectQuery(`SELECT s\.id, s\.first_name`).
		WithArgs("p1").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT s\.id\)`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{PromotionID: "p1"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(`INSERT INTO students`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	student := &models.Student{
		ID:          "s1",
		FirstName:   "Ana",
		LastName:    "Gómez",
		Email:       "ana@x.org",
		Passcode:    "ABCD1234",
		PromotionID: "p1",
		Level:       models.LevelFreshman,
		Active:      true,
	}
	require.NoError(t, repo.Create(context.Background(), student))
	require.False(t, student.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteByPromotion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(`DELETE FROM students WHERE promotion_id = \$1`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 23))

	removed, err := repo.DeleteByPromotion(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, int64(23), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}
