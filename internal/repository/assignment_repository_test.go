package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/motta-superate/grades-api/internal/models"
)

func TestAssignmentRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(`INSERT INTO student_subjects`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assignment := &models.StudentSubject{StudentID: "s1", SubjectID: "sub1", PromotionID: "p1"}
	require.NoError(t, repo.Create(context.Background(), assignment))
	require.NotEmpty(t, assignment.ID)
	require.False(t, assignment.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreateAllowsDuplicates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(`INSERT INTO student_subjects`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO student_subjects`).WillReturnResult(sqlmock.NewResult(0, 1))

	first := &models.StudentSubject{StudentID: "s1", SubjectID: "sub1", PromotionID: "p1"}
	second := &models.StudentSubject{StudentID: "s1", SubjectID: "sub1", PromotionID: "p1"}
	require.NoError(t, repo.Create(context.Background(), first))
	require.NoError(t, repo.Create(context.Background(), second))
	require.NotEqual(t, first.ID, second.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	subjectName := "Algebra"
	rows := sqlmock.NewRows([]string{"id", "student_id", "subject_id", "promotion_id", "created_at", "subject_name"}).
		AddRow("a1", "s1", "sub1", "p1", time.Now(), subjectName)
	mock.ExpectQuery(`SELECT ss\.id, ss\.student_id`).
		WithArgs("s1").
		WillReturnRows(rows)

	assignments, err := repo.ListByStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.NotNil(t, assignments[0].SubjectName)
	require.Equal(t, "Algebra", *assignments[0].SubjectName)
	require.NoError(t, mock.ExpectationsWereMet())
}
