package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/pkg/config"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/oplock"
)

type mockIdentityProvider struct {
	nextID    int
	failEmail string
	created   []models.User
}

func (m *mockIdentityProvider) CreateIdentity(ctx context.Context, email, secret, fullName string, role models.UserRole) (*models.User, error) {
	if email == m.failEmail {
		return nil, appErrors.Clone(appErrors.ErrEmailInUse, "")
	}
	m.nextID++
	user := models.User{ID: fmt.Sprintf("u%d", m.nextID), Email: email, FullName: fullName, Role: role, Active: true}
	m.created = append(m.created, user)
	return &user, nil
}

type mockStudentRepo struct {
	failEmail string
	created   []models.Student
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.Email == m.failEmail {
		return errors.New("insert failed")
	}
	m.created = append(m.created, *student)
	return nil
}

type mockPromotionReader struct {
	promotions map[string]*models.Promotion
}

func (m *mockPromotionReader) FindByID(ctx context.Context, id string) (*models.Promotion, error) {
	if p, ok := m.promotions[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockSubjectLister struct {
	subjects []models.Subject
}

func (m *mockSubjectLister) ListByPromotion(ctx context.Context, promotionID string) ([]models.Subject, error) {
	return m.subjects, nil
}

type mockAssignmentRepo struct {
	failSubject string
	created     []models.StudentSubject
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.StudentSubject) error {
	if assignment.SubjectID == m.failSubject {
		return errors.New("insert failed")
	}
	m.created = append(m.created, *assignment)
	return nil
}

func newTestEnrollmentService(identity *mockIdentityProvider, students *mockStudentRepo, promotions *mockPromotionReader, subjects *mockSubjectLister, assignments *mockAssignmentRepo) *EnrollmentService {
	cfg := config.EnrollmentConfig{
		EmailDomain:            "motta.superate.org.pa",
		FallbackGraduationYear: 2026,
		PasscodeLength:         8,
		BulkCreateDelay:        100 * time.Millisecond,
	}
	svc := NewEnrollmentService(students, promotions, subjects, assignments, identity, nil, cfg, nil)
	svc.sleep = func(time.Duration) {}
	return svc
}

func TestNormalizeStripsDiacriticsAndIsIdempotent(t *testing.T) {
	assert.Equal(t, "maria", Normalize("María"))
	assert.Equal(t, "perez", Normalize("Pérez"))
	assert.Equal(t, "jose", Normalize(" José! "))
	assert.Equal(t, "nunez3", Normalize("Núñez 3"))

	for _, input := range []string{"María", "O'Brien", "Ángel Ωmega", "already-clean"} {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestGenerateEmail(t *testing.T) {
	email := GenerateEmail("María", "Pérez", 2026, "motta.superate.org.pa")
	assert.Equal(t, "maria.perez2026@motta.superate.org.pa", email)
}

func TestGeneratePasscode(t *testing.T) {
	passcode, err := GeneratePasscode(8)
	require.NoError(t, err)
	assert.Len(t, passcode, 8)
	for _, r := range passcode {
		assert.Contains(t, passcodeAlphabet, string(r))
	}

	other, err := GeneratePasscode(8)
	require.NoError(t, err)
	assert.NotEqual(t, passcode, other)
}

func TestGeneratePasscodeCharacterSpreadIsEven(t *testing.T) {
	// A naive byte-mod pick over-represents the first 256%36 characters by
	// roughly 14%; the 6% tolerance is far outside random drift at this
	// sample size but well inside that skew.
	const samples = 400000
	code, err := GeneratePasscode(samples)
	require.NoError(t, err)

	counts := make(map[rune]int)
	for _, r := range code {
		counts[r]++
	}
	require.Len(t, counts, len(passcodeAlphabet))

	expected := float64(samples) / float64(len(passcodeAlphabet))
	for r, n := range counts {
		assert.InDeltaf(t, expected, float64(n), expected*0.06, "character %c over- or under-represented", r)
	}
}

func TestParseBulkLinesDropsMalformedLines(t *testing.T) {
	raw := "Ana, Gómez\n\nonly-one-field\nLuis , Castro , extra\n , ,\nMarta,Ríos"
	rows := parseBulkLines(raw)
	require.Len(t, rows, 3)
	assert.Equal(t, [2]string{"Ana", "Gómez"}, rows[0])
	assert.Equal(t, [2]string{"Luis", "Castro"}, rows[1])
	assert.Equal(t, [2]string{"Marta", "Ríos"}, rows[2])
}

func TestCreateStudentHappyPath(t *testing.T) {
	identity := &mockIdentityProvider{}
	students := &mockStudentRepo{}
	promotions := &mockPromotionReader{promotions: map[string]*models.Promotion{"p1": {ID: "p1", GraduationYear: 2027}}}
	subjects := &mockSubjectLister{subjects: []models.Subject{{ID: "sub1", Name: "Algebra"}, {ID: "sub2", Name: "Biology"}}}
	assignments := &mockAssignmentRepo{}
	svc := newTestEnrollmentService(identity, students, promotions, subjects, assignments)

	result, err := svc.CreateStudent(context.Background(), CreateStudentRequest{
		FirstName:   "María",
		LastName:    "Pérez",
		PromotionID: "p1",
		Level:       models.LevelFreshman,
	})
	require.NoError(t, err)
	assert.Equal(t, "maria.perez2027@motta.superate.org.pa", result.Student.Email)
	assert.Len(t, result.Student.Passcode, 8)
	assert.Empty(t, result.Warning)
	require.NotNil(t, result.Assignments)
	assert.Equal(t, 2, result.Assignments.Created)
	assert.Len(t, assignments.created, 2)
	require.Len(t, students.created, 1)
	assert.Equal(t, identity.created[0].ID, students.created[0].ID)
}

func TestCreateStudentUsesFallbackYearWhenPromotionMissing(t *testing.T) {
	identity := &mockIdentityProvider{}
	svc := newTestEnrollmentService(identity, &mockStudentRepo{}, &mockPromotionReader{}, &mockSubjectLister{}, &mockAssignmentRepo{})

	result, err := svc.CreateStudent(context.Background(), CreateStudentRequest{
		FirstName:   "Luis",
		LastName:    "Castro",
		PromotionID: "missing",
		Level:       models.LevelSenior,
	})
	require.NoError(t, err)
	assert.Equal(t, "luis.castro2026@motta.superate.org.pa", result.Student.Email)
}

func TestCreateStudentEmailOverride(t *testing.T) {
	identity := &mockIdentityProvider{}
	svc := newTestEnrollmentService(identity, &mockStudentRepo{}, &mockPromotionReader{}, &mockSubjectLister{}, &mockAssignmentRepo{})

	result, err := svc.CreateStudent(context.Background(), CreateStudentRequest{
		FirstName:   "Luis",
		LastName:    "Castro",
		Email:       "custom@motta.superate.org.pa",
		PromotionID: "p1",
		Level:       models.LevelJunior,
	})
	require.NoError(t, err)
	assert.Equal(t, "custom@motta.superate.org.pa", result.Student.Email)
}

func TestCreateStudentProfileFailureLeavesAccount(t *testing.T) {
	identity := &mockIdentityProvider{}
	students := &mockStudentRepo{failEmail: "luis.castro2026@motta.superate.org.pa"}
	svc := newTestEnrollmentService(identity, students, &mockPromotionReader{}, &mockSubjectLister{}, &mockAssignmentRepo{})

	_, err := svc.CreateStudent(context.Background(), CreateStudentRequest{
		FirstName:   "Luis",
		LastName:    "Castro",
		PromotionID: "p1",
		Level:       models.LevelJunior,
	})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "account was created")
	assert.Len(t, identity.created, 1)
}

func TestCreateStudentRejectsConcurrentRun(t *testing.T) {
	guard := oplock.New()
	cfg := config.EnrollmentConfig{FallbackGraduationYear: 2026, PasscodeLength: 8}
	svc := NewEnrollmentService(&mockStudentRepo{}, &mockPromotionReader{}, &mockSubjectLister{}, &mockAssignmentRepo{}, &mockIdentityProvider{}, guard, cfg, nil)

	release, ok := guard.TryAcquire("enrollment:create-student")
	require.True(t, ok)
	defer release()

	_, err := svc.CreateStudent(context.Background(), CreateStudentRequest{
		FirstName:   "Ana",
		LastName:    "Gómez",
		PromotionID: "p1",
		Level:       models.LevelFreshman,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrOperationInProgress.Code))
}

func TestAssignPromotionSubjectsAbortsAndSkips(t *testing.T) {
	subjects := &mockSubjectLister{subjects: []models.Subject{
		{ID: "sub1", Name: "Algebra"},
		{ID: "sub2", Name: "Biology"},
		{ID: "sub3", Name: "Chemistry"},
	}}
	assignments := &mockAssignmentRepo{failSubject: "sub2"}
	svc := newTestEnrollmentService(&mockIdentityProvider{}, &mockStudentRepo{}, &mockPromotionReader{}, subjects, assignments)

	report, err := svc.AssignPromotionSubjects(context.Background(), "s1", "p1")
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, `"Biology"`)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, AssignmentCreated, report.Steps[0].Status)
	assert.Equal(t, AssignmentFailed, report.Steps[1].Status)
	assert.Equal(t, AssignmentSkipped, report.Steps[2].Status)
	assert.Len(t, assignments.created, 1)
}

func TestAssignPromotionSubjectsEmptyPromotion(t *testing.T) {
	svc := newTestEnrollmentService(&mockIdentityProvider{}, &mockStudentRepo{}, &mockPromotionReader{}, &mockSubjectLister{}, &mockAssignmentRepo{})

	report, err := svc.AssignPromotionSubjects(context.Background(), "s1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Empty(t, report.Steps)
}

func TestAssignPromotionSubjectsRepeatedRunDuplicatesRows(t *testing.T) {
	subjects := &mockSubjectLister{subjects: []models.Subject{{ID: "sub1", Name: "Algebra"}}}
	assignments := &mockAssignmentRepo{}
	svc := newTestEnrollmentService(&mockIdentityProvider{}, &mockStudentRepo{}, &mockPromotionReader{}, subjects, assignments)

	_, err := svc.AssignPromotionSubjects(context.Background(), "s1", "p1")
	require.NoError(t, err)
	_, err = svc.AssignPromotionSubjects(context.Background(), "s1", "p1")
	require.NoError(t, err)
	assert.Len(t, assignments.created, 2)
}

func TestCreateBulkStudentsContinuesPastFailures(t *testing.T) {
	identity := &mockIdentityProvider{failEmail: "luis.castro2026@motta.superate.org.pa"}
	students := &mockStudentRepo{}
	subjects := &mockSubjectLister{subjects: []models.Subject{{ID: "sub1", Name: "Algebra"}}}
	assignments := &mockAssignmentRepo{}
	svc := newTestEnrollmentService(identity, students, &mockPromotionReader{}, subjects, assignments)

	var sleeps int
	svc.sleep = func(time.Duration) { sleeps++ }

	result, err := svc.CreateBulkStudents(context.Background(), BulkEnrollmentRequest{
		RawText:     "Ana, Gómez\nLuis, Castro\nMarta, Ríos",
		PromotionID: "p1",
		Level:       models.LevelFreshman,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Records, 3)
	assert.Empty(t, result.Records[0].Error)
	assert.NotEmpty(t, result.Records[1].Error)
	assert.Empty(t, result.Records[1].StudentID)
	assert.Equal(t, 1, result.Records[0].Assigned)
	assert.Equal(t, 1, result.Records[2].Assigned)
	// The delay runs between records, not before the first one.
	assert.Equal(t, 2, sleeps)
	assert.Len(t, students.created, 2)
}

func TestCreateBulkStudentsFanOutFailureBecomesWarning(t *testing.T) {
	subjects := &mockSubjectLister{subjects: []models.Subject{{ID: "sub1", Name: "Algebra"}}}
	assignments := &mockAssignmentRepo{failSubject: "sub1"}
	svc := newTestEnrollmentService(&mockIdentityProvider{}, &mockStudentRepo{}, &mockPromotionReader{}, subjects, assignments)

	result, err := svc.CreateBulkStudents(context.Background(), BulkEnrollmentRequest{
		RawText:     "Ana, Gómez",
		PromotionID: "p1",
		Level:       models.LevelFreshman,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "ana.gomez2026@motta.superate.org.pa")
}

func TestCreateBulkStudentsRejectsEmptyPaste(t *testing.T) {
	svc := newTestEnrollmentService(&mockIdentityProvider{}, &mockStudentRepo{}, &mockPromotionReader{}, &mockSubjectLister{}, &mockAssignmentRepo{})

	_, err := svc.CreateBulkStudents(context.Background(), BulkEnrollmentRequest{
		RawText:     "just-one-field\nanother",
		PromotionID: "p1",
		Level:       models.LevelFreshman,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
