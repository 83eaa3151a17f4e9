package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/export"
	"github.com/motta-superate/grades-api/pkg/storage"
)

type exportStudentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type exportAssignmentRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentSubjectDetail, error)
}

type exportGradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
}

// ExportArtifact references a rendered file via its signed download token.
type ExportArtifact struct {
	Token     string    `json:"token"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders credential sheets and grade reports to files and
// hands out signed download tokens for them.
type ExportService struct {
	students    exportStudentRepository
	assignments exportAssignmentRepository
	grades      exportGradeRepository
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(
	students exportStudentRepository,
	assignments exportAssignmentRepository,
	grades exportGradeRepository,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		students:    students,
		assignments: assignments,
		grades:      grades,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		store:       store,
		signer:      signer,
		logger:      logger,
	}
}

// CredentialSheet renders the initial credentials of a promotion's students
// as CSV. The passcode column shows the credential generated at enrollment;
// it goes stale once a student changes their password.
func (s *ExportService) CredentialSheet(ctx context.Context, promotionID string) (*ExportArtifact, error) {
	students, _, err := s.students.List(ctx, models.StudentFilter{PromotionID: promotionID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if len(students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "promotion has no students")
	}

	dataset := export.Dataset{
		Headers: []string{"Last Name", "First Name", "Email", "Initial Passcode", "Level"},
	}
	for _, student := range students {
		dataset.Rows = append(dataset.Rows, []string{
			student.LastName,
			student.FirstName,
			student.Email,
			student.Passcode,
			string(student.Level),
		})
	}

	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render credential sheet")
	}
	filename := fmt.Sprintf("credentials/%s-%d.csv", promotionID, time.Now().Unix())
	return s.publish(filename, data)
}

// GradeReport renders a student's recorded grades as PDF, grouped per
// assigned subject.
func (s *ExportService) GradeReport(ctx context.Context, studentID string) (*ExportArtifact, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	assignments, err := s.assignments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	subjectNames := make(map[string]string, len(assignments))
	for _, assignment := range assignments {
		if assignment.SubjectName != nil {
			subjectNames[assignment.SubjectID] = *assignment.SubjectName
		}
	}

	grades, _, err := s.grades.List(ctx, models.GradeFilter{StudentID: studentID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}

	dataset := export.Dataset{Headers: []string{"Subject", "Title", "Score", "Max", "Percent"}}
	for _, grade := range grades {
		name := subjectNames[grade.SubjectID]
		if name == "" {
			name = grade.SubjectID
		}
		dataset.Rows = append(dataset.Rows, []string{
			name,
			grade.Title,
			fmt.Sprintf("%.1f", grade.Score),
			fmt.Sprintf("%.1f", grade.MaxScore),
			fmt.Sprintf("%.1f%%", grade.Score/grade.MaxScore*100),
		})
	}

	title := "Grade Report"
	subtitle := fmt.Sprintf("%s %s (%s)", student.FirstName, student.LastName, student.Email)
	data, err := s.pdf.Render(dataset, title, subtitle)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade report")
	}
	filename := fmt.Sprintf("grades/%s-%d.pdf", studentID, time.Now().Unix())
	return s.publish(filename, data)
}

// Resolve validates a download token and returns the absolute path of the
// referenced file.
func (s *ExportService) Resolve(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "export artifact no longer exists")
	}
	defer file.Close()
	return s.store.Path(relPath), nil
}

// Cleanup removes artifacts older than the given TTL.
func (s *ExportService) Cleanup(ttl time.Duration) {
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("export artifacts cleaned up", zap.Int("count", len(deleted)))
	}
}

func (s *ExportService) publish(filename string, data []byte) (*ExportArtifact, error) {
	relPath, err := s.store.Save(filename, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export artifact")
	}
	token, expiresAt, err := s.signer.Generate(uuid.NewString(), relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &ExportArtifact{Token: token, Filename: filename, ExpiresAt: expiresAt}, nil
}
