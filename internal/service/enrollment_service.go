package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/pkg/config"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/oplock"
)

// Operation keys held by the single-flight guard. A second request for the
// same workflow fails fast with OPERATION_IN_PROGRESS instead of queueing.
const (
	opKeyCreateStudent = "enrollment:create-student"
	opKeyBulkCreate    = "enrollment:bulk-create"
)

type identityProvider interface {
	CreateIdentity(ctx context.Context, email, secret, fullName string, role models.UserRole) (*models.User, error)
}

type enrollmentStudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
}

type enrollmentPromotionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Promotion, error)
}

type enrollmentSubjectRepository interface {
	ListByPromotion(ctx context.Context, promotionID string) ([]models.Subject, error)
}

type enrollmentAssignmentRepository interface {
	Create(ctx context.Context, assignment *models.StudentSubject) error
}

// AssignmentStepStatus is the outcome of one subject in a fan-out.
type AssignmentStepStatus string

const (
	AssignmentCreated AssignmentStepStatus = "CREATED"
	AssignmentFailed  AssignmentStepStatus = "FAILED"
	AssignmentSkipped AssignmentStepStatus = "SKIPPED"
)

// AssignmentStep records the outcome for a single subject during fan-out.
type AssignmentStep struct {
	SubjectID   string               `json:"subject_id"`
	SubjectName string               `json:"subject_name"`
	Status      AssignmentStepStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
}

// AssignmentReport is the structured result of a subject-assignment fan-out.
// On failure it shows exactly which subjects were written before the abort
// and which were skipped, so an operator can finish the job by hand.
type AssignmentReport struct {
	StudentID   string           `json:"student_id"`
	PromotionID string           `json:"promotion_id"`
	Created     int              `json:"created"`
	Steps       []AssignmentStep `json:"steps"`
}

// CreateStudentRequest is the payload for a single enrollment.
type CreateStudentRequest struct {
	FirstName   string              `json:"first_name" validate:"required"`
	LastName    string              `json:"last_name" validate:"required"`
	Email       string              `json:"email" validate:"omitempty,email"`
	PromotionID string              `json:"promotion_id" validate:"required"`
	Level       models.StudentLevel `json:"level" validate:"required,oneof=FRESHMAN JUNIOR SENIOR"`
}

// CreateStudentResult pairs the new student with its fan-out report. Warning
// is set when the profile or assignments could not be completed after the
// account already existed; the creation itself still counts as done.
type CreateStudentResult struct {
	Student     *models.Student   `json:"student"`
	Assignments *AssignmentReport `json:"assignments,omitempty"`
	Warning     string            `json:"warning,omitempty"`
}

// BulkEnrollmentRequest carries the pasted roster text plus the shared
// promotion and level for every parsed line.
type BulkEnrollmentRequest struct {
	RawText     string              `json:"raw_text" validate:"required"`
	PromotionID string              `json:"promotion_id" validate:"required"`
	Level       models.StudentLevel `json:"level" validate:"required,oneof=FRESHMAN JUNIOR SENIOR"`
}

// BulkRecordResult is the per-line outcome of a bulk enrollment.
type BulkRecordResult struct {
	Line      int    `json:"line"`
	Email     string `json:"email"`
	StudentID string `json:"student_id,omitempty"`
	Assigned  int    `json:"assigned"`
	Error     string `json:"error,omitempty"`
}

// BulkEnrollmentResult aggregates a whole bulk run. Failed records never
// abort the loop and nothing is rolled back; Warnings collects fan-out
// problems that need manual follow-up.
type BulkEnrollmentResult struct {
	SuccessCount int                `json:"success_count"`
	ErrorCount   int                `json:"error_count"`
	Records      []BulkRecordResult `json:"records"`
	Warnings     []string           `json:"warnings,omitempty"`
}

type stagedStudent struct {
	line      int
	firstName string
	lastName  string
	email     string
	passcode  string
}

// EnrollmentService implements the student creation workflows: credential
// generation, single creation, bulk creation and the subject-assignment
// fan-out.
type EnrollmentService struct {
	students    enrollmentStudentRepository
	promotions  enrollmentPromotionRepository
	subjects    enrollmentSubjectRepository
	assignments enrollmentAssignmentRepository
	identity    identityProvider
	guard       *oplock.Guard
	cfg         config.EnrollmentConfig
	validator   *validator.Validate
	logger      *zap.Logger

	// sleep is swapped out in tests to avoid waiting out the bulk delay.
	sleep func(time.Duration)
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(
	students enrollmentStudentRepository,
	promotions enrollmentPromotionRepository,
	subjects enrollmentSubjectRepository,
	assignments enrollmentAssignmentRepository,
	identity identityProvider,
	guard *oplock.Guard,
	cfg config.EnrollmentConfig,
	logger *zap.Logger,
) *EnrollmentService {
	if guard == nil {
		guard = oplock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		students:    students,
		promotions:  promotions,
		subjects:    subjects,
		assignments: assignments,
		identity:    identity,
		guard:       guard,
		cfg:         cfg,
		validator:   validator.New(),
		logger:      logger,
		sleep:       time.Sleep,
	}
}

// GenerateEmail derives the institutional email from the student's name and
// the promotion's graduation year.
func (s *EnrollmentService) GenerateEmail(firstName, lastName string, year int) string {
	return GenerateEmail(firstName, lastName, year, s.cfg.EmailDomain)
}

// GeneratePasscode returns a fresh initial passcode at the configured length.
func (s *EnrollmentService) GeneratePasscode() (string, error) {
	return GeneratePasscode(s.cfg.PasscodeLength)
}

// graduationYear resolves the year used in generated emails. A missing
// promotion falls back to the configured year rather than failing the
// enrollment.
func (s *EnrollmentService) graduationYear(ctx context.Context, promotionID string) (int, error) {
	promotion, err := s.promotions.FindByID(ctx, promotionID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("promotion not found, using fallback graduation year",
				zap.String("promotion_id", promotionID),
				zap.Int("fallback_year", s.cfg.FallbackGraduationYear),
			)
			return s.cfg.FallbackGraduationYear, nil
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load promotion")
	}
	return promotion.GraduationYear, nil
}

// CreateStudent enrolls a single student: account first, then the profile,
// then the subject-assignment fan-out. Account and profile are two separate
// writes with no transaction across them; a profile failure leaves the
// account behind and is reported as a warning.
func (s *EnrollmentService) CreateStudent(ctx context.Context, req CreateStudentRequest) (*CreateStudentResult, error) {
	release, ok := s.guard.TryAcquire(opKeyCreateStudent)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrOperationInProgress, "a student creation is already running")
	}
	defer release()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	year, err := s.graduationYear(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = s.GenerateEmail(req.FirstName, req.LastName, year)
	}
	passcode, err := s.GeneratePasscode()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate passcode")
	}

	fullName := strings.TrimSpace(req.FirstName + " " + req.LastName)
	identity, err := s.identity.CreateIdentity(ctx, email, passcode, fullName, models.RoleStudent)
	if err != nil {
		return nil, err
	}

	student := &models.Student{
		ID:          identity.ID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       email,
		Passcode:    passcode,
		PromotionID: req.PromotionID,
		Level:       req.Level,
		Active:      true,
	}
	if err := s.students.Create(ctx, student); err != nil {
		// The account exists but has no profile. Surface it instead of
		// attempting a rollback the identity store does not support.
		s.logger.Error("account created without profile",
			zap.String("user_id", identity.ID),
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			"account was created but the student profile could not be saved")
	}

	result := &CreateStudentResult{Student: student}
	report, err := s.AssignPromotionSubjects(ctx, student.ID, req.PromotionID)
	result.Assignments = report
	if err != nil {
		s.logger.Warn("subject assignment incomplete after enrollment",
			zap.String("student_id", student.ID),
			zap.Error(err),
		)
		result.Warning = "student created, but some subject assignments failed and need manual follow-up"
	}

	s.logger.Info("student enrolled",
		zap.String("student_id", student.ID),
		zap.String("promotion_id", req.PromotionID),
	)
	return result, nil
}

// AssignPromotionSubjects enrolls the student into every subject whose
// promotion set contains the promotion. Rows are inserted one at a time, in
// subject-name order, and the loop aborts on the first failure; remaining
// subjects are reported as skipped. There is no duplicate check: calling
// this twice for the same student doubles the rows.
func (s *EnrollmentService) AssignPromotionSubjects(ctx context.Context, studentID, promotionID string) (*AssignmentReport, error) {
	report := &AssignmentReport{StudentID: studentID, PromotionID: promotionID}

	subjects, err := s.subjects.ListByPromotion(ctx, promotionID)
	if err != nil {
		return report, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects for promotion")
	}
	if len(subjects) == 0 {
		s.logger.Warn("promotion has no subjects, nothing to assign", zap.String("promotion_id", promotionID))
		return report, nil
	}

	for i, subject := range subjects {
		err := s.assignments.Create(ctx, &models.StudentSubject{
			StudentID:   studentID,
			SubjectID:   subject.ID,
			PromotionID: promotionID,
		})
		if err != nil {
			report.Steps = append(report.Steps, AssignmentStep{
				SubjectID:   subject.ID,
				SubjectName: subject.Name,
				Status:      AssignmentFailed,
				Error:       err.Error(),
			})
			for _, rest := range subjects[i+1:] {
				report.Steps = append(report.Steps, AssignmentStep{
					SubjectID:   rest.ID,
					SubjectName: rest.Name,
					Status:      AssignmentSkipped,
				})
			}
			return report, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				fmt.Sprintf("assignment to subject %q failed, remaining subjects skipped", subject.Name))
		}
		report.Steps = append(report.Steps, AssignmentStep{
			SubjectID:   subject.ID,
			SubjectName: subject.Name,
			Status:      AssignmentCreated,
		})
		report.Created++
	}
	return report, nil
}

// parseBulkLines splits pasted roster text into staged records. Lines with
// fewer than two non-empty comma-separated fields are dropped without an
// error; that is how operators trim trailing garbage off a paste.
func parseBulkLines(raw string) [][2]string {
	var rows [][2]string
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Split(line, ",")
		var fields []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				fields = append(fields, trimmed)
			}
		}
		if len(fields) < 2 {
			continue
		}
		rows = append(rows, [2]string{fields[0], fields[1]})
	}
	return rows
}

// CreateBulkStudents enrolls every parseable line of the pasted roster. The
// staging pass derives all credentials before any write happens; the write
// loop then creates account and profile per record with a configurable delay
// between records. A failed record is reported and the loop continues, so a
// finished run can be partially successful. Fan-out runs once per created
// student after the loop; its failures become warnings, never errors.
func (s *EnrollmentService) CreateBulkStudents(ctx context.Context, req BulkEnrollmentRequest) (*BulkEnrollmentResult, error) {
	release, ok := s.guard.TryAcquire(opKeyBulkCreate)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrOperationInProgress, "a bulk enrollment is already running")
	}
	defer release()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	year, err := s.graduationYear(ctx, req.PromotionID)
	if err != nil {
		return nil, err
	}

	rows := parseBulkLines(req.RawText)
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no usable lines found in the pasted text")
	}

	// Staging pass: pure, no writes. Every record gets its email and
	// passcode before the first account is touched.
	staged := make([]stagedStudent, 0, len(rows))
	for i, row := range rows {
		passcode, err := s.GeneratePasscode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate passcodes")
		}
		staged = append(staged, stagedStudent{
			line:      i + 1,
			firstName: row[0],
			lastName:  row[1],
			email:     s.GenerateEmail(row[0], row[1], year),
			passcode:  passcode,
		})
	}

	result := &BulkEnrollmentResult{Records: make([]BulkRecordResult, 0, len(staged))}
	var created []BulkRecordResult

	for i, rec := range staged {
		if i > 0 && s.cfg.BulkCreateDelay > 0 {
			s.sleep(s.cfg.BulkCreateDelay)
		}

		record := BulkRecordResult{Line: rec.line, Email: rec.email}
		fullName := strings.TrimSpace(rec.firstName + " " + rec.lastName)

		identity, err := s.identity.CreateIdentity(ctx, rec.email, rec.passcode, fullName, models.RoleStudent)
		if err != nil {
			record.Error = appErrors.FromError(err).Message
			result.ErrorCount++
			result.Records = append(result.Records, record)
			s.logger.Warn("bulk record failed at account creation",
				zap.Int("line", rec.line),
				zap.String("email", rec.email),
				zap.Error(err),
			)
			continue
		}

		student := &models.Student{
			ID:          identity.ID,
			FirstName:   rec.firstName,
			LastName:    rec.lastName,
			Email:       rec.email,
			Passcode:    rec.passcode,
			PromotionID: req.PromotionID,
			Level:       req.Level,
			Active:      true,
		}
		if err := s.students.Create(ctx, student); err != nil {
			record.Error = "account created but profile could not be saved"
			result.ErrorCount++
			result.Records = append(result.Records, record)
			s.logger.Error("bulk record left account without profile",
				zap.Int("line", rec.line),
				zap.String("user_id", identity.ID),
				zap.Error(err),
			)
			continue
		}

		record.StudentID = student.ID
		result.SuccessCount++
		result.Records = append(result.Records, record)
		created = append(created, record)
	}

	// Fan-out after the creation loop, one student at a time. A fan-out
	// failure does not fail the bulk run; the affected student keeps a
	// partial assignment set.
	for _, rec := range created {
		report, err := s.AssignPromotionSubjects(ctx, rec.StudentID, req.PromotionID)
		for i := range result.Records {
			if result.Records[i].StudentID == rec.StudentID {
				result.Records[i].Assigned = report.Created
			}
		}
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("subject assignments incomplete for %s, manual follow-up needed", rec.Email))
		}
	}

	s.logger.Info("bulk enrollment finished",
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.ErrorCount),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}
