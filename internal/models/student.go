package models

import "time"

// StudentLevel is the coarse academic level of a student.
type StudentLevel string

const (
	LevelFreshman StudentLevel = "FRESHMAN"
	LevelJunior   StudentLevel = "JUNIOR"
	LevelSenior   StudentLevel = "SENIOR"
)

// Student is the profile record for a user with role STUDENT, keyed by the
// identity's user ID. Passcode keeps the generated initial credential in
// clear so admins can distribute it; the identity secret itself is stored
// hashed and diverges from this field after any password change.
type Student struct {
	ID          string       `db:"id" json:"id"`
	FirstName   string       `db:"first_name" json:"first_name"`
	LastName    string       `db:"last_name" json:"last_name"`
	Email       string       `db:"email" json:"email"`
	Passcode    string       `db:"passcode" json:"passcode"`
	PromotionID string       `db:"promotion_id" json:"promotion_id"`
	Level       StudentLevel `db:"level" json:"level"`
	Active      bool         `db:"active" json:"active"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the student with its promotion.
type StudentDetail struct {
	Student
	PromotionName *string `db:"promotion_name" json:"promotion_name,omitempty"`
}

// StudentFilter captures list filters for students.
type StudentFilter struct {
	PromotionID string
	Level       *StudentLevel
	Active      *bool
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// StudentSubject is the assignment edge created by the enrollment fan-out.
// Rows are append-only: they are never updated, carry no uniqueness
// constraint (a repeated fan-out duplicates them), and are removed only when
// their subject is deleted.
type StudentSubject struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	PromotionID string    `db:"promotion_id" json:"promotion_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// StudentSubjectDetail joins the assignment with subject naming for listings.
type StudentSubjectDetail struct {
	StudentSubject
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
}
