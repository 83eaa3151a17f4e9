package models

import "time"

// GradeCategory is a weighted bucket of grades within a subject. Weights are
// percentages; they must sum to 100 before weighted averages are reported.
type GradeCategory struct {
	ID        string    `db:"id" json:"id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Name      string    `db:"name" json:"name"`
	Weight    float64   `db:"weight" json:"weight"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Grade is a single recorded score. CategoryID is nil for simple grades and
// set for weighted-category grades.
type Grade struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	CategoryID *string   `db:"category_id" json:"category_id,omitempty"`
	Title      string    `db:"title" json:"title"`
	Score      float64   `db:"score" json:"score"`
	MaxScore   float64   `db:"max_score" json:"max_score"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// GradeFilter captures list filters for grades.
type GradeFilter struct {
	StudentID  string
	SubjectID  string
	CategoryID string
	Page       int
	PageSize   int
}

// SubjectStats summarises a student's standing in one subject.
type SubjectStats struct {
	SubjectID       string   `json:"subject_id"`
	GradeCount      int      `json:"grade_count"`
	Average         float64  `json:"average"`
	WeightedAverage *float64 `json:"weighted_average,omitempty"`
}
