package models

import "time"

// Subject is a taught course. A subject is "for" every promotion in its
// promotion set; membership only matters at enrollment time.
type Subject struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	Semester     int       `db:"semester" json:"semester"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail joins the subject with its teacher and promotion set.
type SubjectDetail struct {
	Subject
	TeacherName  *string  `db:"teacher_name" json:"teacher_name,omitempty"`
	PromotionIDs []string `db:"-" json:"promotion_ids"`
}

// SubjectFilter captures list filters for subjects.
type SubjectFilter struct {
	TeacherID    string
	PromotionID  string
	AcademicYear string
	Semester     *int
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
