package models

import "time"

// PromotionTurn is the daily shift a promotion attends.
type PromotionTurn string

const (
	TurnMorning   PromotionTurn = "AM"
	TurnAfternoon PromotionTurn = "PM"
)

// Promotion is a graduating cohort. Students and subjects reference it.
type Promotion struct {
	ID             string        `db:"id" json:"id"`
	Name           string        `db:"name" json:"name"`
	Turn           PromotionTurn `db:"turn" json:"turn"`
	GraduationYear int           `db:"graduation_year" json:"graduation_year"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// PromotionFilter captures list filters for promotions.
type PromotionFilter struct {
	Turn      *PromotionTurn
	Year      *int
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
