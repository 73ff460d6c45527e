package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student represents a learner registered in the academy.
type Student struct {
	ID             string    `db:"id" json:"id"`
	RegistrationNo string    `db:"registration_no" json:"registration_no"`
	FullName       string    `db:"full_name" json:"full_name"`
	Gender         string    `db:"gender" json:"gender"`
	BirthDate      time.Time `db:"birth_date" json:"birth_date"`
	Address        string    `db:"address" json:"address"`
	Phone          string    `db:"phone" json:"phone"`
	GuardianPhone  string    `db:"guardian_phone" json:"guardian_phone"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches Student with billing context. TotalDebt is derived
// from the student's active enrollments at read time; it is never stored as
// an independent column.
type StudentDetail struct {
	Student
	TotalDebt         decimal.Decimal `db:"total_debt" json:"total_debt"`
	ActiveEnrollments int             `db:"active_enrollments" json:"active_enrollments"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassID   string
	Active    *bool
	InDebt    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
