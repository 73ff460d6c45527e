package models

import "time"

// DayUnscheduled marks a class without a fixed weekday; attendance for such a
// class always requires an override.
const DayUnscheduled = -1

// Class is a scheduled section of a Course. DayOfWeek uses 0=Monday..6=Sunday.
// StartTime and EndTime are "HH:MM" strings in the academy's civil timezone;
// nil means the schedule is incomplete.
type Class struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Name        string    `db:"name" json:"name"`
	TeacherName string    `db:"teacher_name" json:"teacher_name"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"`
	StartTime   *string   `db:"start_time" json:"start_time,omitempty"`
	EndTime     *string   `db:"end_time" json:"end_time,omitempty"`
	Room        string    `db:"room" json:"room"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail enriches Class with course pricing context.
type ClassDetail struct {
	Class
	CourseName  string      `db:"course_name" json:"course_name"`
	PricingType PricingType `db:"pricing_type" json:"pricing_type"`
}

// ClassFilter describes query params for listing classes.
type ClassFilter struct {
	CourseID  string
	DayOfWeek *int
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// WeekdayName maps the 0=Monday..6=Sunday convention to a display name.
func WeekdayName(day int) string {
	names := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	if day < 0 || day >= len(names) {
		return "unscheduled"
	}
	return names[day]
}
