package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardSummary is the admin landing-page aggregate.
type DashboardSummary struct {
	Date              time.Time       `json:"date"`
	ActiveStudents    int             `json:"active_students"`
	ActiveEnrollments int             `json:"active_enrollments"`
	MarkedToday       int             `json:"marked_today"`
	PresentToday      int             `json:"present_today"`
	OutstandingDebt   decimal.Decimal `json:"outstanding_debt"`
	StudentsInDebt    int             `json:"students_in_debt"`
	DueMonthlyCycles  int             `json:"due_monthly_cycles"`
	GeneratedAt       time.Time       `json:"generated_at"`
}
