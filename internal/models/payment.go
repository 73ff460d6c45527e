package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentKind classifies how a payment settled debt.
type PaymentKind string

const (
	PaymentKindSession   PaymentKind = "SESSION"   // single session charge settled
	PaymentKindMonthly   PaymentKind = "MONTHLY"   // monthly cycle settled
	PaymentKindPartial   PaymentKind = "PARTIAL"   // amount distributed across enrollments
	PaymentKindClearance PaymentKind = "CLEARANCE" // administrative debt clearance
)

// Payment is a receipt row recorded for every settling operation.
type Payment struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	EnrollmentID *string         `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Kind         PaymentKind     `db:"kind" json:"kind"`
	ReceivedBy   string          `db:"received_by" json:"received_by"`
	ReceivedAt   time.Time       `db:"received_at" json:"received_at"`
	Notes        *string         `db:"notes" json:"notes,omitempty"`
}

// PaymentDetail enriches Payment with student metadata for receipts.
type PaymentDetail struct {
	Payment
	StudentName string `db:"student_name" json:"student_name"`
}

// PaymentFilter scopes receipt listings.
type PaymentFilter struct {
	StudentID    string
	EnrollmentID string
	Kind         *PaymentKind
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// EnrollmentDebt is the per-enrollment view used when distributing a partial
// payment across a student's debts.
type EnrollmentDebt struct {
	EnrollmentID string          `db:"id" json:"enrollment_id"`
	ClassName    string          `db:"class_name" json:"class_name"`
	PaymentType  PaymentType     `db:"payment_type" json:"payment_type"`
	TotalDebt    decimal.Decimal `db:"total_debt" json:"total_debt"`
	DebtSessions int             `db:"debt_sessions" json:"debt_sessions"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// StudentDebtSummary aggregates a student's outstanding debt. Cached per
// student and invalidated by every reconciliation write.
type StudentDebtSummary struct {
	StudentID    string           `json:"student_id"`
	TotalDebt    decimal.Decimal  `json:"total_debt"`
	DebtSessions int              `json:"debt_sessions"`
	Enrollments  []EnrollmentDebt `json:"enrollments"`
	GeneratedAt  time.Time        `json:"generated_at"`
}
