package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType is the billing contract of an enrollment. It is copied from the
// course's pricing type at enrollment and may diverge afterwards.
type PaymentType string

const (
	PaymentSession PaymentType = "SESSION"
	PaymentMonthly PaymentType = "MONTHLY"
)

// Valid returns true when the payment type is supported.
func (p PaymentType) Valid() bool {
	return p == PaymentSession || p == PaymentMonthly
}

// MonthlyPaymentStatus tracks the monthly billing cycle state.
type MonthlyPaymentStatus string

const (
	MonthlyPending MonthlyPaymentStatus = "PENDING"
	MonthlyPaid    MonthlyPaymentStatus = "PAID"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusInactive EnrollmentStatus = "INACTIVE"
)

// Enrollment is the billing contract binding one Student to one Class.
// TotalDebt and DebtSessions are mutated only inside the reconciliation
// store's transactions; everything else reads them.
type Enrollment struct {
	ID                      string               `db:"id" json:"id"`
	StudentID               string               `db:"student_id" json:"student_id"`
	ClassID                 string               `db:"class_id" json:"class_id"`
	PaymentType             PaymentType          `db:"payment_type" json:"payment_type"`
	MonthlySessionsAttended int                  `db:"monthly_sessions_attended" json:"monthly_sessions_attended"`
	MonthlyPaymentStatus    MonthlyPaymentStatus `db:"monthly_payment_status" json:"monthly_payment_status"`
	TotalDebt               decimal.Decimal      `db:"total_debt" json:"total_debt"`
	DebtSessions            int                  `db:"debt_sessions" json:"debt_sessions"`
	LastPaymentDate         *time.Time           `db:"last_payment_date" json:"last_payment_date,omitempty"`
	JoinedAt                time.Time            `db:"joined_at" json:"joined_at"`
	LeftAt                  *time.Time           `db:"left_at" json:"left_at,omitempty"`
	Status                  EnrollmentStatus     `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with student, class and pricing info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string          `db:"student_name" json:"student_name"`
	ClassName    string          `db:"class_name" json:"class_name"`
	CourseName   string          `db:"course_name" json:"course_name"`
	SessionPrice decimal.Decimal `db:"session_price" json:"session_price"`
	MonthlyPrice decimal.Decimal `db:"monthly_price" json:"monthly_price"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID   string
	ClassID     string
	PaymentType *PaymentType
	Status      EnrollmentStatus
	InDebt      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
