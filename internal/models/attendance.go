package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	default:
		return false
	}
}

// AttendancePaymentStatus tracks the per-session charge attached to an
// attendance row. Only meaningful for session-type enrollments; empty until a
// charge is raised.
type AttendancePaymentStatus string

const (
	SessionUncharged AttendancePaymentStatus = ""
	SessionUnpaid    AttendancePaymentStatus = "UNPAID"
	SessionPaid      AttendancePaymentStatus = "PAID"
	SessionDebt      AttendancePaymentStatus = "DEBT"
)

// Valid reports whether the payment status is one of the closed set.
func (s AttendancePaymentStatus) Valid() bool {
	switch s {
	case SessionUncharged, SessionUnpaid, SessionPaid, SessionDebt:
		return true
	default:
		return false
	}
}

// Charged reports whether a session charge has already been raised for the
// attendance row, in any settled or unsettled form.
func (s AttendancePaymentStatus) Charged() bool {
	return s != SessionUncharged
}

// BulkOperationMode controls how bulk writes behave on errors.
type BulkOperationMode string

const (
	BulkModeAtomic         BulkOperationMode = "atomic"
	BulkModePartialOnError BulkOperationMode = "partialOnError"
)

// Attendance is one record per (enrollment, date); the enrollment already
// binds a student to a class, so the pair is equivalent to the
// (student, class, date) unique key. Created on first mark, overwritten in
// place on re-mark, deleted by the unmark-latest operation.
type Attendance struct {
	ID            string                  `db:"id" json:"id"`
	EnrollmentID  string                  `db:"enrollment_id" json:"enrollment_id"`
	Date          time.Time               `db:"date" json:"date"`
	Status        AttendanceStatus        `db:"status" json:"status"`
	PaymentStatus AttendancePaymentStatus `db:"payment_status" json:"payment_status,omitempty"`
	PaymentAmount *decimal.Decimal        `db:"payment_amount" json:"payment_amount,omitempty"`
	PaymentDate   *time.Time              `db:"payment_date" json:"payment_date,omitempty"`
	MarkedBy      string                  `db:"marked_by" json:"marked_by"`
	MarkedAt      time.Time               `db:"marked_at" json:"marked_at"`
	Notes         *string                 `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time               `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends the model with student and class metadata.
type AttendanceRecord struct {
	Attendance
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	ClassID     string `db:"class_id" json:"class_id"`
	ClassName   string `db:"class_name" json:"class_name"`
}

// AttendanceFilter defines query filters.
type AttendanceFilter struct {
	ClassID       string
	StudentID     string
	EnrollmentID  string
	Status        *AttendanceStatus
	PaymentStatus *AttendancePaymentStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// AttendanceBulkConflict captures entries skipped during bulk operations.
type AttendanceBulkConflict struct {
	EnrollmentID string    `json:"enrollment_id"`
	Date         time.Time `json:"date"`
	Reason       string    `json:"reason"`
}

// ClassSheetRow is one line of a class attendance sheet for a date.
type ClassSheetRow struct {
	EnrollmentID  string                  `db:"enrollment_id" json:"enrollment_id"`
	StudentID     string                  `db:"student_id" json:"student_id"`
	StudentName   string                  `db:"student_name" json:"student_name"`
	Status        *AttendanceStatus       `db:"status" json:"status,omitempty"`
	PaymentStatus AttendancePaymentStatus `db:"payment_status" json:"payment_status,omitempty"`
	TotalDebt     decimal.Decimal         `db:"total_debt" json:"total_debt"`
}
