package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarkAttendanceRequest records or overwrites one attendance mark. Date is a
// civil "2006-01-02" date; empty means today in the academy timezone. Force
// asks to bypass a closed time window (admin only). AcknowledgeDebt confirms
// marking despite outstanding debt when the soft block is enabled.
type MarkAttendanceRequest struct {
	EnrollmentID    string           `json:"enrollment_id" validate:"required"`
	Date            string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status          AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE"`
	Notes           *string          `json:"notes"`
	Force           bool             `json:"force"`
	AcknowledgeDebt bool             `json:"acknowledge_debt"`
}

// BulkMarkEntry is one student's mark inside a bulk request.
type BulkMarkEntry struct {
	EnrollmentID string           `json:"enrollment_id" validate:"required"`
	Status       AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT LATE"`
	Notes        *string          `json:"notes"`
}

// BulkMarkAttendanceRequest marks a whole class sheet in one call.
type BulkMarkAttendanceRequest struct {
	ClassID         string            `json:"class_id" validate:"required"`
	Date            string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Mode            BulkOperationMode `json:"mode" validate:"omitempty,oneof=atomic partialOnError"`
	Entries         []BulkMarkEntry   `json:"entries" validate:"required,min=1,dive"`
	Force           bool              `json:"force"`
	AcknowledgeDebt bool              `json:"acknowledge_debt"`
}

// BulkMarkResult reports what a bulk mark achieved.
type BulkMarkResult struct {
	Marked    []Attendance             `json:"marked"`
	Conflicts []AttendanceBulkConflict `json:"conflicts,omitempty"`
}

// SetAttendancePaymentRequest toggles one session charge between paid,
// unpaid and debt.
type SetAttendancePaymentRequest struct {
	Status AttendancePaymentStatus `json:"status" validate:"required,oneof=PAID UNPAID DEBT"`
}

// MonthlyPaymentRequest settles the current monthly cycle of an enrollment.
type MonthlyPaymentRequest struct {
	Notes *string `json:"notes"`
}

// PayAmountRequest distributes an arbitrary amount across a student's debts.
type PayAmountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Notes  *string         `json:"notes"`
}

// PayAmountResult returns how a partial payment was applied.
type PayAmountResult struct {
	StudentID   string          `json:"student_id"`
	Applied     decimal.Decimal `json:"applied"`
	Remainder   decimal.Decimal `json:"remainder"`
	Allocations interface{}     `json:"allocations"`
}

// CreateStudentRequest registers a new student.
type CreateStudentRequest struct {
	RegistrationNo string    `json:"registration_no" validate:"required"`
	FullName       string    `json:"full_name" validate:"required"`
	Gender         string    `json:"gender" validate:"omitempty,oneof=M F"`
	BirthDate      time.Time `json:"birth_date"`
	Address        string    `json:"address"`
	Phone          string    `json:"phone"`
	GuardianPhone  string    `json:"guardian_phone"`
}

// UpdateStudentRequest modifies an existing student.
type UpdateStudentRequest struct {
	RegistrationNo string    `json:"registration_no" validate:"required"`
	FullName       string    `json:"full_name" validate:"required"`
	Gender         string    `json:"gender" validate:"omitempty,oneof=M F"`
	BirthDate      time.Time `json:"birth_date"`
	Address        string    `json:"address"`
	Phone          string    `json:"phone"`
	GuardianPhone  string    `json:"guardian_phone"`
	Active         bool      `json:"active"`
}

// CreateCourseRequest registers a course offering.
type CreateCourseRequest struct {
	Name         string          `json:"name" validate:"required"`
	Level        string          `json:"level"`
	PricingType  PricingType     `json:"pricing_type" validate:"required,oneof=SESSION MONTHLY"`
	SessionPrice decimal.Decimal `json:"session_price"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
}

// UpdateCourseRequest modifies a course.
type UpdateCourseRequest struct {
	Name         string          `json:"name" validate:"required"`
	Level        string          `json:"level"`
	PricingType  PricingType     `json:"pricing_type" validate:"required,oneof=SESSION MONTHLY"`
	SessionPrice decimal.Decimal `json:"session_price"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Active       bool            `json:"active"`
}

// CreateClassRequest registers a class section. DayOfWeek uses 0=Monday..
// 6=Sunday, -1 for unscheduled. Times are "HH:MM".
type CreateClassRequest struct {
	CourseID    string  `json:"course_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	TeacherName string  `json:"teacher_name"`
	DayOfWeek   int     `json:"day_of_week" validate:"min=-1,max=6"`
	StartTime   *string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime     *string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Room        string  `json:"room"`
}

// UpdateClassRequest modifies a class section.
type UpdateClassRequest struct {
	CourseID    string  `json:"course_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	TeacherName string  `json:"teacher_name"`
	DayOfWeek   int     `json:"day_of_week" validate:"min=-1,max=6"`
	StartTime   *string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime     *string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Room        string  `json:"room"`
	Active      bool    `json:"active"`
}

// CreateEnrollmentRequest binds a student to a class. The billing contract is
// copied from the course's pricing type at creation time.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// CreateUserRequest registers a staff account.
type CreateUserRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	FullName string   `json:"full_name" validate:"required"`
	Role     UserRole `json:"role" validate:"required,oneof=ADMIN STAFF TEACHER"`
}

// UpdateUserRequest modifies a staff account.
type UpdateUserRequest struct {
	FullName string   `json:"full_name" validate:"required"`
	Role     UserRole `json:"role" validate:"required,oneof=ADMIN STAFF TEACHER"`
	Active   bool     `json:"active"`
}
