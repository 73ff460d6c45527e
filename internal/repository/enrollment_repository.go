package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/academy-hq/academy-api/internal/models"
)

// enrollmentDetailColumns joins an enrollment with its student, class and
// course pricing context.
const enrollmentDetailColumns = `e.id, e.student_id, e.class_id, e.payment_type, e.monthly_sessions_attended, e.monthly_payment_status,
        e.total_debt, e.debt_sessions, e.last_payment_date, e.joined_at, e.left_at, e.status,
        s.full_name AS student_name, c.name AS class_name, co.name AS course_name, co.session_price, co.monthly_price`

const enrollmentDetailFrom = `FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN classes c ON c.id = e.class_id
        JOIN courses co ON co.id = c.course_id`

// EnrollmentRepository manages read access and lifecycle writes for
// enrollments. Billing counters on enrollments are written exclusively by the
// ReconciliationStore.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollment details matching the provided filters.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := enrollmentDetailFrom + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.PaymentType != nil {
		conditions = append(conditions, fmt.Sprintf("e.payment_type = $%d", len(args)+1))
		args = append(args, *filter.PaymentType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.InDebt != nil {
		if *filter.InDebt {
			conditions = append(conditions, "e.total_debt > 0")
		} else {
			conditions = append(conditions, "e.total_debt = 0")
		}
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"joined_at":    "e.joined_at",
		"total_debt":   "e.total_debt",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "e.joined_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentDetailColumns, base, column, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID fetches an enrollment detail by ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailFrom)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActive returns the active enrollment binding a student to a class, or
// sql.ErrNoRows when none exists.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, payment_type, monthly_sessions_attended, monthly_payment_status, total_debt, debt_sessions, last_payment_date, joined_at, left_at, status
        FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = 'ACTIVE' LIMIT 1`
	var enr models.Enrollment
	if err := r.db.GetContext(ctx, &enr, query, studentID, classID); err != nil {
		return nil, err
	}
	return &enr, nil
}

// Create inserts a new enrollment. The payment type is copied from the
// course's pricing type at this moment; later course changes do not touch
// existing enrollments.
func (r *EnrollmentRepository) Create(ctx context.Context, enr *models.Enrollment) error {
	if enr.ID == "" {
		enr.ID = uuid.NewString()
	}
	if enr.JoinedAt.IsZero() {
		enr.JoinedAt = time.Now().UTC()
	}
	if enr.Status == "" {
		enr.Status = models.EnrollmentStatusActive
	}
	if enr.MonthlyPaymentStatus == "" {
		enr.MonthlyPaymentStatus = models.MonthlyPending
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, payment_type, monthly_sessions_attended, monthly_payment_status, total_debt, debt_sessions, last_payment_date, joined_at, left_at, status)
        VALUES (:id, :student_id, :class_id, :payment_type, :monthly_sessions_attended, :monthly_payment_status, :total_debt, :debt_sessions, :last_payment_date, :joined_at, :left_at, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, enr); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Close ends an enrollment. Debt survives closure; the student still owes it.
func (r *EnrollmentRepository) Close(ctx context.Context, id string, leftAt time.Time) error {
	const query = `UPDATE enrollments SET status = 'INACTIVE', left_at = $2 WHERE id = $1 AND status = 'ACTIVE'`
	res, err := r.db.ExecContext(ctx, query, id, leftAt)
	if err != nil {
		return fmt.Errorf("close enrollment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListDebtsByStudent returns the per-enrollment debt view for a student's
// active enrollments, largest debt first. unit_price resolves to the course
// price matching each enrollment's payment type.
func (r *EnrollmentRepository) ListDebtsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDebt, error) {
	const query = `SELECT e.id, c.name AS class_name, e.payment_type, e.total_debt, e.debt_sessions,
        CASE WHEN e.payment_type = 'MONTHLY' THEN co.monthly_price ELSE co.session_price END AS unit_price
        FROM enrollments e
        JOIN classes c ON c.id = e.class_id
        JOIN courses co ON co.id = c.course_id
        WHERE e.student_id = $1 AND e.status = 'ACTIVE'
        ORDER BY e.total_debt DESC, e.id ASC`
	var debts []models.EnrollmentDebt
	if err := r.db.SelectContext(ctx, &debts, query, studentID); err != nil {
		return nil, fmt.Errorf("list debts for student: %w", err)
	}
	return debts, nil
}
