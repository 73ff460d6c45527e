package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/academy-hq/academy-api/internal/models"
)

// attendanceRecordColumns projects an attendance row with its student and
// class metadata.
const attendanceRecordColumns = `a.id, a.enrollment_id, a.date, a.status, a.payment_status, a.payment_amount, a.payment_date,
        a.marked_by, a.marked_at, a.notes, a.created_at, a.updated_at,
        e.student_id, s.full_name AS student_name, e.class_id, c.name AS class_name`

const attendanceRecordFrom = `FROM attendances a
        JOIN enrollments e ON e.id = a.enrollment_id
        JOIN students s ON s.id = e.student_id
        JOIN classes c ON c.id = e.class_id`

// AttendanceRepository serves read paths over the attendance ledger. All
// writes that move money go through the ReconciliationStore.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance records matching the provided filters.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := attendanceRecordFrom + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.PaymentStatus != nil {
		conditions = append(conditions, fmt.Sprintf("a.payment_status = $%d", len(args)+1))
		args = append(args, *filter.PaymentStatus)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"date":         "a.date",
		"marked_at":    "a.marked_at",
		"student_name": "s.full_name",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "a.date"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", attendanceRecordColumns, base, column, order, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// FindByID fetches one attendance record with its metadata.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.id = $1", attendanceRecordColumns, attendanceRecordFrom)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ClassSheet returns one row per active enrollment of a class for a date,
// with whatever mark already exists. Unmarked students come back with a nil
// status so the sheet shows who is still pending.
func (r *AttendanceRepository) ClassSheet(ctx context.Context, classID string, date time.Time) ([]models.ClassSheetRow, error) {
	const query = `SELECT e.id AS enrollment_id, s.id AS student_id, s.full_name AS student_name,
        a.status, COALESCE(a.payment_status, '') AS payment_status, e.total_debt
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        LEFT JOIN attendances a ON a.enrollment_id = e.id AND a.date = $2
        WHERE e.class_id = $1 AND e.status = 'ACTIVE'
        ORDER BY s.full_name ASC`
	var rows []models.ClassSheetRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, date); err != nil {
		return nil, fmt.Errorf("class sheet: %w", err)
	}
	return rows, nil
}

// CountByStatus returns how many records in a class and date range hold each
// attendance status.
func (r *AttendanceRepository) CountByStatus(ctx context.Context, classID string, from, to time.Time) (map[models.AttendanceStatus]int, error) {
	const query = `SELECT a.status, COUNT(*) AS total
        FROM attendances a
        JOIN enrollments e ON e.id = a.enrollment_id
        WHERE e.class_id = $1 AND a.date BETWEEN $2 AND $3
        GROUP BY a.status`
	rows, err := r.db.QueryxContext(ctx, query, classID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count attendance by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AttendanceStatus]int)
	for rows.Next() {
		var status models.AttendanceStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan attendance count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}
