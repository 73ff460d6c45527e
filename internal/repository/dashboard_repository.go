package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/academy-hq/academy-api/internal/models"
)

// DashboardRepository aggregates the operational numbers for the landing
// page. Reads only; everything here is derivable from the ledger tables.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Summary computes the aggregate snapshot for a civil date.
func (r *DashboardRepository) Summary(ctx context.Context, date time.Time, cycleSessions int) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{Date: date, GeneratedAt: time.Now().UTC()}

	const counts = `SELECT
        (SELECT COUNT(*) FROM students WHERE active = true) AS active_students,
        (SELECT COUNT(*) FROM enrollments WHERE status = 'ACTIVE') AS active_enrollments,
        (SELECT COUNT(*) FROM attendances WHERE date = $1) AS marked_today,
        (SELECT COUNT(*) FROM attendances WHERE date = $1 AND status = 'PRESENT') AS present_today,
        (SELECT COUNT(*) FROM enrollments WHERE status = 'ACTIVE' AND payment_type = 'MONTHLY' AND monthly_payment_status = 'PENDING' AND monthly_sessions_attended >= $2) AS due_monthly_cycles`
	row := r.db.QueryRowxContext(ctx, counts, date, cycleSessions)
	if err := row.Scan(&summary.ActiveStudents, &summary.ActiveEnrollments, &summary.MarkedToday, &summary.PresentToday, &summary.DueMonthlyCycles); err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	const debt = `SELECT COALESCE(SUM(total_debt), 0) AS outstanding_debt,
        COUNT(DISTINCT student_id) FILTER (WHERE total_debt > 0) AS students_in_debt
        FROM enrollments WHERE status = 'ACTIVE'`
	var outstanding decimal.Decimal
	var inDebt int
	if err := r.db.QueryRowxContext(ctx, debt).Scan(&outstanding, &inDebt); err != nil {
		return nil, fmt.Errorf("dashboard debt totals: %w", err)
	}
	summary.OutstandingDebt = outstanding
	summary.StudentsInDebt = inDebt

	return summary, nil
}
