package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/models"
)

func newStoreMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "class_id", "payment_type", "monthly_sessions_attended", "monthly_payment_status", "total_debt", "debt_sessions", "last_payment_date", "joined_at", "left_at", "status"}).
		AddRow("enr-1", "student-1", "class-1", "SESSION", 0, "PENDING", "0", 0, nil, time.Now(), nil, "ACTIVE")
}

func courseRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "level", "pricing_type", "session_price", "monthly_price", "active", "created_at", "updated_at"}).
		AddRow("course-1", "Math", "A1", "SESSION", "400", "0", true, time.Now(), time.Now())
}

func TestReconciliationStoreMarkFirstTime(t *testing.T) {
	db, mock, cleanup := newStoreMock(t)
	defer cleanup()
	store := NewReconciliationStore(db)

	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, class_id, payment_type, monthly_sessions_attended, monthly_payment_status, total_debt, debt_sessions, last_payment_date, joined_at, left_at, status FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("enr-1").
		WillReturnRows(enrollmentRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses co JOIN classes c ON c.course_id = co.id WHERE c.id = $1")).
		WithArgs("class-1").
		WillReturnRows(courseRows())
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendances WHERE enrollment_id = $1 AND date = $2 FOR UPDATE")).
		WithArgs("enr-1", date).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO attendances").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET total_debt = GREATEST(total_debt + $2, 0), debt_sessions = GREATEST(debt_sessions + $3, 0) WHERE id = $1")).
		WithArgs("enr-1", decimal.NewFromInt(400), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	engine := billing.NewEngine(billing.DefaultCycleSessions)
	row, outcome, err := store.Mark(context.Background(), MarkParams{
		EnrollmentID: "enr-1",
		Date:         date,
		Status:       models.AttendancePresent,
		MarkedBy:     "user-1",
		Decide: func(enr models.Enrollment, course models.Course, prev *models.Attendance) (billing.Outcome, error) {
			return engine.ApplyMark(enr, course, prev, models.AttendancePresent), nil
		},
	})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, models.SessionUnpaid, row.PaymentStatus)
	require.NotNil(t, row.PaymentAmount)
	assert.Equal(t, "400", row.PaymentAmount.String())
	assert.True(t, outcome.DebtDelta.Equal(decimal.NewFromInt(400)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationStoreMarkNoOpSkipsEnrollmentWrite(t *testing.T) {
	db, mock, cleanup := newStoreMock(t)
	defer cleanup()
	store := NewReconciliationStore(db)

	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := sqlmock.NewRows([]string{"id", "enrollment_id", "date", "status", "payment_status", "payment_amount", "payment_date", "marked_by", "marked_at", "notes", "created_at", "updated_at"}).
		AddRow("att-1", "enr-1", date, "PRESENT", "UNPAID", "400", nil, "user-1", time.Now(), nil, time.Now(), time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("FROM enrollments WHERE id = \\$1 FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRows())
	mock.ExpectQuery("FROM courses co JOIN classes c").
		WithArgs("class-1").
		WillReturnRows(courseRows())
	mock.ExpectQuery("FROM attendances WHERE enrollment_id").
		WithArgs("enr-1", date).
		WillReturnRows(existing)
	mock.ExpectExec("UPDATE attendances SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// zero outcome: no enrollment UPDATE expected
	mock.ExpectCommit()

	engine := billing.NewEngine(billing.DefaultCycleSessions)
	_, outcome, err := store.Mark(context.Background(), MarkParams{
		EnrollmentID: "enr-1",
		Date:         date,
		Status:       models.AttendanceAbsent,
		MarkedBy:     "user-1",
		Decide: func(enr models.Enrollment, course models.Course, prev *models.Attendance) (billing.Outcome, error) {
			return engine.ApplyMark(enr, course, prev, models.AttendanceAbsent), nil
		},
	})
	require.NoError(t, err)
	assert.True(t, outcome.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationStoreSettleMonthlyPayment(t *testing.T) {
	db, mock, cleanup := newStoreMock(t)
	defer cleanup()
	store := NewReconciliationStore(db)

	locked := sqlmock.NewRows([]string{"id", "student_id", "class_id", "payment_type", "monthly_sessions_attended", "monthly_payment_status", "total_debt", "debt_sessions", "last_payment_date", "joined_at", "left_at", "status"}).
		AddRow("enr-2", "student-1", "class-2", "MONTHLY", 4, "PENDING", "3000", 0, nil, time.Now(), nil, "ACTIVE")
	after := sqlmock.NewRows([]string{"id", "student_id", "class_id", "payment_type", "monthly_sessions_attended", "monthly_payment_status", "total_debt", "debt_sessions", "last_payment_date", "joined_at", "left_at", "status"}).
		AddRow("enr-2", "student-1", "class-2", "MONTHLY", 0, "PAID", "0", 0, time.Now(), time.Now(), nil, "ACTIVE")

	mock.ExpectBegin()
	mock.ExpectQuery("FROM enrollments WHERE id = \\$1 FOR UPDATE").
		WithArgs("enr-2").
		WillReturnRows(locked)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET total_debt = 0, debt_sessions = 0, monthly_sessions_attended = 0, monthly_payment_status = $2, last_payment_date = $3 WHERE id = $1")).
		WithArgs("enr-2", models.MonthlyPaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM enrollments WHERE id = \\$1").
		WithArgs("enr-2").
		WillReturnRows(after)
	mock.ExpectCommit()

	engine := billing.NewEngine(billing.DefaultCycleSessions)
	updated, outcome, err := store.Settle(context.Background(), "enr-2", func(enr models.Enrollment) (billing.Outcome, error) {
		return engine.ApplyMonthlyPayment(enr)
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, models.MonthlyPaid, updated.MonthlyPaymentStatus)
	assert.Equal(t, 0, updated.MonthlySessionsAttended)
	assert.True(t, outcome.ClearDebt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationStorePayStudent(t *testing.T) {
	db, mock, cleanup := newStoreMock(t)
	defer cleanup()
	store := NewReconciliationStore(db)

	debts := sqlmock.NewRows([]string{"id", "class_name", "payment_type", "total_debt", "debt_sessions", "unit_price"}).
		AddRow("enr-1", "Math A", "SESSION", "800", 2, "400")

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF e").
		WithArgs("student-1").
		WillReturnRows(debts)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET total_debt = GREATEST(total_debt - $2, 0), debt_sessions = GREATEST(debt_sessions - $3, 0), last_payment_date = $4 WHERE id = $1")).
		WithArgs("enr-1", decimal.NewFromInt(800), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendances SET payment_status = 'PAID'")).
		WithArgs("enr-1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	allocations, remainder, err := store.PayStudent(context.Background(), "student-1", func(debts []models.EnrollmentDebt) ([]billing.Allocation, decimal.Decimal) {
		return billing.Distribute(decimal.NewFromInt(800), debts)
	})
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, 2, allocations[0].SessionsReduced)
	assert.True(t, remainder.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconciliationStoreUnmarkLatest(t *testing.T) {
	db, mock, cleanup := newStoreMock(t)
	defer cleanup()
	store := NewReconciliationStore(db)

	amount := decimal.NewFromInt(400)
	latest := sqlmock.NewRows([]string{"id", "enrollment_id", "date", "status", "payment_status", "payment_amount", "payment_date", "marked_by", "marked_at", "notes", "created_at", "updated_at"}).
		AddRow("att-9", "enr-1", time.Now(), "PRESENT", "UNPAID", amount, nil, "user-1", time.Now(), nil, time.Now(), time.Now())

	mock.ExpectBegin()
	mock.ExpectQuery("FROM enrollments WHERE id = \\$1 FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(enrollmentRows())
	mock.ExpectQuery("FROM courses co JOIN classes c").
		WithArgs("class-1").
		WillReturnRows(courseRows())
	mock.ExpectQuery("ORDER BY date DESC, marked_at DESC LIMIT 1 FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(latest)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendances WHERE id = $1")).
		WithArgs("att-9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE enrollments SET total_debt = GREATEST").
		WithArgs("enr-1", decimal.NewFromInt(-400), -1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	engine := billing.NewEngine(billing.DefaultCycleSessions)
	removed, outcome, err := store.UnmarkLatest(context.Background(), "enr-1", func(enr models.Enrollment, course models.Course, rm models.Attendance) billing.Outcome {
		return engine.ApplyUnmark(enr, course, rm)
	})
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "att-9", removed.ID)
	assert.Equal(t, -1, outcome.SessionDelta)
	assert.NoError(t, mock.ExpectationsWereMet())
}
