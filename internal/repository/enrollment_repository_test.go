package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academy-hq/academy-api/internal/models"
)

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryListDebtsByStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "class_name", "payment_type", "total_debt", "debt_sessions", "unit_price"}).
		AddRow("enr-1", "Math A", "SESSION", "1200", 3, "400").
		AddRow("enr-2", "Physics B", "MONTHLY", "3000", 0, "3000")
	mock.ExpectQuery(regexp.QuoteMeta("CASE WHEN e.payment_type = 'MONTHLY' THEN co.monthly_price ELSE co.session_price END AS unit_price")).
		WithArgs("student-1").
		WillReturnRows(rows)

	debts, err := repo.ListDebtsByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, debts, 2)
	assert.Equal(t, "enr-1", debts[0].EnrollmentID)
	assert.Equal(t, "400", debts[0].UnitPrice.String())
	assert.Equal(t, models.PaymentMonthly, debts[1].PaymentType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	enr := &models.Enrollment{StudentID: "student-1", ClassID: "class-1", PaymentType: models.PaymentSession}
	err := repo.Create(context.Background(), enr)
	require.NoError(t, err)
	assert.NotEmpty(t, enr.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enr.Status)
	assert.Equal(t, models.MonthlyPending, enr.MonthlyPaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCloseMissing(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = 'INACTIVE', left_at = $2 WHERE id = $1 AND status = 'ACTIVE'")).
		WithArgs("enr-missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Close(context.Background(), "enr-missing", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
