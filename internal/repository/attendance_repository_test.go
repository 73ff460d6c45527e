package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academy-hq/academy-api/internal/models"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryClassSheet(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"enrollment_id", "student_id", "student_name", "status", "payment_status", "total_debt"}).
		AddRow("enr-1", "student-1", "Amine", "PRESENT", "UNPAID", "400").
		AddRow("enr-2", "student-2", "Lina", nil, "", "0")
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN attendances a ON a.enrollment_id = e.id AND a.date = $2")).
		WithArgs("class-1", date).
		WillReturnRows(rows)

	sheet, err := repo.ClassSheet(context.Background(), "class-1", date)
	require.NoError(t, err)
	require.Len(t, sheet, 2)
	require.NotNil(t, sheet[0].Status)
	assert.Equal(t, models.AttendancePresent, *sheet[0].Status)
	assert.Nil(t, sheet[1].Status, "unmarked student keeps a nil status")
	assert.Equal(t, models.SessionUncharged, sheet[1].PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	status := models.AttendancePresent
	unpaid := models.SessionUnpaid
	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "date", "status", "payment_status", "payment_amount", "payment_date", "marked_by", "marked_at", "notes", "created_at", "updated_at", "student_id", "student_name", "class_id", "class_name"}).
		AddRow("att-1", "enr-1", time.Now(), "PRESENT", "UNPAID", "400", nil, "user-1", time.Now(), nil, time.Now(), time.Now(), "student-1", "Amine", "class-1", "Math A")
	mock.ExpectQuery(regexp.QuoteMeta("a.status = $2 AND a.payment_status = $3")).
		WithArgs("enr-1", status, unpaid).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs("enr-1", status, unpaid).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.AttendanceFilter{
		EnrollmentID:  "enr-1",
		Status:        &status,
		PaymentStatus: &unpaid,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Amine", records[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow("PRESENT", 10).
		AddRow("ABSENT", 3)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY a.status")).
		WithArgs("class-1", from, to).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "class-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 10, counts[models.AttendancePresent])
	assert.Equal(t, 3, counts[models.AttendanceAbsent])
	assert.NoError(t, mock.ExpectationsWereMet())
}
