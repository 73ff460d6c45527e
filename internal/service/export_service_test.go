package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/models"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

type mockExportStudents struct {
	students map[string]models.StudentDetail
}

func (m *mockExportStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	var out []models.StudentDetail
	for _, s := range m.students {
		if filter.InDebt != nil && *filter.InDebt && s.TotalDebt.Sign() <= 0 {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

type mockExportAttendance struct {
	records []models.AttendanceRecord
}

func (m *mockExportAttendance) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	return m.records, len(m.records), nil
}

type mockExportPayments struct {
	receipts []models.PaymentDetail
}

func (m *mockExportPayments) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	return m.receipts, len(m.receipts), nil
}

func exportFixtures() *ExportService {
	amount := decimal.NewFromInt(400)
	students := &mockExportStudents{students: map[string]models.StudentDetail{
		"stu-1": {
			Student:   models.Student{ID: "stu-1", RegistrationNo: "R-001", FullName: "Amine", Active: true},
			TotalDebt: decimal.NewFromInt(800),
		},
	}}
	attendances := &mockExportAttendance{records: []models.AttendanceRecord{
		{
			Attendance: models.Attendance{
				ID:            "att-1",
				Date:          time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
				Status:        models.AttendancePresent,
				PaymentStatus: models.SessionUnpaid,
				PaymentAmount: &amount,
			},
			ClassName: "Math A",
		},
	}}
	payments := &mockExportPayments{receipts: []models.PaymentDetail{
		{
			Payment: models.Payment{
				ID:         "pay-1",
				StudentID:  "stu-1",
				Amount:     decimal.NewFromInt(400),
				Kind:       models.PaymentKindSession,
				ReceivedAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			},
			StudentName: "Amine",
		},
	}}
	return NewExportService(students, attendances, payments, nil, nil, zap.NewNop())
}

func TestExportServiceStudentStatementCSV(t *testing.T) {
	svc := exportFixtures()

	file, err := svc.StudentStatement(context.Background(), "stu-1", "csv", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "statement_R-001.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	body := string(file.Data)
	assert.Contains(t, body, "Date,Class,Status,Charge,Amount (DA)")
	assert.Contains(t, body, "2026-03-09,Math A,PRESENT,UNPAID,400.00")
}

func TestExportServiceStudentStatementPDF(t *testing.T) {
	svc := exportFixtures()

	file, err := svc.StudentStatement(context.Background(), "stu-1", "pdf", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestExportServicePaymentHistoryTotals(t *testing.T) {
	svc := exportFixtures()

	file, err := svc.PaymentHistory(context.Background(), "stu-1", "csv", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, string(file.Data), "TOTAL")
	assert.Contains(t, string(file.Data), "400.00")
}

func TestExportServiceDebtReport(t *testing.T) {
	svc := exportFixtures()

	file, err := svc.DebtReport(context.Background(), "csv")
	require.NoError(t, err)
	body := string(file.Data)
	assert.Contains(t, body, "R-001")
	assert.Contains(t, body, "800.00")
}

func TestExportServiceUnknownFormat(t *testing.T) {
	svc := exportFixtures()

	_, err := svc.StudentStatement(context.Background(), "stu-1", "xlsx", nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceUnknownStudent(t *testing.T) {
	svc := exportFixtures()

	_, err := svc.StudentStatement(context.Background(), "missing", "csv", nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
