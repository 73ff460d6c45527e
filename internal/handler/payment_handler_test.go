package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/middleware"
	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/repository"
	"github.com/academy-hq/academy-api/internal/service"
)

type fakePaymentStore struct {
	enrollment models.Enrollment
	debts      []models.EnrollmentDebt
}

func (f *fakePaymentStore) SetPayment(ctx context.Context, attendanceID string, decide repository.PaymentDecision) (*models.Attendance, billing.Outcome, error) {
	return nil, billing.Outcome{}, sql.ErrNoRows
}

func (f *fakePaymentStore) Settle(ctx context.Context, enrollmentID string, decide repository.SettleDecision) (*models.Enrollment, billing.Outcome, error) {
	outcome, err := decide(f.enrollment)
	if err != nil {
		return nil, billing.Outcome{}, err
	}
	updated := f.enrollment
	if outcome.MonthlyStatus != nil {
		updated.MonthlyPaymentStatus = *outcome.MonthlyStatus
	}
	if outcome.ResetCounter {
		updated.MonthlySessionsAttended = 0
	}
	if outcome.ClearDebt {
		updated.TotalDebt = decimal.Zero
		updated.DebtSessions = 0
	}
	return &updated, outcome, nil
}

func (f *fakePaymentStore) PayStudent(ctx context.Context, studentID string, decide repository.PayoutDecision) ([]billing.Allocation, decimal.Decimal, error) {
	allocations, remainder := decide(f.debts)
	return allocations, remainder, nil
}

type fakePaymentAttendanceReader struct {
	records map[string]models.AttendanceRecord
}

func (f *fakePaymentAttendanceReader) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	if r, ok := f.records[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

type fakePaymentEnrollmentReader struct {
	enrollments map[string]models.EnrollmentDetail
	debts       []models.EnrollmentDebt
}

func (f *fakePaymentEnrollmentReader) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := f.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentEnrollmentReader) ListDebtsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDebt, error) {
	return f.debts, nil
}

type fakeReceiptRepo struct {
	created []models.Payment
}

func (f *fakeReceiptRepo) Create(ctx context.Context, payment *models.Payment) error {
	f.created = append(f.created, *payment)
	return nil
}

func (f *fakeReceiptRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	return nil, 0, nil
}

func newPaymentHandler() (*PaymentHandler, *fakeReceiptRepo) {
	debts := []models.EnrollmentDebt{
		{EnrollmentID: "enr-1", TotalDebt: decimal.NewFromInt(800), DebtSessions: 2, UnitPrice: decimal.NewFromInt(400), PaymentType: models.PaymentSession},
	}
	enr := models.Enrollment{ID: "enr-1", StudentID: "stu-1", PaymentType: models.PaymentSession, TotalDebt: decimal.NewFromInt(800), Status: models.EnrollmentStatusActive}

	receipts := &fakeReceiptRepo{}
	svc := service.NewPaymentService(
		&fakePaymentStore{enrollment: enr, debts: debts},
		&fakePaymentAttendanceReader{},
		&fakePaymentEnrollmentReader{
			enrollments: map[string]models.EnrollmentDetail{
				"enr-1": {Enrollment: enr, StudentName: "Amine", ClassName: "Math A"},
			},
			debts: debts,
		},
		receipts,
		nil, nil,
		billing.NewEngine(4), nil, nil,
		service.PaymentConfig{},
	)
	return NewPaymentHandler(svc), receipts
}

func paymentContext(t *testing.T, method, url, body string, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("{}")
	} else {
		reader = bytes.NewBufferString(body)
	}
	c.Request = httptest.NewRequest(method, url, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStaff})
	return c, rec
}

func TestPaymentHandlerPayAmountSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, receipts := newPaymentHandler()

	c, rec := paymentContext(t, http.MethodPost, "/payments/students/stu-1/pay",
		`{"amount":"800"}`, gin.Params{{Key: "studentId", Value: "stu-1"}})
	handler.PayAmount(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.PayAmountResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Applied.Equal(decimal.NewFromInt(800)))
	assert.True(t, envelope.Data.Remainder.IsZero())
	require.Len(t, receipts.created, 1)
	assert.Equal(t, models.PaymentKindPartial, receipts.created[0].Kind)
}

func TestPaymentHandlerPayAmountRejectsNonPositive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newPaymentHandler()

	c, rec := paymentContext(t, http.MethodPost, "/payments/students/stu-1/pay",
		`{"amount":"0"}`, gin.Params{{Key: "studentId", Value: "stu-1"}})
	handler.PayAmount(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentHandlerSetAttendancePaymentNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newPaymentHandler()

	c, rec := paymentContext(t, http.MethodPut, "/payments/attendance/missing",
		`{"status":"PAID"}`, gin.Params{{Key: "attendanceId", Value: "missing"}})
	handler.SetAttendancePayment(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentHandlerClearDebtWritesClearanceReceipt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, receipts := newPaymentHandler()

	c, rec := paymentContext(t, http.MethodPost, "/payments/enrollments/enr-1/clear-debt",
		"", gin.Params{{Key: "enrollmentId", Value: "enr-1"}})
	handler.ClearEnrollmentDebt(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, receipts.created, 1)
	assert.Equal(t, models.PaymentKindClearance, receipts.created[0].Kind)
	assert.True(t, receipts.created[0].Amount.Equal(decimal.NewFromInt(800)))
}
