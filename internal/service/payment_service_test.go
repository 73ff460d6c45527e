package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/repository"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

type mockPaymentStore struct {
	enrollment models.Enrollment
	course     models.Course
	attendance models.Attendance
	debts      []models.EnrollmentDebt
}

func (m *mockPaymentStore) SetPayment(ctx context.Context, attendanceID string, decide repository.PaymentDecision) (*models.Attendance, billing.Outcome, error) {
	outcome, err := decide(m.enrollment, m.course, m.attendance)
	if err != nil {
		return nil, billing.Outcome{}, err
	}
	row := m.attendance
	if outcome.PaymentStatus != nil {
		row.PaymentStatus = *outcome.PaymentStatus
	}
	return &row, outcome, nil
}

func (m *mockPaymentStore) Settle(ctx context.Context, enrollmentID string, decide repository.SettleDecision) (*models.Enrollment, billing.Outcome, error) {
	outcome, err := decide(m.enrollment)
	if err != nil {
		return nil, billing.Outcome{}, err
	}
	updated := m.enrollment
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

func (m *mockPaymentStore) PayStudent(ctx context.Context, studentID string, decide repository.PayoutDecision) ([]billing.Allocation, decimal.Decimal, error) {
	allocations, remainder := decide(m.debts)
	return allocations, remainder, nil
}

type mockPaymentAttendanceReader struct {
	records map[string]models.AttendanceRecord
}

func (m *mockPaymentAttendanceReader) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	if rec, ok := m.records[id]; ok {
		return &rec, nil
	}
	return nil, sql.ErrNoRows
}

type mockPaymentEnrollmentReader struct {
	enrollments map[string]models.EnrollmentDetail
	debts       []models.EnrollmentDebt
	debtCalls   int
}

func (m *mockPaymentEnrollmentReader) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentEnrollmentReader) ListDebtsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDebt, error) {
	m.debtCalls++
	return m.debts, nil
}

type mockReceiptRepo struct {
	created []models.Payment
}

func (m *mockReceiptRepo) Create(ctx context.Context, payment *models.Payment) error {
	m.created = append(m.created, *payment)
	return nil
}

func (m *mockReceiptRepo) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	return nil, 0, nil
}

type mockSummaryCache struct {
	entries     map[string][]byte
	invalidated []string
}

func (m *mockSummaryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockSummaryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockSummaryCache) InvalidateStudent(ctx context.Context, studentID string) {
	m.invalidated = append(m.invalidated, studentID)
}

func newPaymentService(store *mockPaymentStore, attendance *mockPaymentAttendanceReader, enrollments *mockPaymentEnrollmentReader) (*PaymentService, *mockReceiptRepo, *mockSummaryCache) {
	receipts := &mockReceiptRepo{}
	cache := &mockSummaryCache{}
	svc := NewPaymentService(store, attendance, enrollments, receipts, cache, &mockMetrics{},
		billing.NewEngine(4), validator.New(), zap.NewNop(), PaymentConfig{})
	return svc, receipts, cache
}

func TestPaymentServiceSetAttendancePaymentSettlesCharge(t *testing.T) {
	amount := decimal.NewFromInt(400)
	store := &mockPaymentStore{
		enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1", PaymentType: models.PaymentSession, TotalDebt: amount},
		course:     models.Course{ID: "course-1", SessionPrice: amount},
		attendance: models.Attendance{ID: "att-1", EnrollmentID: "enr-1", PaymentStatus: models.SessionUnpaid, PaymentAmount: &amount},
	}
	attendance := &mockPaymentAttendanceReader{records: map[string]models.AttendanceRecord{
		"att-1": {Attendance: store.attendance, StudentID: "stu-1", ClassName: "Math A"},
	}}
	svc, receipts, cache := newPaymentService(store, attendance, &mockPaymentEnrollmentReader{})

	actor := models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}
	row, err := svc.SetAttendancePayment(context.Background(), actor, "att-1", models.SetAttendancePaymentRequest{Status: models.SessionPaid})
	require.NoError(t, err)
	assert.Equal(t, models.SessionPaid, row.PaymentStatus)
	assert.Equal(t, []string{"stu-1"}, cache.invalidated)

	require.Len(t, receipts.created, 1)
	receipt := receipts.created[0]
	assert.Equal(t, models.PaymentKindSession, receipt.Kind)
	assert.True(t, receipt.Amount.Equal(amount))
	require.NotNil(t, receipt.EnrollmentID)
	assert.Equal(t, "enr-1", *receipt.EnrollmentID)
}

func TestPaymentServiceSetAttendancePaymentReopenWritesNoReceipt(t *testing.T) {
	amount := decimal.NewFromInt(400)
	store := &mockPaymentStore{
		enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1", PaymentType: models.PaymentSession},
		course:     models.Course{ID: "course-1", SessionPrice: amount},
		attendance: models.Attendance{ID: "att-1", EnrollmentID: "enr-1", PaymentStatus: models.SessionPaid, PaymentAmount: &amount},
	}
	attendance := &mockPaymentAttendanceReader{records: map[string]models.AttendanceRecord{
		"att-1": {Attendance: store.attendance, StudentID: "stu-1"},
	}}
	svc, receipts, _ := newPaymentService(store, attendance, &mockPaymentEnrollmentReader{})

	actor := models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}
	row, err := svc.SetAttendancePayment(context.Background(), actor, "att-1", models.SetAttendancePaymentRequest{Status: models.SessionUnpaid})
	require.NoError(t, err)
	assert.Equal(t, models.SessionUnpaid, row.PaymentStatus)
	assert.Empty(t, receipts.created)
}

func TestPaymentServiceSetAttendancePaymentMonthlyRejected(t *testing.T) {
	store := &mockPaymentStore{
		enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1", PaymentType: models.PaymentMonthly},
		attendance: models.Attendance{ID: "att-1", EnrollmentID: "enr-1"},
	}
	attendance := &mockPaymentAttendanceReader{records: map[string]models.AttendanceRecord{
		"att-1": {Attendance: store.attendance, StudentID: "stu-1"},
	}}
	svc, _, _ := newPaymentService(store, attendance, &mockPaymentEnrollmentReader{})

	actor := models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}
	_, err := svc.SetAttendancePayment(context.Background(), actor, "att-1", models.SetAttendancePaymentRequest{Status: models.SessionPaid})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceProcessMonthlyPayment(t *testing.T) {
	price := decimal.NewFromInt(3000)
	store := &mockPaymentStore{
		enrollment: models.Enrollment{
			ID: "enr-1", StudentID: "stu-1",
			PaymentType:             models.PaymentMonthly,
			MonthlySessionsAttended: 4,
			MonthlyPaymentStatus:    models.MonthlyPending,
			TotalDebt:               price,
		},
	}
	enrollments := &mockPaymentEnrollmentReader{enrollments: map[string]models.EnrollmentDetail{
		"enr-1": {Enrollment: store.enrollment, MonthlyPrice: price},
	}}
	svc, receipts, cache := newPaymentService(store, &mockPaymentAttendanceReader{}, enrollments)

	actor := models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin}
	updated, err := svc.ProcessMonthlyPayment(context.Background(), actor, "enr-1", models.MonthlyPaymentRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.MonthlyPaid, updated.MonthlyPaymentStatus)
	assert.Zero(t, updated.MonthlySessionsAttended)
	assert.True(t, updated.TotalDebt.IsZero())
	assert.Equal(t, []string{"stu-1"}, cache.invalidated)

	require.Len(t, receipts.created, 1)
	assert.Equal(t, models.PaymentKindMonthly, receipts.created[0].Kind)
	assert.True(t, receipts.created[0].Amount.Equal(price))
}

func TestPaymentServiceResetMonthlyCycleWritesNoReceipt(t *testing.T) {
	store := &mockPaymentStore{
		enrollment: models.Enrollment{
			ID: "enr-1", StudentID: "stu-1",
			PaymentType:             models.PaymentMonthly,
			MonthlySessionsAttended: 2,
			MonthlyPaymentStatus:    models.MonthlyPending,
		},
	}
	enrollments := &mockPaymentEnrollmentReader{enrollments: map[string]models.EnrollmentDetail{
		"enr-1": {Enrollment: store.enrollment},
	}}
	svc, receipts, _ := newPaymentService(store, &mockPaymentAttendanceReader{}, enrollments)

	updated, err := svc.ResetMonthlyCycle(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Zero(t, updated.MonthlySessionsAttended)
	assert.Empty(t, receipts.created)
}

func TestPaymentServiceClearEnrollmentDebt(t *testing.T) {
	debt := decimal.NewFromInt(1200)
	store := &mockPaymentStore{
		enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1", PaymentType: models.PaymentSession, TotalDebt: debt, DebtSessions: 3},
	}
	enrollments := &mockPaymentEnrollmentReader{enrollments: map[string]models.EnrollmentDetail{
		"enr-1": {Enrollment: store.enrollment},
	}}
	svc, receipts, _ := newPaymentService(store, &mockPaymentAttendanceReader{}, enrollments)

	actor := models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	updated, err := svc.ClearEnrollmentDebt(context.Background(), actor, "enr-1", nil)
	require.NoError(t, err)
	assert.True(t, updated.TotalDebt.IsZero())
	assert.Zero(t, updated.DebtSessions)

	require.Len(t, receipts.created, 1)
	assert.Equal(t, models.PaymentKindClearance, receipts.created[0].Kind)
	assert.True(t, receipts.created[0].Amount.Equal(debt))
}

func TestPaymentServiceClearZeroDebtSkipsReceipt(t *testing.T) {
	store := &mockPaymentStore{
		enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1", PaymentType: models.PaymentSession},
	}
	enrollments := &mockPaymentEnrollmentReader{enrollments: map[string]models.EnrollmentDetail{
		"enr-1": {Enrollment: store.enrollment},
	}}
	svc, receipts, _ := newPaymentService(store, &mockPaymentAttendanceReader{}, enrollments)

	actor := models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	_, err := svc.ClearEnrollmentDebt(context.Background(), actor, "enr-1", nil)
	require.NoError(t, err)
	assert.Empty(t, receipts.created)
}

func TestPaymentServicePayAmount(t *testing.T) {
	store := &mockPaymentStore{
		debts: []models.EnrollmentDebt{
			{EnrollmentID: "enr-1", TotalDebt: decimal.NewFromInt(1200), DebtSessions: 3, UnitPrice: decimal.NewFromInt(400)},
			{EnrollmentID: "enr-2", TotalDebt: decimal.NewFromInt(400), DebtSessions: 1, UnitPrice: decimal.NewFromInt(400)},
		},
	}
	svc, receipts, cache := newPaymentService(store, &mockPaymentAttendanceReader{}, &mockPaymentEnrollmentReader{})

	actor := models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}
	result, err := svc.PayAmount(context.Background(), actor, "stu-1", models.PayAmountRequest{Amount: decimal.NewFromInt(1400)})
	require.NoError(t, err)
	assert.True(t, result.Applied.Equal(decimal.NewFromInt(1400)))
	assert.True(t, result.Remainder.IsZero())
	assert.Equal(t, []string{"stu-1"}, cache.invalidated)

	require.Len(t, receipts.created, 1)
	assert.Equal(t, models.PaymentKindPartial, receipts.created[0].Kind)
	assert.True(t, receipts.created[0].Amount.Equal(decimal.NewFromInt(1400)))
}

func TestPaymentServicePayAmountRejectsNonPositive(t *testing.T) {
	svc, _, _ := newPaymentService(&mockPaymentStore{}, &mockPaymentAttendanceReader{}, &mockPaymentEnrollmentReader{})

	actor := models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}
	_, err := svc.PayAmount(context.Background(), actor, "stu-1", models.PayAmountRequest{Amount: decimal.NewFromInt(-100)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentServicePayAmountOverpaymentReturnsRemainder(t *testing.T) {
	store := &mockPaymentStore{
		debts: []models.EnrollmentDebt{
			{EnrollmentID: "enr-1", TotalDebt: decimal.NewFromInt(400), DebtSessions: 1, UnitPrice: decimal.NewFromInt(400)},
		},
	}
	svc, receipts, _ := newPaymentService(store, &mockPaymentAttendanceReader{}, &mockPaymentEnrollmentReader{})

	actor := models.JWTClaims{UserID: "user-1", Role: models.RoleStaff}
	result, err := svc.PayAmount(context.Background(), actor, "stu-1", models.PayAmountRequest{Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.True(t, result.Applied.Equal(decimal.NewFromInt(400)))
	assert.True(t, result.Remainder.Equal(decimal.NewFromInt(600)))
	require.Len(t, receipts.created, 1)
	assert.True(t, receipts.created[0].Amount.Equal(decimal.NewFromInt(400)))
}

func TestPaymentServiceDebtSummaryCaching(t *testing.T) {
	enrollments := &mockPaymentEnrollmentReader{
		debts: []models.EnrollmentDebt{
			{EnrollmentID: "enr-1", ClassName: "Math A", TotalDebt: decimal.NewFromInt(800), DebtSessions: 2, UnitPrice: decimal.NewFromInt(400)},
		},
	}
	svc, _, cache := newPaymentService(&mockPaymentStore{}, &mockPaymentAttendanceReader{}, enrollments)

	summary, err := svc.DebtSummary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, summary.TotalDebt.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, 2, summary.DebtSessions)
	assert.Equal(t, 1, enrollments.debtCalls)
	assert.Contains(t, cache.entries, repository.DebtSummaryCacheKey("stu-1"))

	// Second read is served from cache.
	again, err := svc.DebtSummary(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, again.TotalDebt.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, 1, enrollments.debtCalls)
}
