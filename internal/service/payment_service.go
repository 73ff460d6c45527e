package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/repository"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

type paymentStore interface {
	SetPayment(ctx context.Context, attendanceID string, decide repository.PaymentDecision) (*models.Attendance, billing.Outcome, error)
	Settle(ctx context.Context, enrollmentID string, decide repository.SettleDecision) (*models.Enrollment, billing.Outcome, error)
	PayStudent(ctx context.Context, studentID string, decide repository.PayoutDecision) ([]billing.Allocation, decimal.Decimal, error)
}

type paymentAttendanceReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
}

type paymentEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListDebtsByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDebt, error)
}

type receiptRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateStudent(ctx context.Context, studentID string)
}

// PaymentConfig tunes debt summary caching.
type PaymentConfig struct {
	SummaryTTL time.Duration
}

// PaymentService owns the settling side of reconciliation: session payment
// toggles, monthly cycle settlement, debt clearance and partial payments.
// Every settling operation writes a receipt row.
type PaymentService struct {
	store       paymentStore
	attendance  paymentAttendanceReader
	enrollments paymentEnrollmentReader
	receipts    receiptRepository
	cache       summaryCache
	metrics     reconciliationMetrics
	engine      billing.Engine
	validator   *validator.Validate
	logger      *zap.Logger
	config      PaymentConfig
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(
	store paymentStore,
	attendance paymentAttendanceReader,
	enrollments paymentEnrollmentReader,
	receipts receiptRepository,
	cache summaryCache,
	metrics reconciliationMetrics,
	engine billing.Engine,
	validate *validator.Validate,
	logger *zap.Logger,
	config PaymentConfig,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.SummaryTTL <= 0 {
		config.SummaryTTL = 5 * time.Minute
	}
	return &PaymentService{
		store:       store,
		attendance:  attendance,
		enrollments: enrollments,
		receipts:    receipts,
		cache:       cache,
		metrics:     metrics,
		engine:      engine,
		validator:   validate,
		logger:      logger,
		config:      config,
	}
}

// SetAttendancePayment toggles one session charge between paid, unpaid and
// debt, adjusting enrollment debt symmetrically.
func (s *PaymentService) SetAttendancePayment(ctx context.Context, actor models.JWTClaims, attendanceID string, req models.SetAttendancePaymentRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	record, err := s.attendance.FindByID(ctx, attendanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	row, outcome, err := s.store.SetPayment(ctx, attendanceID, func(enr models.Enrollment, course models.Course, att models.Attendance) (billing.Outcome, error) {
		return s.engine.ApplyPaymentToggle(enr, course, att, req.Status)
	})
	if err != nil {
		if errors.Is(err, billing.ErrNotSessionBilled) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment toggles apply to session-billed enrollments only")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session payment")
	}

	if s.metrics != nil {
		s.metrics.ObserveReconciliation("session_payment")
	}
	if outcome.IsZero() {
		return row, nil
	}
	if s.cache != nil {
		s.cache.InvalidateStudent(ctx, record.StudentID)
	}

	// A settled charge earns a receipt; reopening one does not.
	if outcome.SetLastPayment {
		amount := outcome.DebtDelta.Neg()
		if amount.Sign() <= 0 && outcome.ChargeAmount != nil {
			amount = *outcome.ChargeAmount
		}
		s.writeReceipt(ctx, &models.Payment{
			StudentID:    record.StudentID,
			EnrollmentID: &record.EnrollmentID,
			Amount:       amount,
			Kind:         models.PaymentKindSession,
			ReceivedBy:   actor.UserID,
		})
	}
	return row, nil
}

// ProcessMonthlyPayment settles the current monthly cycle of an enrollment:
// status paid, counter reset, debt cleared, receipt written.
func (s *PaymentService) ProcessMonthlyPayment(ctx context.Context, actor models.JWTClaims, enrollmentID string, req models.MonthlyPaymentRequest) (*models.Enrollment, error) {
	detail, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	updated, _, err := s.store.Settle(ctx, enrollmentID, func(enr models.Enrollment) (billing.Outcome, error) {
		return s.engine.ApplyMonthlyPayment(enr)
	})
	if err != nil {
		if errors.Is(err, billing.ErrNotMonthlyBilled) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "monthly payments apply to monthly-billed enrollments only")
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to process monthly payment")
	}

	if s.metrics != nil {
		s.metrics.ObserveReconciliation("monthly_payment")
	}
	if s.cache != nil {
		s.cache.InvalidateStudent(ctx, detail.StudentID)
	}
	s.writeReceipt(ctx, &models.Payment{
		StudentID:    detail.StudentID,
		EnrollmentID: &detail.ID,
		Amount:       detail.MonthlyPrice,
		Kind:         models.PaymentKindMonthly,
		ReceivedBy:   actor.UserID,
		Notes:        req.Notes,
	})
	return updated, nil
}

// ResetMonthlyCycle performs the same hard reset as a monthly payment but
// records no receipt. Admin correction path.
func (s *PaymentService) ResetMonthlyCycle(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	detail, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	updated, _, err := s.store.Settle(ctx, enrollmentID, func(enr models.Enrollment) (billing.Outcome, error) {
		return s.engine.ApplyMonthlyPayment(enr)
	})
	if err != nil {
		if errors.Is(err, billing.ErrNotMonthlyBilled) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cycle resets apply to monthly-billed enrollments only")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset monthly cycle")
	}

	if s.metrics != nil {
		s.metrics.ObserveReconciliation("cycle_reset")
	}
	if s.cache != nil {
		s.cache.InvalidateStudent(ctx, detail.StudentID)
	}
	return updated, nil
}

// ClearEnrollmentDebt zeroes an enrollment's debt and records a clearance
// receipt for the amount forgiven.
func (s *PaymentService) ClearEnrollmentDebt(ctx context.Context, actor models.JWTClaims, enrollmentID string, notes *string) (*models.Enrollment, error) {
	detail, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	updated, _, err := s.store.Settle(ctx, enrollmentID, func(enr models.Enrollment) (billing.Outcome, error) {
		return s.engine.ApplyClearDebt(), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear enrollment debt")
	}

	if s.metrics != nil {
		s.metrics.ObserveReconciliation("debt_clearance")
	}
	if s.cache != nil {
		s.cache.InvalidateStudent(ctx, detail.StudentID)
	}
	if detail.TotalDebt.Sign() > 0 {
		s.writeReceipt(ctx, &models.Payment{
			StudentID:    detail.StudentID,
			EnrollmentID: &detail.ID,
			Amount:       detail.TotalDebt,
			Kind:         models.PaymentKindClearance,
			ReceivedBy:   actor.UserID,
			Notes:        notes,
		})
	}
	return updated, nil
}

// PayAmount distributes an arbitrary amount across a student's in-debt
// enrollments, largest debt first, and returns what could not be applied.
func (s *PaymentService) PayAmount(ctx context.Context, actor models.JWTClaims, studentID string, req models.PayAmountRequest) (*models.PayAmountResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.Amount.Sign() <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be positive")
	}

	allocations, remainder, err := s.store.PayStudent(ctx, studentID, func(debts []models.EnrollmentDebt) ([]billing.Allocation, decimal.Decimal) {
		return billing.Distribute(req.Amount, debts)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply payment")
	}

	if s.metrics != nil {
		s.metrics.ObserveReconciliation("partial_payment")
	}

	applied := req.Amount.Sub(remainder)
	if applied.Sign() > 0 {
		if s.cache != nil {
			s.cache.InvalidateStudent(ctx, studentID)
		}
		s.writeReceipt(ctx, &models.Payment{
			StudentID:  studentID,
			Amount:     applied,
			Kind:       models.PaymentKindPartial,
			ReceivedBy: actor.UserID,
			Notes:      req.Notes,
		})
	}

	return &models.PayAmountResult{
		StudentID:   studentID,
		Applied:     applied,
		Remainder:   remainder,
		Allocations: allocations,
	}, nil
}

// DebtSummary returns a student's per-enrollment debts, cached per student
// and invalidated by every reconciliation write.
func (s *PaymentService) DebtSummary(ctx context.Context, studentID string) (*models.StudentDebtSummary, error) {
	key := repository.DebtSummaryCacheKey(studentID)
	if s.cache != nil {
		var cached models.StudentDebtSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	debts, err := s.enrollments.ListDebtsByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student debts")
	}

	summary := &models.StudentDebtSummary{
		StudentID:   studentID,
		TotalDebt:   decimal.Zero,
		Enrollments: debts,
		GeneratedAt: time.Now().UTC(),
	}
	for _, d := range debts {
		summary.TotalDebt = summary.TotalDebt.Add(d.TotalDebt)
		summary.DebtSessions += d.DebtSessions
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.config.SummaryTTL); err != nil {
			s.logger.Warn("failed to cache debt summary", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return summary, nil
}

// ListReceipts returns payment receipts for the given filter.
func (s *PaymentService) ListReceipts(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentDetail, int, error) {
	receipts, total, err := s.receipts.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return receipts, total, nil
}

func (s *PaymentService) loadEnrollment(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// writeReceipt records a receipt row. A failed receipt is logged, not
// propagated; the reconciliation write already committed.
func (s *PaymentService) writeReceipt(ctx context.Context, payment *models.Payment) {
	if s.receipts == nil {
		return
	}
	if err := s.receipts.Create(ctx, payment); err != nil {
		s.logger.Error("failed to record payment receipt",
			zap.String("student_id", payment.StudentID),
			zap.String("kind", string(payment.Kind)),
			zap.Error(err))
	}
}
