package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/models"
	"github.com/academy-hq/academy-api/internal/repository"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

type reconciliationStore interface {
	Mark(ctx context.Context, p repository.MarkParams) (*models.Attendance, billing.Outcome, error)
	UnmarkLatest(ctx context.Context, enrollmentID string, decide repository.UnmarkDecision) (*models.Attendance, billing.Outcome, error)
}

type attendanceEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type attendanceClassReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
}

type attendanceReader interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	ClassSheet(ctx context.Context, classID string, date time.Time) ([]models.ClassSheetRow, error)
}

type reconciliationCache interface {
	InvalidateStudent(ctx context.Context, studentID string)
}

type notifier interface {
	Dispatch(ctx context.Context, n Notification)
}

type reconciliationMetrics interface {
	ObserveReconciliation(operation string)
}

// AttendanceConfig tunes the marking rules.
type AttendanceConfig struct {
	Zone          *time.Location
	WindowMargin  time.Duration
	DebtSoftBlock bool
}

// AttendanceService coordinates attendance marking: time-window validation,
// the debt soft block, the billing engine and the reconciliation store.
type AttendanceService struct {
	store       reconciliationStore
	enrollments attendanceEnrollmentReader
	classes     attendanceClassReader
	reader      attendanceReader
	cache       reconciliationCache
	notify      notifier
	metrics     reconciliationMetrics
	engine      billing.Engine
	clock       billing.Clock
	validator   *validator.Validate
	logger      *zap.Logger
	config      AttendanceConfig
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(
	store reconciliationStore,
	enrollments attendanceEnrollmentReader,
	classes attendanceClassReader,
	reader attendanceReader,
	cache reconciliationCache,
	notify notifier,
	metrics reconciliationMetrics,
	engine billing.Engine,
	clock billing.Clock,
	validate *validator.Validate,
	logger *zap.Logger,
	config AttendanceConfig,
) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Zone == nil {
		config.Zone = billing.DefaultZone
	}
	if config.WindowMargin <= 0 {
		config.WindowMargin = 30 * time.Minute
	}
	if clock == nil {
		clock = billing.ZoneClock(config.Zone)
	}
	return &AttendanceService{
		store:       store,
		enrollments: enrollments,
		classes:     classes,
		reader:      reader,
		cache:       cache,
		notify:      notify,
		metrics:     metrics,
		engine:      engine,
		clock:       clock,
		validator:   validate,
		logger:      logger,
		config:      config,
	}
}

// Mark records one attendance mark, applying window validation, the debt
// soft block and the billing rules in one transaction.
func (s *AttendanceService) Mark(ctx context.Context, actor models.JWTClaims, req models.MarkAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	enr, err := s.loadActiveEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	class, err := s.classes.FindByID(ctx, enr.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	date, err := s.resolveDate(req.Date)
	if err != nil {
		return nil, err
	}

	if err := s.checkWindow(class.Class, actor, req.Force); err != nil {
		return nil, err
	}
	if err := s.checkDebtBlock(enr, req.AcknowledgeDebt); err != nil {
		return nil, err
	}

	params := repository.MarkParams{
		EnrollmentID: enr.ID,
		Date:         date,
		Status:       req.Status,
		MarkedBy:     actor.UserID,
		Notes:        req.Notes,
		Decide: func(locked models.Enrollment, course models.Course, prev *models.Attendance) (billing.Outcome, error) {
			return s.engine.ApplyMark(locked, course, prev, req.Status), nil
		},
	}
	row, outcome, err := s.store.Mark(ctx, params)
	if errors.Is(err, appErrors.ErrConcurrencyConflict) {
		// A concurrent first mark won the insert; the retry lands on the
		// existing row as an update. One retry is enough because the row
		// exists from here on.
		s.logger.Warn("attendance insert lost race, retrying as update",
			zap.String("enrollment_id", enr.ID))
		row, outcome, err = s.store.Mark(ctx, params)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}

	s.afterReconciliation(ctx, "mark", enr, outcome)
	return row, nil
}

// BulkMark marks a whole class sheet. Atomic mode stops and fails on the
// first problem entry; partialOnError records conflicts and keeps going.
func (s *AttendanceService) BulkMark(ctx context.Context, actor models.JWTClaims, req models.BulkMarkAttendanceRequest) (*models.BulkMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	mode := req.Mode
	if mode == "" {
		mode = models.BulkModeAtomic
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	date, err := s.resolveDate(req.Date)
	if err != nil {
		return nil, err
	}

	// One window decision covers the whole sheet.
	if err := s.checkWindow(class.Class, actor, req.Force); err != nil {
		return nil, err
	}

	result := &models.BulkMarkResult{}
	for _, entry := range req.Entries {
		enr, err := s.loadActiveEnrollment(ctx, entry.EnrollmentID)
		if err == nil && enr.ClassID != req.ClassID {
			err = appErrors.Clone(appErrors.ErrValidation, "enrollment does not belong to class")
		}
		if err == nil {
			err = s.checkDebtBlock(enr, req.AcknowledgeDebt)
		}
		if err != nil {
			if mode == models.BulkModeAtomic {
				return nil, err
			}
			result.Conflicts = append(result.Conflicts, models.AttendanceBulkConflict{
				EnrollmentID: entry.EnrollmentID,
				Date:         date,
				Reason:       appErrors.FromError(err).Message,
			})
			continue
		}

		status := entry.Status
		row, outcome, err := s.store.Mark(ctx, repository.MarkParams{
			EnrollmentID: enr.ID,
			Date:         date,
			Status:       status,
			MarkedBy:     actor.UserID,
			Notes:        entry.Notes,
			Decide: func(locked models.Enrollment, course models.Course, prev *models.Attendance) (billing.Outcome, error) {
				return s.engine.ApplyMark(locked, course, prev, status), nil
			},
		})
		if err != nil {
			if mode == models.BulkModeAtomic {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
			}
			result.Conflicts = append(result.Conflicts, models.AttendanceBulkConflict{
				EnrollmentID: entry.EnrollmentID,
				Date:         date,
				Reason:       appErrors.FromError(err).Message,
			})
			continue
		}

		s.afterReconciliation(ctx, "bulk_mark", enr, outcome)
		result.Marked = append(result.Marked, *row)
	}
	return result, nil
}

// UnmarkLatest deletes the most recent mark of an enrollment and reverses its
// billing effect.
func (s *AttendanceService) UnmarkLatest(ctx context.Context, enrollmentID string) (*models.Attendance, error) {
	enr, err := s.loadActiveEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	removed, outcome, err := s.store.UnmarkLatest(ctx, enrollmentID, func(locked models.Enrollment, course models.Course, rm models.Attendance) billing.Outcome {
		return s.engine.ApplyUnmark(locked, course, rm)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no attendance records to remove")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unmark attendance")
	}

	s.afterReconciliation(ctx, "unmark", enr, outcome)
	return removed, nil
}

// History lists attendance records for the given filter.
func (s *AttendanceService) History(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	records, total, err := s.reader.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, total, nil
}

// ClassSheet returns the marking sheet of a class for a date (default today).
func (s *AttendanceService) ClassSheet(ctx context.Context, classID string, rawDate string) ([]models.ClassSheetRow, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	date, err := s.resolveDate(rawDate)
	if err != nil {
		return nil, err
	}
	rows, err := s.reader.ClassSheet(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build class sheet")
	}
	return rows, nil
}

func (s *AttendanceService) loadActiveEnrollment(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enr, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enr.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not active")
	}
	return enr, nil
}

// resolveDate parses a civil date or falls back to today in the academy
// timezone.
func (s *AttendanceService) resolveDate(raw string) (time.Time, error) {
	if raw == "" {
		return billing.CivilDate(s.clock(), s.config.Zone), nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	return date, nil
}

// checkWindow enforces the marking window. The window never hard-denies: a
// closed window surfaces as ErrTimeWindow with the reason, and an admin may
// retry with force.
func (s *AttendanceService) checkWindow(class models.Class, actor models.JWTClaims, force bool) error {
	decision := billing.CheckWindow(billing.ScheduleOf(class), s.clock(), s.config.WindowMargin)
	if decision.Allowed {
		return nil
	}
	if force {
		if !actor.Role.CanOverrideWindow() {
			return appErrors.Clone(appErrors.ErrForbidden, "only admins may force attendance outside the window")
		}
		s.logger.Info("attendance window override",
			zap.String("class_id", class.ID),
			zap.String("user_id", actor.UserID),
			zap.String("reason", decision.Reason))
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrTimeWindow, decision.Reason, decision)
}

// checkDebtBlock applies the soft block: marking an indebted enrollment
// requires an explicit acknowledgement, never a payment.
func (s *AttendanceService) checkDebtBlock(enr *models.EnrollmentDetail, acknowledged bool) error {
	if !s.config.DebtSoftBlock || acknowledged || enr.TotalDebt.Sign() <= 0 {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrUnpaidDebt, "enrollment has outstanding debt", map[string]interface{}{
		"enrollment_id": enr.ID,
		"total_debt":    enr.TotalDebt,
		"debt_sessions": enr.DebtSessions,
	})
}

// afterReconciliation handles the side effects of a committed outcome:
// metrics, cache invalidation and the payment-due notification.
func (s *AttendanceService) afterReconciliation(ctx context.Context, operation string, enr *models.EnrollmentDetail, outcome billing.Outcome) {
	if s.metrics != nil {
		s.metrics.ObserveReconciliation(operation)
	}
	if outcome.IsZero() {
		return
	}
	if s.cache != nil {
		s.cache.InvalidateStudent(ctx, enr.StudentID)
	}
	if outcome.PaymentDue && s.notify != nil {
		s.notify.Dispatch(ctx, Notification{
			Kind:         NotifyPaymentDue,
			StudentID:    enr.StudentID,
			EnrollmentID: enr.ID,
			ClassName:    enr.ClassName,
			Amount:       enr.MonthlyPrice,
		})
	}
}
