package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/academy-hq/academy-api/internal/billing"
	"github.com/academy-hq/academy-api/internal/models"
	appErrors "github.com/academy-hq/academy-api/pkg/errors"
)

const pqUniqueViolation = "23505"

// Decision callbacks are pure: they receive rows locked by the store and
// return the billing outcome to apply. No database access happens inside
// them, so every money movement is computed from a consistent snapshot.
type (
	MarkDecision    func(enr models.Enrollment, course models.Course, prev *models.Attendance) (billing.Outcome, error)
	UnmarkDecision  func(enr models.Enrollment, course models.Course, removed models.Attendance) billing.Outcome
	PaymentDecision func(enr models.Enrollment, course models.Course, att models.Attendance) (billing.Outcome, error)
	SettleDecision  func(enr models.Enrollment) (billing.Outcome, error)
	PayoutDecision  func(debts []models.EnrollmentDebt) ([]billing.Allocation, decimal.Decimal)
)

// MarkParams carries one attendance mark into the store.
type MarkParams struct {
	EnrollmentID string
	Date         time.Time
	Status       models.AttendanceStatus
	MarkedBy     string
	Notes        *string
	Decide       MarkDecision
}

// ReconciliationStore is the single writer for attendance rows and enrollment
// billing counters. Every operation runs in one transaction: it locks the
// enrollment row first, then the attendance row it touches, applies the
// decision's outcome with debt and counters clamped at zero, and commits.
// The lock order (enrollment before attendance) is uniform across methods.
type ReconciliationStore struct {
	db *sqlx.DB
}

// NewReconciliationStore constructs a ReconciliationStore.
func NewReconciliationStore(db *sqlx.DB) *ReconciliationStore {
	return &ReconciliationStore{db: db}
}

const enrollmentColumns = `id, student_id, class_id, payment_type, monthly_sessions_attended, monthly_payment_status, total_debt, debt_sessions, last_payment_date, joined_at, left_at, status`

const attendanceColumns = `id, enrollment_id, date, status, payment_status, payment_amount, payment_date, marked_by, marked_at, notes, created_at, updated_at`

func (s *ReconciliationStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconciliation tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconciliation tx: %w", err)
	}
	return nil
}

func lockEnrollment(ctx context.Context, tx *sqlx.Tx, id string) (models.Enrollment, error) {
	var enr models.Enrollment
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE", enrollmentColumns)
	if err := tx.GetContext(ctx, &enr, query, id); err != nil {
		return enr, err
	}
	return enr, nil
}

func courseForClass(ctx context.Context, tx *sqlx.Tx, classID string) (models.Course, error) {
	var course models.Course
	const query = `SELECT co.id, co.name, co.level, co.pricing_type, co.session_price, co.monthly_price, co.active, co.created_at, co.updated_at
        FROM courses co JOIN classes c ON c.course_id = co.id WHERE c.id = $1`
	if err := tx.GetContext(ctx, &course, query, classID); err != nil {
		return course, fmt.Errorf("load course for class: %w", err)
	}
	return course, nil
}

// Mark records or overwrites the attendance row for (enrollment, date) and
// applies the billing outcome atomically. A lost insert race on the unique
// key surfaces as ErrConcurrencyConflict so the caller can retry.
func (s *ReconciliationStore) Mark(ctx context.Context, p MarkParams) (*models.Attendance, billing.Outcome, error) {
	var row *models.Attendance
	var outcome billing.Outcome

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		enr, err := lockEnrollment(ctx, tx, p.EnrollmentID)
		if err != nil {
			return err
		}
		course, err := courseForClass(ctx, tx, enr.ClassID)
		if err != nil {
			return err
		}

		var prev *models.Attendance
		var existing models.Attendance
		query := fmt.Sprintf("SELECT %s FROM attendances WHERE enrollment_id = $1 AND date = $2 FOR UPDATE", attendanceColumns)
		switch err := tx.GetContext(ctx, &existing, query, p.EnrollmentID, p.Date); {
		case err == nil:
			prev = &existing
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("load attendance row: %w", err)
		}

		outcome, err = p.Decide(enr, course, prev)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		next := buildMarkedRow(p, prev, outcome, now)
		if prev == nil {
			if err := insertAttendance(ctx, tx, &next); err != nil {
				var pqErr *pq.Error
				if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
					return appErrors.ErrConcurrencyConflict
				}
				return err
			}
		} else {
			const update = `UPDATE attendances SET status = $2, payment_status = $3, payment_amount = $4, payment_date = $5, marked_by = $6, marked_at = $7, notes = $8, updated_at = $9 WHERE id = $1`
			if _, err := tx.ExecContext(ctx, update, next.ID, next.Status, next.PaymentStatus, next.PaymentAmount, next.PaymentDate, next.MarkedBy, next.MarkedAt, next.Notes, next.UpdatedAt); err != nil {
				return fmt.Errorf("update attendance row: %w", err)
			}
		}
		row = &next

		return applyOutcome(ctx, tx, p.EnrollmentID, outcome, now)
	})
	return row, outcome, err
}

// buildMarkedRow merges the previous row (if any) with the new mark and the
// billing fields the outcome writes back.
func buildMarkedRow(p MarkParams, prev *models.Attendance, out billing.Outcome, now time.Time) models.Attendance {
	next := models.Attendance{
		ID:           uuid.NewString(),
		EnrollmentID: p.EnrollmentID,
		Date:         p.Date,
		Status:       p.Status,
		MarkedBy:     p.MarkedBy,
		MarkedAt:     now,
		Notes:        p.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prev != nil {
		next.ID = prev.ID
		next.CreatedAt = prev.CreatedAt
		next.PaymentStatus = prev.PaymentStatus
		next.PaymentAmount = prev.PaymentAmount
		next.PaymentDate = prev.PaymentDate
		if p.Notes == nil {
			next.Notes = prev.Notes
		}
	}
	if out.PaymentStatus != nil {
		next.PaymentStatus = *out.PaymentStatus
	}
	if out.ChargeAmount != nil {
		next.PaymentAmount = out.ChargeAmount
	}
	if out.SetLastPayment {
		next.PaymentDate = &now
	}
	return next
}

func insertAttendance(ctx context.Context, tx *sqlx.Tx, att *models.Attendance) error {
	const query = `INSERT INTO attendances (id, enrollment_id, date, status, payment_status, payment_amount, payment_date, marked_by, marked_at, notes, created_at, updated_at)
        VALUES (:id, :enrollment_id, :date, :status, :payment_status, :payment_amount, :payment_date, :marked_by, :marked_at, :notes, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, att); err != nil {
		return fmt.Errorf("insert attendance row: %w", err)
	}
	return nil
}

// UnmarkLatest deletes the most recent attendance row of an enrollment and
// reverses its billing effect.
func (s *ReconciliationStore) UnmarkLatest(ctx context.Context, enrollmentID string, decide UnmarkDecision) (*models.Attendance, billing.Outcome, error) {
	var removed *models.Attendance
	var outcome billing.Outcome

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		enr, err := lockEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		course, err := courseForClass(ctx, tx, enr.ClassID)
		if err != nil {
			return err
		}

		var latest models.Attendance
		query := fmt.Sprintf("SELECT %s FROM attendances WHERE enrollment_id = $1 ORDER BY date DESC, marked_at DESC LIMIT 1 FOR UPDATE", attendanceColumns)
		if err := tx.GetContext(ctx, &latest, query, enrollmentID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM attendances WHERE id = $1", latest.ID); err != nil {
			return fmt.Errorf("delete attendance row: %w", err)
		}

		outcome = decide(enr, course, latest)
		removed = &latest
		return applyOutcome(ctx, tx, enrollmentID, outcome, time.Now().UTC())
	})
	return removed, outcome, err
}

// SetPayment moves one session charge between paid, unpaid and debt. The
// attendance row is read unlocked first to learn its enrollment, then
// re-read under the enrollment lock so the lock order stays uniform.
func (s *ReconciliationStore) SetPayment(ctx context.Context, attendanceID string, decide PaymentDecision) (*models.Attendance, billing.Outcome, error) {
	var row *models.Attendance
	var outcome billing.Outcome

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var enrollmentID string
		if err := tx.GetContext(ctx, &enrollmentID, "SELECT enrollment_id FROM attendances WHERE id = $1", attendanceID); err != nil {
			return err
		}
		enr, err := lockEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		course, err := courseForClass(ctx, tx, enr.ClassID)
		if err != nil {
			return err
		}

		var att models.Attendance
		query := fmt.Sprintf("SELECT %s FROM attendances WHERE id = $1 FOR UPDATE", attendanceColumns)
		if err := tx.GetContext(ctx, &att, query, attendanceID); err != nil {
			return err
		}

		outcome, err = decide(enr, course, att)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if outcome.PaymentStatus != nil {
			att.PaymentStatus = *outcome.PaymentStatus
		}
		if outcome.ChargeAmount != nil {
			att.PaymentAmount = outcome.ChargeAmount
		}
		if outcome.SetLastPayment {
			att.PaymentDate = &now
		}
		att.UpdatedAt = now

		const update = `UPDATE attendances SET payment_status = $2, payment_amount = $3, payment_date = $4, updated_at = $5 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, att.ID, att.PaymentStatus, att.PaymentAmount, att.PaymentDate, att.UpdatedAt); err != nil {
			return fmt.Errorf("update attendance payment: %w", err)
		}
		row = &att

		return applyOutcome(ctx, tx, enrollmentID, outcome, now)
	})
	return row, outcome, err
}

// Settle applies an enrollment-level outcome (monthly payment, cycle reset,
// debt clearance) and returns the refreshed enrollment.
func (s *ReconciliationStore) Settle(ctx context.Context, enrollmentID string, decide SettleDecision) (*models.Enrollment, billing.Outcome, error) {
	var updated *models.Enrollment
	var outcome billing.Outcome

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		enr, err := lockEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		outcome, err = decide(enr)
		if err != nil {
			return err
		}
		if err := applyOutcome(ctx, tx, enrollmentID, outcome, time.Now().UTC()); err != nil {
			return err
		}

		var after models.Enrollment
		query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
		if err := tx.GetContext(ctx, &after, query, enrollmentID); err != nil {
			return fmt.Errorf("reload enrollment: %w", err)
		}
		updated = &after
		return nil
	})
	return updated, outcome, err
}

// PayStudent distributes one amount across a student's in-debt enrollments.
// All of the student's active enrollments are locked up front; the decision
// (normally billing.Distribute) then sees a consistent debt snapshot. For
// each allocation the enrollment counters come down and the oldest
// outstanding session rows flip to paid, oldest first.
func (s *ReconciliationStore) PayStudent(ctx context.Context, studentID string, decide PayoutDecision) ([]billing.Allocation, decimal.Decimal, error) {
	var allocations []billing.Allocation
	var remainder decimal.Decimal

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		const query = `SELECT e.id, c.name AS class_name, e.payment_type, e.total_debt, e.debt_sessions,
            CASE WHEN e.payment_type = 'MONTHLY' THEN co.monthly_price ELSE co.session_price END AS unit_price
            FROM enrollments e
            JOIN classes c ON c.id = e.class_id
            JOIN courses co ON co.id = c.course_id
            WHERE e.student_id = $1 AND e.status = 'ACTIVE'
            ORDER BY e.id FOR UPDATE OF e`
		var debts []models.EnrollmentDebt
		if err := tx.SelectContext(ctx, &debts, query, studentID); err != nil {
			return fmt.Errorf("lock student debts: %w", err)
		}

		allocations, remainder = decide(debts)
		now := time.Now().UTC()
		for _, alloc := range allocations {
			const update = `UPDATE enrollments SET total_debt = GREATEST(total_debt - $2, 0), debt_sessions = GREATEST(debt_sessions - $3, 0), last_payment_date = $4 WHERE id = $1`
			if _, err := tx.ExecContext(ctx, update, alloc.EnrollmentID, alloc.Amount, alloc.SessionsReduced, now); err != nil {
				return fmt.Errorf("apply allocation to enrollment: %w", err)
			}
			if alloc.SessionsReduced > 0 {
				const settle = `UPDATE attendances SET payment_status = 'PAID', payment_date = $3, updated_at = $3
                    WHERE id IN (SELECT id FROM attendances WHERE enrollment_id = $1 AND payment_status IN ('UNPAID', 'DEBT') ORDER BY date ASC LIMIT $2)`
				if _, err := tx.ExecContext(ctx, settle, alloc.EnrollmentID, alloc.SessionsReduced, now); err != nil {
					return fmt.Errorf("settle session rows: %w", err)
				}
			}
		}
		return nil
	})
	return allocations, remainder, err
}

// applyOutcome writes an outcome's enrollment-side effects. Decrements are
// clamped in SQL so replayed or reversed events can never drive debt or
// counters negative.
func applyOutcome(ctx context.Context, tx *sqlx.Tx, enrollmentID string, out billing.Outcome, now time.Time) error {
	var sets []string
	args := []interface{}{enrollmentID}

	if out.ClearDebt {
		sets = append(sets, "total_debt = 0", "debt_sessions = 0")
	} else {
		if !out.DebtDelta.IsZero() {
			sets = append(sets, fmt.Sprintf("total_debt = GREATEST(total_debt + $%d, 0)", len(args)+1))
			args = append(args, out.DebtDelta)
		}
		if out.SessionDelta != 0 {
			sets = append(sets, fmt.Sprintf("debt_sessions = GREATEST(debt_sessions + $%d, 0)", len(args)+1))
			args = append(args, out.SessionDelta)
		}
	}
	if out.ResetCounter {
		sets = append(sets, "monthly_sessions_attended = 0")
	} else if out.CounterDelta != 0 {
		sets = append(sets, fmt.Sprintf("monthly_sessions_attended = GREATEST(monthly_sessions_attended + $%d, 0)", len(args)+1))
		args = append(args, out.CounterDelta)
	}
	if out.MonthlyStatus != nil {
		sets = append(sets, fmt.Sprintf("monthly_payment_status = $%d", len(args)+1))
		args = append(args, *out.MonthlyStatus)
	}
	if out.SetLastPayment {
		sets = append(sets, fmt.Sprintf("last_payment_date = $%d", len(args)+1))
		args = append(args, now)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE enrollments SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("apply billing outcome: %w", err)
	}
	return nil
}
