package billing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/academy-hq/academy-api/internal/models"
)

// DefaultCycleSessions is the number of counted sessions per monthly billing
// cycle.
const DefaultCycleSessions = 4

// Errors returned when an operation is applied to the wrong billing variant.
var (
	ErrNotSessionBilled = errors.New("operation applies to session-billed enrollments only")
	ErrNotMonthlyBilled = errors.New("operation applies to monthly-billed enrollments only")
)

// Outcome is the effect of one reconciliation event on an enrollment and the
// attendance row that triggered it. The repository layer applies it inside a
// single transaction; debt and counter decrements are clamped at zero there.
type Outcome struct {
	DebtDelta    decimal.Decimal
	SessionDelta int
	CounterDelta int

	MonthlyStatus  *models.MonthlyPaymentStatus
	ResetCounter   bool
	ClearDebt      bool
	SetLastPayment bool

	// PaymentStatus and ChargeAmount are written back to the attendance row
	// when set; nil leaves the row's billing fields untouched.
	PaymentStatus *models.AttendancePaymentStatus
	ChargeAmount  *decimal.Decimal

	// PaymentDue reports that a monthly cycle just completed unpaid.
	PaymentDue bool
}

// IsZero reports whether applying the outcome would change nothing.
func (o Outcome) IsZero() bool {
	return o.DebtDelta.IsZero() && o.SessionDelta == 0 && o.CounterDelta == 0 &&
		o.MonthlyStatus == nil && !o.ResetCounter && !o.ClearDebt && !o.SetLastPayment &&
		o.PaymentStatus == nil && o.ChargeAmount == nil && !o.PaymentDue
}

// Engine computes billing outcomes for attendance and payment events. It is
// stateless; one instance serves all enrollments.
type Engine struct {
	cycleSessions int
}

// NewEngine constructs an engine with the given monthly cycle length.
func NewEngine(cycleSessions int) Engine {
	if cycleSessions <= 0 {
		cycleSessions = DefaultCycleSessions
	}
	return Engine{cycleSessions: cycleSessions}
}

// CycleSessions returns the configured monthly cycle length.
func (e Engine) CycleSessions() int {
	return e.cycleSessions
}

// countsTowardCycle is the closed set of statuses counted into the monthly
// cycle. Present and absent count; late never does.
func countsTowardCycle(s models.AttendanceStatus) bool {
	return s == models.AttendancePresent || s == models.AttendanceAbsent
}

// ApplyMark computes the billing effect of marking attendance. prev is the
// existing row for the same (enrollment, date), nil on first mark. Re-marking
// the same status is a no-op; a status flip on the same day mutates the one
// row and only the transition matters.
func (e Engine) ApplyMark(enr models.Enrollment, course models.Course, prev *models.Attendance, next models.AttendanceStatus) Outcome {
	if prev != nil && prev.Status == next {
		return Outcome{}
	}

	switch enr.PaymentType {
	case models.PaymentMonthly:
		return e.applyMonthlyMark(enr, course, prev, next)
	default:
		return e.applySessionMark(course, prev, next)
	}
}

// applySessionMark raises one discrete charge the first time a day's row
// reaches present. The charge sticks to the attendance row; flipping away
// from present later does not silently reverse it (unmark and the payment
// toggle do).
func (e Engine) applySessionMark(course models.Course, prev *models.Attendance, next models.AttendanceStatus) Outcome {
	if next != models.AttendancePresent {
		return Outcome{}
	}
	if prev != nil && prev.PaymentStatus.Charged() {
		return Outcome{}
	}
	price := course.SessionPrice
	status := models.SessionUnpaid
	return Outcome{
		DebtDelta:     price,
		SessionDelta:  1,
		PaymentStatus: &status,
		ChargeAmount:  &price,
	}
}

// applyMonthlyMark moves the cycle counter on transitions between counted and
// uncounted statuses. Completing the cycle while unpaid raises the monthly
// charge exactly once; counting past the boundary never re-triggers it, and
// stepping back across the boundary of a still-unpaid cycle reverses it, so
// flipping the boundary session away and back leaves exactly one charge.
func (e Engine) applyMonthlyMark(enr models.Enrollment, course models.Course, prev *models.Attendance, next models.AttendanceStatus) Outcome {
	prevCounts := prev != nil && countsTowardCycle(prev.Status)
	nextCounts := countsTowardCycle(next)

	var out Outcome
	switch {
	case nextCounts && !prevCounts:
		out.CounterDelta = 1
	case !nextCounts && prevCounts:
		out.CounterDelta = -1
		out.DebtDelta = e.monthlyStepBackDebt(enr, course)
		return out
	default:
		return Outcome{}
	}

	status := enr.MonthlyPaymentStatus
	if out.CounterDelta > 0 && status == models.MonthlyPaid && enr.MonthlySessionsAttended == 0 {
		// First counted session after a settled cycle opens the next one.
		pending := models.MonthlyPending
		out.MonthlyStatus = &pending
		status = pending
	}

	if out.CounterDelta > 0 && status != models.MonthlyPaid {
		before := enr.MonthlySessionsAttended
		after := before + 1
		if before < e.cycleSessions && after >= e.cycleSessions {
			out.PaymentDue = true
			out.DebtDelta = course.MonthlyPrice
		}
	}
	return out
}

// monthlyStepBackDebt reverses the cycle charge when the counter steps back
// from exactly the cycle boundary while the cycle is still unpaid. The charge
// is raised only on the crossing into the boundary, so this is the one
// counter position where a decrement undoes it.
func (e Engine) monthlyStepBackDebt(enr models.Enrollment, course models.Course) decimal.Decimal {
	if enr.MonthlyPaymentStatus != models.MonthlyPaid && enr.MonthlySessionsAttended == e.cycleSessions {
		return course.MonthlyPrice.Neg()
	}
	return decimal.Zero
}

// ApplyUnmark reverses the billing effect of a removed attendance row.
// Session charges still outstanding are reversed symmetrically; settled
// charges stay settled. Monthly counters step back one counted session,
// reversing the cycle charge when the step leaves an unpaid boundary.
func (e Engine) ApplyUnmark(enr models.Enrollment, course models.Course, removed models.Attendance) Outcome {
	switch enr.PaymentType {
	case models.PaymentMonthly:
		if countsTowardCycle(removed.Status) {
			return Outcome{CounterDelta: -1, DebtDelta: e.monthlyStepBackDebt(enr, course)}
		}
		return Outcome{}
	default:
		if removed.PaymentStatus != models.SessionUnpaid && removed.PaymentStatus != models.SessionDebt {
			return Outcome{}
		}
		price := course.SessionPrice
		if removed.PaymentAmount != nil && !removed.PaymentAmount.IsZero() {
			price = *removed.PaymentAmount
		}
		return Outcome{DebtDelta: price.Neg(), SessionDelta: -1}
	}
}

// outstanding reports whether a per-session status still contributes to debt.
func outstanding(s models.AttendancePaymentStatus) bool {
	return s == models.SessionUnpaid || s == models.SessionDebt
}

// ApplyPaymentToggle computes the effect of moving one session charge between
// paid, unpaid and debt. The toggle is reversible: paid→unpaid restores the
// exact charge that paid→removed.
func (e Engine) ApplyPaymentToggle(enr models.Enrollment, course models.Course, att models.Attendance, to models.AttendancePaymentStatus) (Outcome, error) {
	if enr.PaymentType != models.PaymentSession {
		return Outcome{}, ErrNotSessionBilled
	}
	from := att.PaymentStatus
	if from == to {
		return Outcome{}, nil
	}

	price := course.SessionPrice
	if att.PaymentAmount != nil && !att.PaymentAmount.IsZero() {
		price = *att.PaymentAmount
	}

	out := Outcome{PaymentStatus: &to}
	switch {
	case outstanding(from) && to == models.SessionPaid:
		out.DebtDelta = price.Neg()
		out.SessionDelta = -1
		out.SetLastPayment = true
	case from == models.SessionPaid && outstanding(to):
		out.DebtDelta = price
		out.SessionDelta = 1
	case !from.Charged() && outstanding(to):
		out.DebtDelta = price
		out.SessionDelta = 1
		out.ChargeAmount = &price
	case !from.Charged() && to == models.SessionPaid:
		// Paid on the spot: record the charge as settled, no debt ever raised.
		out.ChargeAmount = &price
		out.SetLastPayment = true
	}
	return out, nil
}

// ApplyMonthlyPayment settles the current monthly cycle: status paid, counter
// reset, enrollment debt cleared, last payment date stamped. This is a hard
// reset; monthly debt has no partial pay-down.
func (e Engine) ApplyMonthlyPayment(enr models.Enrollment) (Outcome, error) {
	if enr.PaymentType != models.PaymentMonthly {
		return Outcome{}, ErrNotMonthlyBilled
	}
	paid := models.MonthlyPaid
	return Outcome{
		MonthlyStatus:  &paid,
		ResetCounter:   true,
		ClearDebt:      true,
		SetLastPayment: true,
	}, nil
}

// ApplyClearDebt zeroes an enrollment's debt unconditionally (admin action).
func (e Engine) ApplyClearDebt() Outcome {
	return Outcome{ClearDebt: true}
}
