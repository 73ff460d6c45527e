package billing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/academy-hq/academy-api/internal/models"
)

// Allocation is one slice of a partial payment applied to an enrollment.
type Allocation struct {
	EnrollmentID    string          `json:"enrollment_id"`
	Amount          decimal.Decimal `json:"amount"`
	SessionsReduced int             `json:"sessions_reduced"`
}

// Distribute splits a partial payment across a student's in-debt enrollments,
// largest debt first, until the amount is exhausted or every debt is cleared.
// Session counters are reduced by floor(applied/unitPrice), capped at the
// enrollment's recorded debt sessions. Returns the allocations and whatever
// amount could not be applied.
func Distribute(amount decimal.Decimal, debts []models.EnrollmentDebt) ([]Allocation, decimal.Decimal) {
	remaining := amount
	if remaining.Sign() <= 0 {
		return nil, remaining
	}

	ordered := make([]models.EnrollmentDebt, len(debts))
	copy(ordered, debts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].TotalDebt.Equal(ordered[j].TotalDebt) {
			return ordered[i].TotalDebt.GreaterThan(ordered[j].TotalDebt)
		}
		return ordered[i].EnrollmentID < ordered[j].EnrollmentID
	})

	var allocations []Allocation
	for _, debt := range ordered {
		if remaining.Sign() <= 0 {
			break
		}
		if debt.TotalDebt.Sign() <= 0 {
			continue
		}

		applied := decimal.Min(remaining, debt.TotalDebt)
		sessions := 0
		if debt.UnitPrice.Sign() > 0 {
			sessions = int(applied.Div(debt.UnitPrice).IntPart())
			if sessions > debt.DebtSessions {
				sessions = debt.DebtSessions
			}
		}

		allocations = append(allocations, Allocation{
			EnrollmentID:    debt.EnrollmentID,
			Amount:          applied,
			SessionsReduced: sessions,
		})
		remaining = remaining.Sub(applied)
	}
	return allocations, remaining
}
