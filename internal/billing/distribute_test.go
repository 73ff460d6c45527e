package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academy-hq/academy-api/internal/models"
)

func debt(id string, total int64, sessions int, unit int64) models.EnrollmentDebt {
	return models.EnrollmentDebt{
		EnrollmentID: id,
		PaymentType:  models.PaymentSession,
		TotalDebt:    decimal.NewFromInt(total),
		DebtSessions: sessions,
		UnitPrice:    decimal.NewFromInt(unit),
	}
}

func TestDistributeLargestDebtFirst(t *testing.T) {
	debts := []models.EnrollmentDebt{
		debt("enr-a", 800, 2, 400),
		debt("enr-b", 1200, 3, 400),
	}

	allocations, remainder := Distribute(decimal.NewFromInt(1000), debts)
	require.Len(t, allocations, 2)
	assert.True(t, remainder.IsZero())

	assert.Equal(t, "enr-b", allocations[0].EnrollmentID)
	assert.True(t, allocations[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 2, allocations[0].SessionsReduced)
}

func TestDistributeFloorsSessionReduction(t *testing.T) {
	allocations, remainder := Distribute(decimal.NewFromInt(999), []models.EnrollmentDebt{debt("enr-a", 1600, 4, 400)})
	require.Len(t, allocations, 1)
	assert.True(t, remainder.IsZero())
	assert.True(t, allocations[0].Amount.Equal(decimal.NewFromInt(999)))
	// 999 / 400 covers two full sessions; the odd 199 stays as debt paydown.
	assert.Equal(t, 2, allocations[0].SessionsReduced)
}

func TestDistributeCapsSessionsAtRecordedDebt(t *testing.T) {
	// Recorded sessions lag the money (price change mid-cycle).
	allocations, _ := Distribute(decimal.NewFromInt(1200), []models.EnrollmentDebt{debt("enr-a", 1200, 1, 400)})
	require.Len(t, allocations, 1)
	assert.Equal(t, 1, allocations[0].SessionsReduced)
}

func TestDistributeReturnsUnappliedRemainder(t *testing.T) {
	allocations, remainder := Distribute(decimal.NewFromInt(2000), []models.EnrollmentDebt{debt("enr-a", 800, 2, 400)})
	require.Len(t, allocations, 1)
	assert.True(t, allocations[0].Amount.Equal(decimal.NewFromInt(800)))
	assert.True(t, remainder.Equal(decimal.NewFromInt(1200)))
}

func TestDistributeSkipsClearedEnrollments(t *testing.T) {
	debts := []models.EnrollmentDebt{
		debt("enr-a", 0, 0, 400),
		debt("enr-b", 400, 1, 400),
	}
	allocations, remainder := Distribute(decimal.NewFromInt(400), debts)
	require.Len(t, allocations, 1)
	assert.Equal(t, "enr-b", allocations[0].EnrollmentID)
	assert.True(t, remainder.IsZero())
}

func TestDistributeTieBreaksByEnrollmentID(t *testing.T) {
	debts := []models.EnrollmentDebt{
		debt("enr-b", 400, 1, 400),
		debt("enr-a", 400, 1, 400),
	}
	allocations, _ := Distribute(decimal.NewFromInt(400), debts)
	require.Len(t, allocations, 1)
	assert.Equal(t, "enr-a", allocations[0].EnrollmentID)
}

func TestDistributeRejectsNonPositiveAmount(t *testing.T) {
	allocations, remainder := Distribute(decimal.Zero, []models.EnrollmentDebt{debt("enr-a", 400, 1, 400)})
	assert.Nil(t, allocations)
	assert.True(t, remainder.IsZero())
}
