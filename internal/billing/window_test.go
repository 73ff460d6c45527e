package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academy-hq/academy-api/internal/models"
)

func strPtr(s string) *string { return &s }

func monday(hour, min int) time.Time {
	// 2024-01-01 is a Monday.
	return time.Date(2024, 1, 1, hour, min, 0, 0, DefaultZone)
}

func TestCheckWindowSymmetry(t *testing.T) {
	sched := ClassSchedule{DayOfWeek: 0, StartTime: strPtr("10:00"), EndTime: strPtr("11:00")}
	margin := 30 * time.Minute

	cases := []struct {
		now     time.Time
		allowed bool
		reason  string
	}{
		{monday(9, 29), false, "too early: marking opens at 09:30"},
		{monday(9, 30), true, ""},
		{monday(11, 30), true, ""},
		{monday(11, 31), false, "too late: marking closed at 11:30"},
	}
	for _, tc := range cases {
		decision := CheckWindow(sched, tc.now, margin)
		assert.Equal(t, tc.allowed, decision.Allowed, "at %s", tc.now.Format("15:04"))
		assert.Equal(t, tc.reason, decision.Reason)
		if !tc.allowed {
			assert.True(t, decision.OverrideEligible)
		}
	}
}

func TestCheckWindowDayMismatch(t *testing.T) {
	sched := ClassSchedule{DayOfWeek: 2, StartTime: strPtr("10:00"), EndTime: strPtr("11:00")}

	decision := CheckWindow(sched, monday(10, 15), 30*time.Minute)
	require.False(t, decision.Allowed)
	assert.Equal(t, "class meets on Wednesday", decision.Reason)
	assert.True(t, decision.OverrideEligible)
}

func TestCheckWindowIncompleteSchedule(t *testing.T) {
	cases := []ClassSchedule{
		{DayOfWeek: models.DayUnscheduled, StartTime: strPtr("10:00"), EndTime: strPtr("11:00")},
		{DayOfWeek: 0, StartTime: nil, EndTime: strPtr("11:00")},
		{DayOfWeek: 0, StartTime: strPtr("10:00"), EndTime: nil},
		{DayOfWeek: 0, StartTime: strPtr("not-a-time"), EndTime: strPtr("11:00")},
	}
	for _, sched := range cases {
		decision := CheckWindow(sched, monday(10, 15), 30*time.Minute)
		require.False(t, decision.Allowed)
		assert.Equal(t, "schedule incomplete", decision.Reason)
		assert.True(t, decision.OverrideEligible)
	}
}

func TestWeekdayMonday0(t *testing.T) {
	assert.Equal(t, 0, WeekdayMonday0(monday(12, 0)))
	assert.Equal(t, 6, WeekdayMonday0(monday(12, 0).AddDate(0, 0, 6)))
}
