package billing

import (
	"fmt"
	"time"

	"github.com/academy-hq/academy-api/internal/models"
)

const timeLayout = "15:04"

// ClassSchedule is the slice of a class the window check needs.
type ClassSchedule struct {
	DayOfWeek int
	StartTime *string
	EndTime   *string
}

// ScheduleOf extracts the schedule fields from a class.
func ScheduleOf(c models.Class) ClassSchedule {
	return ClassSchedule{DayOfWeek: c.DayOfWeek, StartTime: c.StartTime, EndTime: c.EndTime}
}

// WindowDecision is the outcome of a time-window check. The validator never
// hard-denies: whenever Allowed is false, OverrideEligible is true and the
// caller's permission layer decides whether a forced mark may proceed.
type WindowDecision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	OverrideEligible bool   `json:"override_eligible"`
}

// CheckWindow decides whether attendance may be marked for the schedule at
// the given instant. The window spans [start-margin, end+margin] on the
// class's weekday, evaluated on now's calendar date in now's location.
func CheckWindow(sched ClassSchedule, now time.Time, margin time.Duration) WindowDecision {
	if sched.DayOfWeek == models.DayUnscheduled || sched.StartTime == nil || sched.EndTime == nil {
		return WindowDecision{Reason: "schedule incomplete", OverrideEligible: true}
	}

	start, err := time.Parse(timeLayout, *sched.StartTime)
	if err != nil {
		return WindowDecision{Reason: "schedule incomplete", OverrideEligible: true}
	}
	end, err := time.Parse(timeLayout, *sched.EndTime)
	if err != nil {
		return WindowDecision{Reason: "schedule incomplete", OverrideEligible: true}
	}

	if WeekdayMonday0(now) != sched.DayOfWeek {
		return WindowDecision{
			Reason:           fmt.Sprintf("class meets on %s", models.WeekdayName(sched.DayOfWeek)),
			OverrideEligible: true,
		}
	}

	windowStart := time.Date(now.Year(), now.Month(), now.Day(), start.Hour(), start.Minute(), 0, 0, now.Location()).Add(-margin)
	windowEnd := time.Date(now.Year(), now.Month(), now.Day(), end.Hour(), end.Minute(), 0, 0, now.Location()).Add(margin)

	if now.Before(windowStart) {
		return WindowDecision{
			Reason:           fmt.Sprintf("too early: marking opens at %s", windowStart.Format(timeLayout)),
			OverrideEligible: true,
		}
	}
	if now.After(windowEnd) {
		return WindowDecision{
			Reason:           fmt.Sprintf("too late: marking closed at %s", windowEnd.Format(timeLayout)),
			OverrideEligible: true,
		}
	}

	return WindowDecision{Allowed: true}
}
