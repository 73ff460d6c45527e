// Package billing implements the attendance/payment reconciliation rules:
// the marking time window, the session and monthly charging strategies, and
// partial-payment distribution. Everything here is pure; persistence and
// locking live in the repository layer.
package billing

import (
	"fmt"
	"time"
)

// DefaultZone is the academy's civil timezone (UTC+1, no DST). All window
// checks and attendance dates are evaluated in this zone, never in the
// server's locale.
var DefaultZone = time.FixedZone("UTC+1", 3600)

// Zone builds a fixed civil timezone for the configured UTC offset.
func Zone(offsetHours int) *time.Location {
	if offsetHours == 1 {
		return DefaultZone
	}
	if offsetHours == 0 {
		return time.UTC
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// Clock supplies "now" in the academy's timezone; injected so the rules are
// testable with fixed instants.
type Clock func() time.Time

// ZoneClock returns a Clock reading the system time in the given zone.
func ZoneClock(loc *time.Location) Clock {
	return func() time.Time {
		return time.Now().In(loc)
	}
}

// WeekdayMonday0 converts Go's Sunday-based weekday to the 0=Monday..6=Sunday
// convention used by class schedules.
func WeekdayMonday0(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// CivilDate truncates a timestamp to its calendar date in the given zone.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
