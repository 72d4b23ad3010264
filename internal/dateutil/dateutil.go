// Package dateutil provides date helpers shared by the time pipeline.
package dateutil

import (
	"time"
)

// CanonicalLayout is the absolute-time wire format between the resolver and
// the standardizer: "November 19, 2025 02:30 pm".
const CanonicalLayout = "January 02, 2006 03:04 pm"

// FormatCanonical renders t in the canonical absolute form.
func FormatCanonical(t time.Time) string {
	return t.Format(CanonicalLayout)
}

// TruncateToDay returns t with time set to midnight in t's location.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 on t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// EndOfWeek returns 23:59:59 on the Sunday of the week containing t.
func EndOfWeek(t time.Time) time.Time {
	days := (7 - int(t.Weekday())) % 7
	return EndOfDay(t.AddDate(0, 0, days))
}

// EndOfMonth returns 23:59:59 on the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return EndOfDay(firstOfNext.AddDate(0, 0, -1))
}

// NextWeekday returns the next occurrence of wd strictly after t's day.
func NextWeekday(t time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return TruncateToDay(t).AddDate(0, 0, days)
}

// IsDST reports whether t falls in daylight saving time in its location,
// determined by comparing against the year's minimum UTC offset.
func IsDST(t time.Time) bool {
	_, off := t.Zone()
	_, jan := time.Date(t.Year(), time.January, 1, 12, 0, 0, 0, t.Location()).Zone()
	_, jul := time.Date(t.Year(), time.July, 1, 12, 0, 0, 0, t.Location()).Zone()
	base := jan
	if jul < jan {
		base = jul
	}
	return off > base
}

// DayKey formats a date as the YYYY-MM-DD key used to group availability.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
