// Package timectx builds the temporal context bundle handed to the absolute
// resolver so relative phrases ("tomorrow", "by Friday", "EOM") resolve
// deterministically against one frozen clock reading.
package timectx

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lmendoza/quando/internal/dateutil"
)

// Context is a snapshot of "now" plus the anchors the resolver prompt needs.
// All string fields are either ISO-8601 or the canonical absolute form.
type Context struct {
	Now         time.Time
	NowISO      string
	Timezone    string
	TodayHuman  string // "Tuesday, November 18, 2025"
	TodayDOW    int    // Monday=0 .. Sunday=6
	IsDST       bool
	EndOfToday  string // canonical, 11:59 pm
	EndOfWeek   string // canonical, Sunday 11:59 pm
	EndOfMonth  string // canonical, last day 11:59 pm
	NextMonday  string // canonical, 09:00 am anchor
	Occurrences map[string]string // weekday name -> "Month DD, YYYY"
}

// New builds a Context for the given instant, expressed in loc.
func New(now time.Time, loc *time.Location) Context {
	now = now.In(loc)

	occ := make(map[string]string, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		next := dateutil.NextWeekday(now, wd)
		occ[wd.String()] = next.Format("January 02, 2006")
	}

	nextMonday := dateutil.NextWeekday(now, time.Monday).Add(9 * time.Hour)

	return Context{
		Now:         now,
		NowISO:      now.Format(time.RFC3339),
		Timezone:    loc.String(),
		TodayHuman:  now.Format("Monday, January 02, 2006"),
		TodayDOW:    mondayIndexed(now.Weekday()),
		IsDST:       dateutil.IsDST(now),
		EndOfToday:  dateutil.FormatCanonical(dateutil.EndOfDay(now).Truncate(time.Minute)),
		EndOfWeek:   dateutil.FormatCanonical(dateutil.EndOfWeek(now).Truncate(time.Minute)),
		EndOfMonth:  dateutil.FormatCanonical(dateutil.EndOfMonth(now).Truncate(time.Minute)),
		NextMonday:  dateutil.FormatCanonical(nextMonday),
		Occurrences: occ,
	}
}

func mondayIndexed(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// PromptBlock renders the bundle as the key/value block embedded in the
// resolver prompt.
func (c Context) PromptBlock() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NOW_ISO: %s\n", c.NowISO)
	fmt.Fprintf(&b, "TIMEZONE: %s\n", c.Timezone)
	fmt.Fprintf(&b, "TODAY_HUMAN: %s\n", c.TodayHuman)
	fmt.Fprintf(&b, "TODAY_DOW_INDEX: %d\n", c.TodayDOW)
	fmt.Fprintf(&b, "IS_DST: %t\n", c.IsDST)
	fmt.Fprintf(&b, "END_OF_TODAY: %s\n", c.EndOfToday)
	fmt.Fprintf(&b, "END_OF_WEEK: %s\n", c.EndOfWeek)
	fmt.Fprintf(&b, "END_OF_MONTH: %s\n", c.EndOfMonth)
	fmt.Fprintf(&b, "NEXT_MONDAY: %s\n", c.NextMonday)

	names := make([]string, 0, len(c.Occurrences))
	for name := range c.Occurrences {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("NEXT_OCCURRENCES:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %s\n", name, c.Occurrences[name])
	}
	return b.String()
}
