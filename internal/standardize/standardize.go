// Package standardize converts resolver output into a zone-aware scheduling
// window. It is rule-based: no LLM is involved past this point.
package standardize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lmendoza/quando/internal/dateutil"
	"github.com/lmendoza/quando/internal/task"
)

// Standardization errors.
var (
	ErrParse     = errors.New("unparseable absolute time")
	ErrInvariant = errors.New("window violates invariants")
)

var (
	// "November 19, 2025 02:30 pm"
	canonicalRe = regexp.MustCompile(`(?i)^([A-Za-z]+)\s+(\d{1,2}),\s+(\d{4})\s+(\d{1,2}):(\d{2})\s+(am|pm)$`)
	// "Wednesday, November 19, 2025 02:30 pm" — tolerated resolver drift.
	extendedRe = regexp.MustCompile(`(?i)^[A-Za-z]+,\s+([A-Za-z]+)\s+(\d{1,2}),\s+(\d{4})\s+(\d{1,2}):(\d{2})\s+(am|pm)$`)
	// ISO-8601 fallback for resolvers that ignore the canonical instruction.
	isoRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(?:[+-]\d{2}:\d{2}|Z)?$`)
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// Standardize lifts an absolute slot into a Window in loc, using now for
// past-time repair. The zone offset is attached at the parsed wall time, so
// DST transitions resolve the way a local clock would.
func Standardize(slot task.AbsoluteSlot, loc *time.Location, now time.Time) (task.Window, error) {
	start, err := parseWallTime(slot.StartText, loc)
	if err != nil {
		return task.Window{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseWallTime(slot.EndText, loc)
	if err != nil {
		return task.Window{}, fmt.Errorf("end: %w", err)
	}

	// End-of-day deadlines get :59 seconds so "by Friday" covers the whole
	// final minute; everything else is second-exact at :00.
	if isEOD(slot.EndText) {
		end = end.Add(59 * time.Second)
	}

	start, end = adjustPast(start, end, now.In(loc))

	// start <= end repair: a resolver that crossed its wires gets the rest
	// of start's day rather than a dead window.
	if end.Before(start) {
		end = dateutil.EndOfDay(start)
	}

	w := task.Window{Start: start, End: end}
	if slot.Duration != nil && strings.TrimSpace(*slot.Duration) != "" {
		d, err := task.ParseDuration(*slot.Duration)
		if err != nil {
			return task.Window{}, fmt.Errorf("%w: duration %q", ErrParse, *slot.Duration)
		}
		w.Duration = &d
	}

	if err := w.Validate(); err != nil {
		return task.Window{}, fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return w, nil
}

// parseWallTime parses the canonical, weekday-extended or ISO fallback form
// into a zone-aware instant in loc.
func parseWallTime(text string, loc *time.Location) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrParse)
	}

	if m := canonicalRe.FindStringSubmatch(text); m != nil {
		return buildTwelveHour(m, loc)
	}
	if m := extendedRe.FindStringSubmatch(text); m != nil {
		return buildTwelveHour(m, loc)
	}
	if m := isoRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		min, _ := strconv.Atoi(m[5])
		sec, _ := strconv.Atoi(m[6])
		return time.Date(year, time.Month(month), day, hour, min, sec, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrParse, text)
}

func buildTwelveHour(m []string, loc *time.Location) (time.Time, error) {
	month, ok := months[strings.ToLower(m[1])]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: month %q", ErrParse, m[1])
	}
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	min, _ := strconv.Atoi(m[5])

	if hour < 1 || hour > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrParse, strings.Join(m[1:], " "))
	}
	switch strings.ToLower(m[6]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return time.Date(year, month, day, hour, min, 0, 0, loc), nil
}

func isEOD(text string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(text)), "11:59 pm")
}

// adjustPast repairs windows that drifted behind the clock:
// both sides past -> shift both a day forward; start-only past -> start=now;
// end-only past -> end keeps its wall time but takes start's date.
func adjustPast(start, end, now time.Time) (time.Time, time.Time) {
	startPast, endPast := start.Before(now), end.Before(now)
	switch {
	case startPast && endPast:
		return start.AddDate(0, 0, 1), end.AddDate(0, 0, 1)
	case startPast:
		return now, end
	case endPast:
		repaired := time.Date(start.Year(), start.Month(), start.Day(),
			end.Hour(), end.Minute(), end.Second(), 0, end.Location())
		return start, repaired
	default:
		return start, end
	}
}
