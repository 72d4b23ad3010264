package scheduler

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Minutes returns the interval length in whole minutes.
func (iv Interval) Minutes() int {
	return int(iv.End.Sub(iv.Start) / time.Minute)
}

func (iv Interval) empty() bool {
	return !iv.Start.Before(iv.End)
}

// splitAtMidnight breaks an interval into day-contained pieces in loc so no
// piece crosses a local midnight.
func splitAtMidnight(iv Interval, loc *time.Location) []Interval {
	var out []Interval
	cur := iv.Start.In(loc)
	end := iv.End.In(loc)
	for cur.Before(end) {
		next := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		if end.Before(next) {
			next = end
		}
		out = append(out, Interval{Start: cur, End: next})
		cur = next
	}
	return out
}

// intersect returns the overlap of two intervals, or an empty interval.
func intersect(a, b Interval) Interval {
	s, e := a.Start, a.End
	if b.Start.After(s) {
		s = b.Start
	}
	if b.End.Before(e) {
		e = b.End
	}
	return Interval{Start: s, End: e}
}

// subtract removes [s, e) from an ordered interval list, keeping order and
// merging nothing (inputs never overlap).
func subtract(ivs []Interval, s, e time.Time) []Interval {
	out := make([]Interval, 0, len(ivs)+1)
	for _, iv := range ivs {
		if !e.After(iv.Start) || !s.Before(iv.End) {
			out = append(out, iv)
			continue
		}
		if iv.Start.Before(s) {
			out = append(out, Interval{Start: iv.Start, End: s})
		}
		if e.Before(iv.End) {
			out = append(out, Interval{Start: e, End: iv.End})
		}
	}
	return out
}

// mergeSorted sorts intervals by start and merges overlaps.
func mergeSorted(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return ivs
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })
	out := []Interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
