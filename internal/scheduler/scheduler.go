// Package scheduler places an ordered list of task durations into free
// calendar time. It is a pure function of its inputs: no clock, no I/O.
//
// Placement respects hard constraints (daily work window, task order,
// per-day caps, minimum gaps, blackouts, deadline) and spreads tasks evenly
// across the eligible days as a soft objective.
package scheduler

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Options bounds the daily work window: tasks run within
// [WorkStartHour, WorkEndHour) local time.
type Options struct {
	WorkStartHour int
	WorkEndHour   int
}

// DefaultOptions is the 6am-11pm window.
func DefaultOptions() Options {
	return Options{WorkStartHour: 6, WorkEndHour: 23}
}

// ClockRange is a within-day range in minutes since local midnight,
// half-open.
type ClockRange struct {
	StartMin int
	EndMin   int
}

// Constraints are the optional hard constraints layered on top of the work
// window.
type Constraints struct {
	// WeeklyBlackouts recur on a weekday; DateBlackouts apply to one
	// calendar date keyed as YYYY-MM-DD.
	WeeklyBlackouts map[time.Weekday][]ClockRange
	DateBlackouts   map[string][]ClockRange
	// MinGapMinutes is the cooldown after each placed task on the same day.
	MinGapMinutes int
	// MaxTasksPerDay caps placements per day; 0 means unlimited.
	MaxTasksPerDay int
}

// Assignment is one placed task.
type Assignment struct {
	TaskIndex   int
	DurationMin int
	Day         string // YYYY-MM-DD local date
	Start       time.Time
	End         time.Time
}

// InfeasibleError reports why placement failed. TaskIndex is -1 when the
// total demand exceeds total availability, otherwise it names the first task
// that could not be placed.
type InfeasibleError struct {
	TaskIndex int
	NeedMin   int
	HaveMin   int
}

// Total reports whether the failure was global (demand > supply) rather than
// a single unplaceable task.
func (e *InfeasibleError) Total() bool { return e.TaskIndex < 0 }

func (e *InfeasibleError) Error() string {
	if e.Total() {
		return fmt.Sprintf("infeasible: need %d min but only %d min available", e.NeedMin, e.HaveMin)
	}
	return fmt.Sprintf("infeasible: cannot place task %d (%d min) before the deadline", e.TaskIndex, e.NeedMin)
}

type day struct {
	key  string
	date time.Time // local midnight
	free []Interval
}

// Schedule places durations (minutes, in execution order) into availability,
// honoring deadline and constraints. Availability may cross midnights and
// exceed the work window; it is normalized first. Returned assignments are
// in input order, which the algorithm also guarantees is chronological
// order. The map counts placements per local date.
func Schedule(durations []int, availability []Interval, deadline time.Time, loc *time.Location, cons Constraints, opts Options) ([]Assignment, map[string]int, error) {
	days := normalize(availability, deadline, loc, cons, opts)
	if len(durations) == 0 {
		return nil, map[string]int{}, nil
	}

	need, have := sum(durations), 0
	for _, d := range days {
		for _, iv := range d.free {
			have += iv.Minutes()
		}
	}
	if have < need {
		return nil, nil, &InfeasibleError{TaskIndex: -1, NeedMin: need, HaveMin: have}
	}

	targets := spreadTargets(len(durations), len(days))
	perDay := make(map[string]int, len(days))
	counts := make([]int, len(days))
	assignments := make([]Assignment, 0, len(durations))
	var prevEnd time.Time

	for i, dur := range durations {
		placed := false
		for _, di := range rankDays(len(days), targets[i], counts) {
			d := &days[di]
			if cons.MaxTasksPerDay > 0 && counts[di] >= cons.MaxTasksPerDay {
				continue
			}
			slot, ok := earliestFit(d.free, dur, prevEnd)
			if !ok {
				continue
			}

			assignments = append(assignments, Assignment{
				TaskIndex:   i,
				DurationMin: dur,
				Day:         d.key,
				Start:       slot.Start,
				End:         slot.End,
			})
			gapEnd := slot.End.Add(time.Duration(cons.MinGapMinutes) * time.Minute)
			d.free = subtract(d.free, slot.Start, gapEnd)
			counts[di]++
			perDay[d.key] = counts[di]
			prevEnd = slot.End
			placed = true
			break
		}
		if !placed {
			return nil, nil, &InfeasibleError{TaskIndex: i, NeedMin: dur, HaveMin: have}
		}
	}
	return assignments, perDay, nil
}

// normalize splits availability at local midnights, clips to the work window
// and the deadline, subtracts blackouts and groups the result by local date.
func normalize(availability []Interval, deadline time.Time, loc *time.Location, cons Constraints, opts Options) []day {
	byKey := make(map[string][]Interval)
	for _, iv := range availability {
		if iv.empty() {
			continue
		}
		for _, piece := range splitAtMidnight(iv, loc) {
			if !piece.Start.Before(deadline) {
				continue
			}
			if piece.End.After(deadline) {
				piece.End = deadline
			}

			// Wall-clock construction, not midnight+offset: on DST
			// transition days the instants differ by an hour.
			y, mo, d := piece.Start.In(loc).Date()
			midnight := time.Date(y, mo, d, 0, 0, 0, 0, loc)
			work := Interval{
				Start: time.Date(y, mo, d, opts.WorkStartHour, 0, 0, 0, loc),
				End:   time.Date(y, mo, d, opts.WorkEndHour, 0, 0, 0, loc),
			}
			clipped := intersect(piece, work)
			if clipped.empty() {
				continue
			}
			key := midnight.Format("2006-01-02")
			byKey[key] = append(byKey[key], clipped)
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	days := make([]day, 0, len(keys))
	for _, key := range keys {
		free := mergeSorted(byKey[key])
		midnight := free[0].Start.In(loc)
		midnight = time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 0, 0, 0, 0, loc)

		y, mo, d := midnight.Date()
		wallClock := func(min int) time.Time {
			return time.Date(y, mo, d, min/60, min%60, 0, 0, loc)
		}
		for _, br := range cons.WeeklyBlackouts[midnight.Weekday()] {
			free = subtract(free, wallClock(br.StartMin), wallClock(br.EndMin))
		}
		for _, br := range cons.DateBlackouts[key] {
			free = subtract(free, wallClock(br.StartMin), wallClock(br.EndMin))
		}
		if len(free) == 0 {
			continue
		}
		days = append(days, day{key: key, date: midnight, free: free})
	}
	return days
}

// spreadTargets computes the preferred day index for each task so tasks land
// evenly across the horizon. A single task targets the first day.
func spreadTargets(numTasks, numDays int) []int {
	targets := make([]int, numTasks)
	if numTasks <= 1 || numDays <= 1 {
		return targets
	}
	for i := range targets {
		targets[i] = int(math.Round(float64(i) * float64(numDays-1) / float64(numTasks-1)))
	}
	return targets
}

// rankDays orders candidate day indices by distance to the target day, then
// by current load, then by day index. The triple makes ties deterministic.
func rankDays(numDays, target int, counts []int) []int {
	order := make([]int, numDays)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		da, db := order[a], order[b]
		distA, distB := abs(da-target), abs(db-target)
		if distA != distB {
			return distA < distB
		}
		if counts[da] != counts[db] {
			return counts[da] < counts[db]
		}
		return da < db
	})
	return order
}

// earliestFit finds the earliest block of dur minutes in free that starts at
// or after notBefore. Task order is a hard constraint, so a task never
// starts before its predecessor's end.
func earliestFit(free []Interval, dur int, notBefore time.Time) (Interval, bool) {
	need := time.Duration(dur) * time.Minute
	for _, iv := range free {
		start := iv.Start
		if start.Before(notBefore) {
			start = notBefore
		}
		if !start.Add(need).After(iv.End) {
			return Interval{Start: start, End: start.Add(need)}, true
		}
	}
	return Interval{}, false
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
