// Package allot places tasks into free calendar time. It fetches busy events
// from the calendar bridge, computes the free complement inside the task's
// window and hands the durations to the scheduler.
package allot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lmendoza/quando/internal/calbridge"
	"github.com/lmendoza/quando/internal/scheduler"
	"github.com/lmendoza/quando/internal/task"
)

// ErrValidation marks a placement that violated its own constraints after
// scheduling. It should never fire; it exists to catch scheduler regressions
// before they reach the calendar.
var ErrValidation = errors.New("allotment validation failed")

// maxFetchDays caps the busy-event fetch span.
const maxFetchDays = 365

// EventSource supplies busy events, normally *calbridge.Client.
type EventSource interface {
	Events(ctx context.Context, days int) ([]calbridge.Event, error)
}

// Options tunes placement.
type Options struct {
	WorkStartHour          int
	WorkEndHour            int
	MinGapMinutes          int
	MaxTasksPerDay         int
	DefaultDurationMinutes int
	HolidayCalendar        string // calendar title excluded from busy time
}

// Allotter schedules tasks into free slots.
type Allotter struct {
	source EventSource
	opts   Options
	loc    *time.Location
	newID  func() string
}

// New creates an Allotter.
func New(source EventSource, opts Options, loc *time.Location) *Allotter {
	return &Allotter{
		source: source,
		opts:   opts,
		loc:    loc,
		newID:  func() string { return uuid.NewString() },
	}
}

// AllotSimple places one simple task inside its window and returns it with a
// fresh ID and slot.
func (a *Allotter) AllotSimple(ctx context.Context, cls task.Classified, win task.Window) (*task.Scheduled, error) {
	if cls.Type != task.TypeSimple {
		return nil, fmt.Errorf("allotting %q task as simple: %w", cls.Type, task.ErrInvalidTaskType)
	}

	minutes := a.opts.DefaultDurationMinutes
	if cls.Duration != nil {
		minutes = cls.Duration.Minutes()
	}

	busy, err := a.fetchBusy(ctx, win)
	if err != nil {
		return nil, err
	}

	assignments, err := a.schedule([]int{minutes}, busy, win)
	if err != nil {
		return nil, err
	}

	slot := task.Slot{Start: assignments[0].Start, End: assignments[0].End}
	if err := a.validate([]task.Slot{slot}, []int{minutes}, win, busy); err != nil {
		return nil, err
	}

	return &task.Scheduled{
		ID:         a.newID(),
		CalendarID: cls.CalendarID,
		Type:       task.TypeSimple,
		Title:      cls.Title,
		Slot:       &slot,
	}, nil
}

// AllotComplex places every subtask of a decomposed task, preserving subtask
// order chronologically.
func (a *Allotter) AllotComplex(ctx context.Context, dec task.Decomposed, win task.Window) (*task.Scheduled, error) {
	if dec.Type != task.TypeComplex {
		return nil, fmt.Errorf("allotting %q task as complex: %w", dec.Type, task.ErrInvalidTaskType)
	}
	if err := dec.Validate(); err != nil {
		return nil, err
	}

	durations := make([]int, len(dec.Subtasks))
	for i, st := range dec.Subtasks {
		durations[i] = st.Duration.Minutes()
	}

	busy, err := a.fetchBusy(ctx, win)
	if err != nil {
		return nil, err
	}

	assignments, err := a.schedule(durations, busy, win)
	if err != nil {
		return nil, err
	}

	slots := make([]task.Slot, len(assignments))
	for _, as := range assignments {
		slots[as.TaskIndex] = task.Slot{Start: as.Start, End: as.End}
	}
	if err := a.validate(slots, durations, win, busy); err != nil {
		return nil, err
	}

	parentID := a.newID()
	scheduled := &task.Scheduled{
		ID:         parentID,
		CalendarID: dec.CalendarID,
		Type:       task.TypeComplex,
		Title:      dec.Title,
	}
	for i, st := range dec.Subtasks {
		scheduled.Subtasks = append(scheduled.Subtasks, task.ScheduledSubtask{
			ID:       a.newID(),
			ParentID: parentID,
			Title:    st.Title,
			Slot:     slots[i],
		})
	}
	return scheduled, nil
}

// fetchBusy pulls events covering the window and returns the non-holiday
// ones clipped to it, sorted and merged by the caller via subtraction.
func (a *Allotter) fetchBusy(ctx context.Context, win task.Window) ([]task.Slot, error) {
	days := int(win.End.Sub(time.Now().In(a.loc)).Hours()/24) + 2
	if span := int(win.End.Sub(win.Start).Hours()/24) + 2; span > days {
		days = span
	}
	if days < 1 {
		days = 1
	}
	if days > maxFetchDays {
		days = maxFetchDays
	}

	events, err := a.source.Events(ctx, days)
	if err != nil {
		return nil, err
	}

	var busy []task.Slot
	for _, ev := range events {
		if a.isHoliday(ev) {
			continue
		}
		// A malformed timestamp must not silently turn busy time into
		// availability.
		start, err := time.Parse(time.RFC3339, ev.StartISO)
		if err != nil {
			return nil, fmt.Errorf("event %q has malformed start time %q: %w", ev.Title, ev.StartISO, err)
		}
		end, err := time.Parse(time.RFC3339, ev.EndISO)
		if err != nil {
			return nil, fmt.Errorf("event %q has malformed end time %q: %w", ev.Title, ev.EndISO, err)
		}
		start, end = start.In(a.loc), end.In(a.loc)
		if start.Before(win.End) && end.After(win.Start) {
			busy = append(busy, task.Slot{Start: start, End: end})
		}
	}
	return busy, nil
}

// isHoliday reports whether the event lives in a holiday calendar. The
// configured title counts, as does any calendar with "holiday" in its name.
func (a *Allotter) isHoliday(ev calbridge.Event) bool {
	name := strings.ToLower(strings.TrimSpace(ev.Calendar))
	if name == "" {
		return false
	}
	if strings.Contains(name, "holiday") {
		return true
	}
	configured := strings.ToLower(strings.TrimSpace(a.opts.HolidayCalendar))
	return configured != "" && name == configured
}

// schedule computes free intervals and runs the even-spread scheduler.
func (a *Allotter) schedule(durations []int, busy []task.Slot, win task.Window) ([]scheduler.Assignment, error) {
	free := freeIntervals(win, busy)

	cons := scheduler.Constraints{
		MinGapMinutes:  a.opts.MinGapMinutes,
		MaxTasksPerDay: a.opts.MaxTasksPerDay,
	}
	opts := scheduler.Options{
		WorkStartHour: a.opts.WorkStartHour,
		WorkEndHour:   a.opts.WorkEndHour,
	}

	assignments, _, err := scheduler.Schedule(durations, free, win.End, a.loc, cons, opts)
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// freeIntervals subtracts busy slots from the window.
func freeIntervals(win task.Window, busy []task.Slot) []scheduler.Interval {
	free := []scheduler.Interval{{Start: win.Start, End: win.End}}
	for _, b := range busy {
		var next []scheduler.Interval
		for _, f := range free {
			if b.End.Before(f.Start) || !b.Start.Before(f.End) || b.End.Equal(f.Start) {
				next = append(next, f)
				continue
			}
			if b.Start.After(f.Start) {
				next = append(next, scheduler.Interval{Start: f.Start, End: b.Start})
			}
			if b.End.Before(f.End) {
				next = append(next, scheduler.Interval{Start: b.End, End: f.End})
			}
		}
		free = next
	}
	return free
}

// validate rechecks every placement: inside the window, exact duration, no
// busy overlap, and strictly ordered non-overlapping slots.
func (a *Allotter) validate(slots []task.Slot, durations []int, win task.Window, busy []task.Slot) error {
	for i, s := range slots {
		if s.Start.Before(win.Start) {
			return fmt.Errorf("%w: slot %d starts before window", ErrValidation, i)
		}
		if s.End.After(win.End) {
			return fmt.Errorf("%w: slot %d ends after window", ErrValidation, i)
		}
		if !s.Start.Before(s.End) {
			return fmt.Errorf("%w: slot %d start not before end", ErrValidation, i)
		}
		if got := int(s.End.Sub(s.Start).Minutes()); got != durations[i] {
			return fmt.Errorf("%w: slot %d duration %d min, want %d", ErrValidation, i, got, durations[i])
		}
		for _, b := range busy {
			if s.Start.Before(b.End) && s.End.After(b.Start) {
				return fmt.Errorf("%w: slot %d overlaps busy event", ErrValidation, i)
			}
		}
		if i > 0 && slots[i-1].End.After(s.Start) {
			return fmt.Errorf("%w: slot %d starts before slot %d ends", ErrValidation, i, i-1)
		}
	}
	return nil
}
