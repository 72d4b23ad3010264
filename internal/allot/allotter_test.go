package allot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lmendoza/quando/internal/calbridge"
	"github.com/lmendoza/quando/internal/scheduler"
	"github.com/lmendoza/quando/internal/task"
)

type fakeSource struct {
	events []calbridge.Event
	err    error
	days   int
}

func (f *fakeSource) Events(ctx context.Context, days int) ([]calbridge.Event, error) {
	f.days = days
	return f.events, f.err
}

func nyc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func testOptions() Options {
	return Options{
		WorkStartHour:          6,
		WorkEndHour:            23,
		DefaultDurationMinutes: 30,
		HolidayCalendar:        "Holidays",
	}
}

func newTestAllotter(t *testing.T, src EventSource) *Allotter {
	t.Helper()
	a := New(src, testOptions(), nyc(t))
	n := 0
	a.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return a
}

func testWindow(t *testing.T, startDay, endDay int) task.Window {
	t.Helper()
	loc := nyc(t)
	return task.Window{
		Start: time.Date(2025, 11, startDay, 0, 0, 0, 0, loc),
		End:   time.Date(2025, 11, endDay, 23, 59, 59, 0, loc),
	}
}

func event(loc *time.Location, day, startHour, endHour int, calendar string) calbridge.Event {
	return calbridge.Event{
		Title:    "busy",
		StartISO: time.Date(2025, 11, day, startHour, 0, 0, 0, loc).Format(time.RFC3339),
		EndISO:   time.Date(2025, 11, day, endHour, 0, 0, 0, loc).Format(time.RFC3339),
		Calendar: calendar,
	}
}

func simpleTask(minutes int) task.Classified {
	cls := task.Classified{CalendarID: "cal-1", Type: task.TypeSimple, Title: "Call mom"}
	if minutes > 0 {
		d := task.DurationFromMinutes(minutes)
		cls.Duration = &d
	}
	return cls
}

func TestAllotSimpleEarliestSlot(t *testing.T) {
	a := newTestAllotter(t, &fakeSource{})
	win := testWindow(t, 18, 18)

	got, err := a.AllotSimple(context.Background(), simpleTask(60), win)
	if err != nil {
		t.Fatalf("AllotSimple: %v", err)
	}

	loc := nyc(t)
	wantStart := time.Date(2025, 11, 18, 6, 0, 0, 0, loc)
	if !got.Slot.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", got.Slot.Start, wantStart)
	}
	if got.Slot.End.Sub(got.Slot.Start) != time.Hour {
		t.Errorf("duration = %v", got.Slot.End.Sub(got.Slot.Start))
	}
	if got.ID != "id-1" || got.CalendarID != "cal-1" {
		t.Errorf("scheduled = %+v", got)
	}
}

func TestAllotSimpleDefaultDuration(t *testing.T) {
	a := newTestAllotter(t, &fakeSource{})
	win := testWindow(t, 18, 18)

	got, err := a.AllotSimple(context.Background(), simpleTask(0), win)
	if err != nil {
		t.Fatalf("AllotSimple: %v", err)
	}
	if got.Slot.End.Sub(got.Slot.Start) != 30*time.Minute {
		t.Errorf("duration = %v, want default 30m", got.Slot.End.Sub(got.Slot.Start))
	}
}

func TestAllotSimpleAvoidsBusy(t *testing.T) {
	loc := nyc(t)
	src := &fakeSource{events: []calbridge.Event{
		event(loc, 18, 6, 9, "Work"),
	}}
	a := newTestAllotter(t, src)
	win := testWindow(t, 18, 18)

	got, err := a.AllotSimple(context.Background(), simpleTask(60), win)
	if err != nil {
		t.Fatalf("AllotSimple: %v", err)
	}
	wantStart := time.Date(2025, 11, 18, 9, 0, 0, 0, loc)
	if !got.Slot.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v after busy block", got.Slot.Start, wantStart)
	}
}

func TestAllotSimpleIgnoresHolidayCalendar(t *testing.T) {
	loc := nyc(t)
	src := &fakeSource{events: []calbridge.Event{
		event(loc, 18, 0, 23, "US Holidays"),
	}}
	a := newTestAllotter(t, src)
	win := testWindow(t, 18, 18)

	got, err := a.AllotSimple(context.Background(), simpleTask(60), win)
	if err != nil {
		t.Fatalf("AllotSimple: %v", err)
	}
	wantStart := time.Date(2025, 11, 18, 6, 0, 0, 0, loc)
	if !got.Slot.Start.Equal(wantStart) {
		t.Errorf("start = %v, holiday should not block", got.Slot.Start)
	}
}

func TestAllotSimpleInfeasible(t *testing.T) {
	loc := nyc(t)
	src := &fakeSource{events: []calbridge.Event{
		event(loc, 18, 6, 23, "Work"),
	}}
	a := newTestAllotter(t, src)
	win := testWindow(t, 18, 18)

	_, err := a.AllotSimple(context.Background(), simpleTask(60), win)
	var infeasible *scheduler.InfeasibleError
	if !errors.As(err, &infeasible) {
		t.Fatalf("err = %v, want InfeasibleError", err)
	}
}

func TestAllotSimpleSourceError(t *testing.T) {
	wantErr := errors.New("bridge down")
	a := newTestAllotter(t, &fakeSource{err: wantErr})

	_, err := a.AllotSimple(context.Background(), simpleTask(30), testWindow(t, 18, 18))
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped source error", err)
	}
}

func TestAllotSimpleRejectsComplexType(t *testing.T) {
	a := newTestAllotter(t, &fakeSource{})
	cls := simpleTask(30)
	cls.Type = task.TypeComplex

	_, err := a.AllotSimple(context.Background(), cls, testWindow(t, 18, 18))
	if !errors.Is(err, task.ErrInvalidTaskType) {
		t.Errorf("err = %v, want ErrInvalidTaskType", err)
	}
}

func complexTask() task.Decomposed {
	return task.Decomposed{
		Classified: task.Classified{CalendarID: "cal-1", Type: task.TypeComplex, Title: "Draft proposal"},
		Subtasks: []task.Subtask{
			{Title: "Research (proposal)", Duration: task.DurationFromMinutes(90)},
			{Title: "Write (proposal)", Duration: task.DurationFromMinutes(120)},
			{Title: "Review (proposal)", Duration: task.DurationFromMinutes(60)},
		},
	}
}

func TestAllotComplexOrderedAndSpread(t *testing.T) {
	a := newTestAllotter(t, &fakeSource{})
	win := testWindow(t, 18, 23) // six days

	got, err := a.AllotComplex(context.Background(), complexTask(), win)
	if err != nil {
		t.Fatalf("AllotComplex: %v", err)
	}
	if got.ID != "id-1" || len(got.Subtasks) != 3 {
		t.Fatalf("scheduled = %+v", got)
	}
	if got.Slot != nil {
		t.Error("complex parent should carry no slot")
	}

	days := map[string]bool{}
	for i, st := range got.Subtasks {
		if st.ParentID != got.ID {
			t.Errorf("subtask %d parent = %q", i, st.ParentID)
		}
		if i > 0 && got.Subtasks[i-1].Slot.End.After(st.Slot.Start) {
			t.Errorf("subtask %d starts before %d ends", i, i-1)
		}
		days[st.Slot.Start.Format("2006-01-02")] = true
	}
	// Three tasks over six days should land on three distinct days.
	if len(days) != 3 {
		t.Errorf("distinct days = %d, want 3", len(days))
	}
}

func TestAllotComplexDurationsExact(t *testing.T) {
	a := newTestAllotter(t, &fakeSource{})
	win := testWindow(t, 18, 23)

	got, err := a.AllotComplex(context.Background(), complexTask(), win)
	if err != nil {
		t.Fatalf("AllotComplex: %v", err)
	}
	want := []time.Duration{90 * time.Minute, 120 * time.Minute, 60 * time.Minute}
	for i, st := range got.Subtasks {
		if d := st.Slot.End.Sub(st.Slot.Start); d != want[i] {
			t.Errorf("subtask %d duration = %v, want %v", i, d, want[i])
		}
	}
}

func TestAllotComplexTotalInfeasible(t *testing.T) {
	loc := nyc(t)
	// Only one free hour in the whole window.
	src := &fakeSource{events: []calbridge.Event{
		event(loc, 18, 6, 22, "Work"),
	}}
	a := newTestAllotter(t, src)
	win := testWindow(t, 18, 18)

	_, err := a.AllotComplex(context.Background(), complexTask(), win)
	var infeasible *scheduler.InfeasibleError
	if !errors.As(err, &infeasible) {
		t.Fatalf("err = %v, want InfeasibleError", err)
	}
	if !infeasible.Total() {
		t.Errorf("expected total infeasibility, got %+v", infeasible)
	}
}

func TestAllotSimpleRejectsMalformedBusyEvent(t *testing.T) {
	src := &fakeSource{events: []calbridge.Event{{
		Title:    "corrupted",
		StartISO: "not-a-timestamp",
		EndISO:   "2025-11-18T10:00:00-05:00",
		Calendar: "Work",
	}}}
	a := newTestAllotter(t, src)

	_, err := a.AllotSimple(context.Background(), simpleTask(30), testWindow(t, 18, 18))
	if err == nil {
		t.Fatal("expected error for malformed busy event")
	}
	if !strings.Contains(err.Error(), "malformed start time") {
		t.Errorf("err = %v, want malformed-start complaint", err)
	}
}
