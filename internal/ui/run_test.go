package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/lmendoza/quando/internal/pipeline"
	"github.com/lmendoza/quando/internal/task"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		kind pipeline.ErrorKind
		want int
	}{
		{pipeline.KindInfeasibleTotal, 2},
		{pipeline.KindInfeasibleLocal, 2},
		{pipeline.KindBackendUnavailable, 3},
		{pipeline.KindParseLLM, 1},
		{pipeline.KindTSParse, 1},
		{pipeline.KindNoCalendar, 1},
		{pipeline.KindNone, 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.kind); got != tt.want {
			t.Errorf("exitCode(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestCollectEventsSimple(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	start := time.Date(2025, 11, 19, 17, 0, 0, 0, loc)
	slot := task.Slot{Start: start, End: start.Add(30 * time.Minute)}

	res := &pipeline.Result{
		Scheduled: &task.Scheduled{
			ID:         "t-1",
			CalendarID: "cal-home",
			Type:       task.TypeSimple,
			Title:      "Call mom",
			Slot:       &slot,
		},
		Persisted: []task.Persisted{{ID: "t-1", EventID: "ev-1"}},
	}

	got := collectEvents(res)
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	ev := got[0]
	if ev.TaskID != "t-1" || ev.EventID != "ev-1" || ev.CalendarID != "cal-home" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ParentID != nil {
		t.Error("simple event should have no parent")
	}
	if ev.Start != "2025-11-19T17:00:00-05:00" {
		t.Errorf("start = %q", ev.Start)
	}
}

func TestCollectEventsComplexMarksMissing(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	at := func(h int) task.Slot {
		s := time.Date(2025, 11, 19, h, 0, 0, 0, loc)
		return task.Slot{Start: s, End: s.Add(time.Hour)}
	}

	res := &pipeline.Result{
		Scheduled: &task.Scheduled{
			ID:         "t-parent",
			CalendarID: "cal-work",
			Type:       task.TypeComplex,
			Title:      "Draft proposal",
			Subtasks: []task.ScheduledSubtask{
				{ID: "t-c1", ParentID: "t-parent", Title: "Research", Slot: at(9)},
				{ID: "t-c2", ParentID: "t-parent", Title: "Write", Slot: at(12)},
			},
		},
		// Only the first subtask made it onto the calendar.
		Persisted: []task.Persisted{{ID: "t-c1", EventID: "ev-1"}},
	}

	got := collectEvents(res)
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].EventID != "ev-1" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].EventID != "" {
		t.Errorf("second event should be unmapped, got %q", got[1].EventID)
	}
	for i, ev := range got {
		if ev.ParentID == nil || *ev.ParentID != "t-parent" {
			t.Errorf("event %d parent = %v", i, ev.ParentID)
		}
	}
}

func TestCollectEventsNoSchedule(t *testing.T) {
	res := &pipeline.Result{Err: errors.New("boom")}
	if got := collectEvents(res); got != nil {
		t.Errorf("events = %v, want nil", got)
	}
}
