package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lmendoza/quando/internal/allot"
	"github.com/lmendoza/quando/internal/events"
	"github.com/lmendoza/quando/internal/llm"
	"github.com/lmendoza/quando/internal/pipeline"
	"github.com/lmendoza/quando/internal/task"
)

// runQuery pushes one query through the pipeline and renders the trace.
func (a *App) runQuery(ctx context.Context, query string) error {
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	client, err := llm.NewClient(a.cfg.LLM.Provider, a.cfg.LLM.Model, a.cfg.LLM.BaseURL)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	opts := allot.Options{
		WorkStartHour:          a.cfg.Schedule.WorkStartHour,
		WorkEndHour:            a.cfg.Schedule.WorkEndHour,
		MinGapMinutes:          a.cfg.Schedule.MinGapMinutes,
		MaxTasksPerDay:         a.cfg.Schedule.MaxTasksPerDay,
		DefaultDurationMinutes: a.cfg.Schedule.DefaultDurationMinutes,
		HolidayCalendar:        a.cfg.Calendar.HolidayCalendar,
	}

	res := pipeline.New(client, a.bridge(), store, opts, loc).Run(ctx, query)

	if a.jsonOut {
		if err := renderJSON(os.Stdout, res); err != nil {
			return err
		}
	} else {
		renderTrace(res)
	}

	if res.Err == nil {
		return nil
	}
	// Partially created events stay on the calendar and in the store, so the
	// run still counts as a success; the trace shows what is missing.
	var partial *events.PartialError
	if errors.As(res.Err, &partial) {
		return nil
	}
	return &ExitError{Code: exitCode(res.Kind), Err: res.Err}
}

func stageSymbol(status string) string {
	switch status {
	case pipeline.StatusOK:
		return colorOK.Sprint("✓")
	case pipeline.StatusError:
		return colorErr.Sprint("✗")
	case pipeline.StatusSkipped:
		return colorMuted.Sprint("-")
	default:
		return colorMuted.Sprint("·")
	}
}

// renderTrace prints the per-stage trace and a summary block.
func renderTrace(res *pipeline.Result) {
	width := termWidth()
	for _, st := range res.Stages {
		symbol := stageSymbol(st.Status)
		detail := st.Detail
		// Keep one stage per line even in narrow terminals.
		if max := width - 16; max > 10 && len(detail) > max {
			detail = detail[:max-1] + "…"
		}
		fmt.Printf("%s %-12s %s\n", symbol, st.Name, colorMuted.Sprint(detail))
	}
	fmt.Println()

	if res.Err != nil {
		fmt.Printf("%s %v\n", colorErr.Sprint("error:"), res.Err)
		if res.Kind != pipeline.KindNone {
			fmt.Println(colorMuted.Sprintf("(%s)", res.Kind))
		}
		if res.Kind == pipeline.KindPartialCreate {
			fmt.Println(colorWarn.Sprint("Some events were created; use --list and --delete to clean up or retry."))
		}
		if len(res.Persisted) == 0 {
			return
		}
	}

	if res.Scheduled == nil {
		return
	}
	fmt.Printf("%s %s\n", colorHeader.Sprint("Scheduled:"), res.Scheduled.Title)
	eventIDs := make(map[string]string, len(res.Persisted))
	for _, p := range res.Persisted {
		eventIDs[p.ID] = p.EventID
	}
	if res.Scheduled.Slot != nil {
		printSlot(*res.Scheduled.Slot, res.Scheduled.Title, res.Scheduled.ID, eventIDs[res.Scheduled.ID])
	}
	for _, st := range res.Scheduled.Subtasks {
		printSlot(st.Slot, st.Title, st.ID, eventIDs[st.ID])
	}
}

func printSlot(slot task.Slot, title, id, eventID string) {
	when := fmt.Sprintf("%s – %s", slot.Start.Format("Mon Jan 2 15:04"), slot.End.Format("15:04"))
	line := fmt.Sprintf("  %s  %s", colorSlot.Sprint(when), title)
	if eventID == "" {
		line += colorWarn.Sprint("  (no event)")
	}
	fmt.Println(line)
	fmt.Println(colorMuted.Sprintf("      task %s", id))
}

type jsonEvent struct {
	TaskID     string  `json:"task_id"`
	ParentID   *string `json:"parent_id,omitempty"`
	Title      string  `json:"title"`
	Start      string  `json:"start,omitempty"`
	End        string  `json:"end,omitempty"`
	CalendarID string  `json:"calendar_id"`
	EventID    string  `json:"event_id,omitempty"`
}

type jsonTrace struct {
	Query     string             `json:"query"`
	Stages    []pipeline.Stage   `json:"stages"`
	Events    []jsonEvent        `json:"events,omitempty"`
	ErrorKind pipeline.ErrorKind `json:"error_kind,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// renderJSON emits the machine-readable trace.
func renderJSON(w *os.File, res *pipeline.Result) error {
	out := jsonTrace{
		Query:     res.Query,
		Stages:    res.Stages,
		Events:    collectEvents(res),
		ErrorKind: res.Kind,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func collectEvents(res *pipeline.Result) []jsonEvent {
	if res.Scheduled == nil {
		return nil
	}
	eventIDs := make(map[string]string, len(res.Persisted))
	for _, p := range res.Persisted {
		eventIDs[p.ID] = p.EventID
	}

	const iso = "2006-01-02T15:04:05-07:00"
	var out []jsonEvent
	if res.Scheduled.Slot != nil {
		out = append(out, jsonEvent{
			TaskID:     res.Scheduled.ID,
			Title:      res.Scheduled.Title,
			Start:      res.Scheduled.Slot.Start.Format(iso),
			End:        res.Scheduled.Slot.End.Format(iso),
			CalendarID: res.Scheduled.CalendarID,
			EventID:    eventIDs[res.Scheduled.ID],
		})
	}
	for _, st := range res.Scheduled.Subtasks {
		parentID := st.ParentID
		out = append(out, jsonEvent{
			TaskID:     st.ID,
			ParentID:   &parentID,
			Title:      st.Title,
			Start:      st.Slot.Start.Format(iso),
			End:        st.Slot.End.Format(iso),
			CalendarID: res.Scheduled.CalendarID,
			EventID:    eventIDs[st.ID],
		})
	}
	return out
}
