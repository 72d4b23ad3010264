// Package events turns scheduled tasks into calendar events and keeps the
// local task-to-event mapping in sync, including deletes.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/lmendoza/quando/internal/calbridge"
	"github.com/lmendoza/quando/internal/db"
	"github.com/lmendoza/quando/internal/task"
)

// Bridge is the calendar-bridge surface the event layer needs, normally
// *calbridge.Client.
type Bridge interface {
	Add(ctx context.Context, ev calbridge.AddEvent) (calbridge.Event, error)
	Delete(ctx context.Context, eventID string) error
}

// PartialError reports a complex task whose subtask events were only partly
// created. The created ones stay on the calendar and in the store.
type PartialError struct {
	Created int
	Total   int
	Errs    []error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("created %d of %d events", e.Created, e.Total)
}

// Creator writes scheduled tasks to the calendar and records the mapping.
type Creator struct {
	bridge Bridge
	store  *db.Store
}

// NewCreator creates a Creator.
func NewCreator(bridge Bridge, store *db.Store) *Creator {
	return &Creator{bridge: bridge, store: store}
}

// Create posts the task's events and persists the mappings. For complex
// tasks each subtask commits independently, so a mid-run failure leaves the
// already-created events recorded; the error is then a *PartialError.
func (c *Creator) Create(ctx context.Context, sch *task.Scheduled) ([]task.Persisted, error) {
	switch sch.Type {
	case task.TypeSimple:
		return c.createSimple(ctx, sch)
	case task.TypeComplex:
		return c.createComplex(ctx, sch)
	default:
		return nil, fmt.Errorf("creating events for %q task: %w", sch.Type, task.ErrInvalidTaskType)
	}
}

func (c *Creator) createSimple(ctx context.Context, sch *task.Scheduled) ([]task.Persisted, error) {
	if sch.Slot == nil {
		return nil, fmt.Errorf("simple task %s has no slot", sch.ID)
	}

	created, err := c.bridge.Add(ctx, calbridge.AddEvent{
		Title:      sch.Title,
		StartISO:   sch.Slot.Start.Format(time.RFC3339),
		EndISO:     sch.Slot.End.Format(time.RFC3339),
		Notes:      eventNotes(sch.ID, nil),
		CalendarID: sch.CalendarID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event for %q: %w", sch.Title, err)
	}

	rec := db.Record{ID: sch.ID, Title: sch.Title, CalendarID: sch.CalendarID, EventID: created.ID}
	if err := c.store.SaveScheduled(ctx, rec); err != nil {
		return nil, err
	}

	return []task.Persisted{{
		ID:         sch.ID,
		Title:      sch.Title,
		EventID:    created.ID,
		CalendarID: sch.CalendarID,
	}}, nil
}

func (c *Creator) createComplex(ctx context.Context, sch *task.Scheduled) ([]task.Persisted, error) {
	// The parent gets a task row but no calendar event.
	if err := c.store.SaveTask(ctx, sch.ID, sch.Title, nil); err != nil {
		return nil, err
	}

	var (
		persisted []task.Persisted
		errs      []error
	)
	for _, st := range sch.Subtasks {
		created, err := c.bridge.Add(ctx, calbridge.AddEvent{
			Title:      st.Title,
			StartISO:   st.Slot.Start.Format(time.RFC3339),
			EndISO:     st.Slot.End.Format(time.RFC3339),
			Notes:      eventNotes(st.ID, &st.ParentID),
			CalendarID: sch.CalendarID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("subtask %q: %w", st.Title, err))
			continue
		}

		parentID := st.ParentID
		rec := db.Record{ID: st.ID, Title: st.Title, ParentID: &parentID, CalendarID: sch.CalendarID, EventID: created.ID}
		if err := c.store.SaveScheduled(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("subtask %q: %w", st.Title, err))
			continue
		}

		persisted = append(persisted, task.Persisted{
			ID:         st.ID,
			Title:      st.Title,
			ParentID:   &parentID,
			EventID:    created.ID,
			CalendarID: sch.CalendarID,
		})
	}

	if len(errs) > 0 {
		return persisted, &PartialError{Created: len(persisted), Total: len(sch.Subtasks), Errs: errs}
	}
	return persisted, nil
}

// eventNotes renders the notes line that ties a calendar event back to its
// task row.
func eventNotes(id string, parentID *string) string {
	parent := "null"
	if parentID != nil {
		parent = *parentID
	}
	return fmt.Sprintf("id:%s, parent_id:%s", id, parent)
}
