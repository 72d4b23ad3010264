package events

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lmendoza/quando/internal/calbridge"
	"github.com/lmendoza/quando/internal/db"
	"github.com/lmendoza/quando/internal/task"
)

// fakeBridge records adds and deletes. failAfter > 0 makes Add fail once
// that many events were created.
type fakeBridge struct {
	mu        sync.Mutex
	added     []calbridge.AddEvent
	deleted   []string
	failAfter int
	deleteErr error
	nextID    int
}

func (f *fakeBridge) Add(ctx context.Context, ev calbridge.AddEvent) (calbridge.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.added) >= f.failAfter {
		return calbridge.Event{}, errors.New("bridge exploded")
	}
	f.added = append(f.added, ev)
	f.nextID++
	return calbridge.Event{Title: ev.Title, StartISO: ev.StartISO, EndISO: ev.EndISO, ID: fmt.Sprintf("ek-%d", f.nextID)}, nil
}

func (f *fakeBridge) Delete(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.Open(filepath.Join(t.TempDir(), "quando.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func slotAt(hour int) task.Slot {
	loc, _ := time.LoadLocation("America/New_York")
	start := time.Date(2025, 11, 19, hour, 0, 0, 0, loc)
	return task.Slot{Start: start, End: start.Add(time.Hour)}
}

func scheduledSimple() *task.Scheduled {
	s := slotAt(10)
	return &task.Scheduled{
		ID:         "t-simple",
		CalendarID: "cal-home",
		Type:       task.TypeSimple,
		Title:      "Call mom",
		Slot:       &s,
	}
}

func scheduledComplex() *task.Scheduled {
	sch := &task.Scheduled{
		ID:         "t-parent",
		CalendarID: "cal-work",
		Type:       task.TypeComplex,
		Title:      "Draft proposal",
	}
	for i, hour := range []int{9, 12, 15} {
		sch.Subtasks = append(sch.Subtasks, task.ScheduledSubtask{
			ID:       fmt.Sprintf("t-child-%d", i+1),
			ParentID: "t-parent",
			Title:    fmt.Sprintf("Step %d (proposal)", i+1),
			Slot:     slotAt(hour),
		})
	}
	return sch
}

func TestCreateSimple(t *testing.T) {
	bridge := &fakeBridge{}
	store := newTestStore(t)
	creator := NewCreator(bridge, store)
	ctx := context.Background()

	persisted, err := creator.Create(ctx, scheduledSimple())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(persisted) != 1 || persisted[0].EventID != "ek-1" {
		t.Fatalf("persisted = %+v", persisted)
	}
	if persisted[0].ParentID != nil {
		t.Error("simple task should have no parent")
	}

	if got := bridge.added[0].Notes; got != "id:t-simple, parent_id:null" {
		t.Errorf("notes = %q", got)
	}

	rec, err := store.Get(ctx, "t-simple")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.EventID != "ek-1" || rec.CalendarID != "cal-home" {
		t.Errorf("record = %+v", rec)
	}
}

func TestCreateComplex(t *testing.T) {
	bridge := &fakeBridge{}
	store := newTestStore(t)
	creator := NewCreator(bridge, store)
	ctx := context.Background()

	persisted, err := creator.Create(ctx, scheduledComplex())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(persisted) != 3 {
		t.Fatalf("persisted = %d, want 3", len(persisted))
	}

	// Every child event carries the parent ID in its notes.
	for _, ev := range bridge.added {
		if !strings.Contains(ev.Notes, "parent_id:t-parent") {
			t.Errorf("notes = %q", ev.Notes)
		}
	}

	// Parent row exists without an event mapping.
	parent, err := store.Get(ctx, "t-parent")
	if err != nil {
		t.Fatalf("Get parent: %v", err)
	}
	if parent.EventID != "" {
		t.Errorf("parent event = %q, want none", parent.EventID)
	}

	children, err := store.Children(ctx, "t-parent")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 3 {
		t.Errorf("children = %d, want 3", len(children))
	}
}

func TestCreateComplexPartialFailure(t *testing.T) {
	bridge := &fakeBridge{failAfter: 2}
	store := newTestStore(t)
	creator := NewCreator(bridge, store)
	ctx := context.Background()

	persisted, err := creator.Create(ctx, scheduledComplex())

	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v, want PartialError", err)
	}
	if partial.Created != 2 || partial.Total != 3 {
		t.Errorf("partial = %+v", partial)
	}
	if len(persisted) != 2 {
		t.Errorf("persisted = %d, want 2", len(persisted))
	}

	// The two successful children are committed regardless of the failure.
	children, err := store.Children(ctx, "t-parent")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 2 {
		t.Errorf("children = %d, want 2 committed", len(children))
	}
}

func TestDeleteTaskSimple(t *testing.T) {
	bridge := &fakeBridge{}
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := NewCreator(bridge, store).Create(ctx, scheduledSimple()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rep, err := NewDeleter(bridge, store).DeleteTask(ctx, "t-simple")
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if rep.Rows != 1 || rep.Events != 1 {
		t.Errorf("report = %+v, want 1 row and 1 event", rep)
	}
	if len(bridge.deleted) != 1 || bridge.deleted[0] != "ek-1" {
		t.Errorf("bridge deletes = %v", bridge.deleted)
	}
	if _, err := store.Get(ctx, "t-simple"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTaskCascades(t *testing.T) {
	bridge := &fakeBridge{}
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := NewCreator(bridge, store).Create(ctx, scheduledComplex()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rep, err := NewDeleter(bridge, store).DeleteTask(ctx, "t-parent")
	if err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	// Three children plus the parent row; the parent has no backend event.
	if rep.Rows != 4 || rep.Events != 3 {
		t.Errorf("report = %+v, want 4 rows and 3 events", rep)
	}
	if len(bridge.deleted) != 3 {
		t.Errorf("bridge deletes = %d, want 3", len(bridge.deleted))
	}
	if _, err := store.Get(ctx, "t-parent"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("parent err = %v, want ErrNotFound", err)
	}
}

func TestDeleteChildrenKeepsParent(t *testing.T) {
	bridge := &fakeBridge{}
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := NewCreator(bridge, store).Create(ctx, scheduledComplex()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rep, err := NewDeleter(bridge, store).DeleteChildren(ctx, "t-parent")
	if err != nil {
		t.Fatalf("DeleteChildren: %v", err)
	}
	if rep.Rows != 3 || rep.Events != 3 {
		t.Errorf("report = %+v, want 3 rows and 3 events", rep)
	}
	if _, err := store.Get(ctx, "t-parent"); err != nil {
		t.Errorf("parent should survive, got %v", err)
	}
	children, _ := store.Children(ctx, "t-parent")
	if len(children) != 0 {
		t.Errorf("children = %d, want 0", len(children))
	}
}

func TestDeleteTaskMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := NewDeleter(&fakeBridge{}, store).DeleteTask(context.Background(), "nope")
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAll(t *testing.T) {
	bridge := &fakeBridge{}
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := NewCreator(bridge, store).Create(ctx, scheduledSimple()); err != nil {
		t.Fatalf("Create simple: %v", err)
	}
	if _, err := NewCreator(bridge, store).Create(ctx, scheduledComplex()); err != nil {
		t.Fatalf("Create complex: %v", err)
	}

	rep, err := NewDeleter(bridge, store).DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	// Simple + parent + three children; the parent row has no event.
	if rep.Rows != 5 || rep.Events != 4 {
		t.Errorf("report = %+v, want 5 rows and 4 events", rep)
	}
	if len(bridge.deleted) != 4 {
		t.Errorf("bridge deletes = %d, want 4", len(bridge.deleted))
	}

	all, _ := store.List(ctx)
	if len(all) != 0 {
		t.Errorf("remaining = %d, want 0", len(all))
	}
}

func TestDeleteAllStopsOnBridgeError(t *testing.T) {
	bridge := &fakeBridge{}
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := NewCreator(bridge, store).Create(ctx, scheduledSimple()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	bridge.deleteErr = errors.New("bridge down")

	if _, err := NewDeleter(bridge, store).DeleteAll(ctx); err == nil {
		t.Fatal("expected error")
	}

	// The row is kept so a later retry can finish the job.
	if _, err := store.Get(ctx, "t-simple"); err != nil {
		t.Errorf("row should survive failed delete, got %v", err)
	}
}
