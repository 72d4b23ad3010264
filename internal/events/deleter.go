package events

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lmendoza/quando/internal/db"
)

// deleteConcurrency bounds the bridge fan-out during bulk deletes.
const deleteConcurrency = 4

// DeleteReport counts what a delete removed. Rows and Events differ for
// complex tasks because parent rows carry no calendar event.
type DeleteReport struct {
	Rows   int // task rows removed from the store
	Events int // calendar events removed from the backend
}

// Deleter removes calendar events and their task rows. Events already gone
// from the calendar count as deleted.
type Deleter struct {
	bridge Bridge
	store  *db.Store
}

// NewDeleter creates a Deleter.
func NewDeleter(bridge Bridge, store *db.Store) *Deleter {
	return &Deleter{bridge: bridge, store: store}
}

// DeleteTask deletes a task by ID. Parents cascade: every child is deleted
// first, then the parent row.
func (d *Deleter) DeleteTask(ctx context.Context, id string) (DeleteReport, error) {
	rec, err := d.store.Get(ctx, id)
	if err != nil {
		return DeleteReport{}, err
	}

	rep, err := d.deleteChildren(ctx, id)
	if err != nil {
		return rep, err
	}

	if rec.EventID != "" {
		if err := d.bridge.Delete(ctx, rec.EventID); err != nil {
			return rep, fmt.Errorf("deleting event for task %s: %w", id, err)
		}
		rep.Events++
	}
	if err := d.store.Delete(ctx, id); err != nil {
		return rep, err
	}
	rep.Rows++
	return rep, nil
}

// DeleteChildren deletes the subtasks of a parent but keeps the parent row.
func (d *Deleter) DeleteChildren(ctx context.Context, parentID string) (DeleteReport, error) {
	if _, err := d.store.Get(ctx, parentID); err != nil {
		return DeleteReport{}, err
	}
	return d.deleteChildren(ctx, parentID)
}

func (d *Deleter) deleteChildren(ctx context.Context, parentID string) (DeleteReport, error) {
	children, err := d.store.Children(ctx, parentID)
	if err != nil {
		return DeleteReport{}, err
	}

	var rep DeleteReport
	for _, child := range children {
		if child.EventID != "" {
			if err := d.bridge.Delete(ctx, child.EventID); err != nil {
				return rep, fmt.Errorf("deleting event for subtask %s: %w", child.ID, err)
			}
			rep.Events++
		}
		if err := d.store.Delete(ctx, child.ID); err != nil {
			return rep, err
		}
		rep.Rows++
	}
	return rep, nil
}

// DeleteAll removes every tracked task and its events. Bridge deletes run
// concurrently; rows are only dropped after every event delete succeeded.
func (d *Deleter) DeleteAll(ctx context.Context) (DeleteReport, error) {
	records, err := d.store.List(ctx)
	if err != nil {
		return DeleteReport{}, err
	}

	var rep DeleteReport
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, rec := range records {
		if rec.EventID == "" {
			continue
		}
		rep.Events++
		eventID := rec.EventID
		g.Go(func() error {
			return d.bridge.Delete(gctx, eventID)
		})
	}
	if err := g.Wait(); err != nil {
		return DeleteReport{}, fmt.Errorf("deleting events: %w", err)
	}

	for _, rec := range records {
		if err := d.store.Delete(ctx, rec.ID); err != nil {
			return rep, err
		}
		rep.Rows++
	}
	return rep, nil
}
