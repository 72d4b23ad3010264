package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/lmendoza/quando/internal/db"
	"github.com/lmendoza/quando/internal/events"
)

// runDelete deletes one task. Parents cascade to their subtasks.
func (a *App) runDelete(ctx context.Context, id string) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rep, err := events.NewDeleter(a.bridge(), store).DeleteTask(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("no tracked task with ID %s", id)
		}
		return fmt.Errorf("deleting task: %w", err)
	}
	fmt.Printf("Deleted %d task(s) and %d calendar event(s).\n", rep.Rows, rep.Events)
	return nil
}

// runDeleteParent deletes the subtasks of a parent, keeping the parent row.
func (a *App) runDeleteParent(ctx context.Context, parentID string) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rep, err := events.NewDeleter(a.bridge(), store).DeleteChildren(ctx, parentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("no tracked task with ID %s", parentID)
		}
		return fmt.Errorf("deleting subtasks: %w", err)
	}
	fmt.Printf("Deleted %d subtask(s) of %s (%d calendar events).\n", rep.Rows, parentID, rep.Events)
	return nil
}

// runDeleteAll wipes every tracked task after an explicit typed confirmation.
func (a *App) runDeleteAll(ctx context.Context) error {
	if err := confirmDeleteAll(); err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rep, err := events.NewDeleter(a.bridge(), store).DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("deleting all tasks: %w", err)
	}
	if rep.Rows == 0 {
		fmt.Println("No tracked tasks.")
		return nil
	}
	fmt.Printf("Deleted %d task(s) and %d calendar event(s).\n", rep.Rows, rep.Events)
	return nil
}

func confirmDeleteAll() error {
	var answer string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Delete ALL tracked tasks and their calendar events?").
			Description("Type 'yes' to confirm.").
			Value(&answer),
	))
	if err := form.Run(); err != nil {
		return err
	}
	if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
		return fmt.Errorf("aborted: confirmation not given")
	}
	return nil
}
