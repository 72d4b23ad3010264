package ui

import (
	"context"
	"fmt"
)

// runList prints every tracked task, parents followed by their subtasks.
func (a *App) runList(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No tracked tasks.")
		return nil
	}

	fmt.Println(colorHeader.Sprintf("%d tracked task(s):", len(records)))
	for _, rec := range records {
		indent := ""
		if rec.ParentID != nil {
			indent = "    "
		}
		line := fmt.Sprintf("%s%s  %s", indent, rec.ID, rec.Title)
		if rec.EventID != "" {
			line += colorMuted.Sprintf("  [%s event %s]", rec.CalendarID, rec.EventID)
		} else if rec.ParentID == nil {
			line += colorMuted.Sprint("  [parent]")
		} else {
			line += colorWarn.Sprint("  [no event]")
		}
		fmt.Println(line)
	}
	return nil
}
