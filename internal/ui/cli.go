// Package ui is the cobra command surface: one root command that either
// schedules a query or manages tracked tasks via flags.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/lmendoza/quando/internal/calbridge"
	"github.com/lmendoza/quando/internal/config"
	"github.com/lmendoza/quando/internal/db"
	"github.com/lmendoza/quando/internal/pipeline"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// ExitError carries the process exit code for a failed run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// App holds the CLI application state.
type App struct {
	cfg  *config.Config
	root *cobra.Command

	configPath  string
	timezone    string
	dbPath      string
	jsonOut     bool
	interactive bool
	noColor     bool

	listTasks    bool
	deleteID     string
	deleteParent string
	deleteAll    bool
}

// NewApp creates the CLI application.
func NewApp() *App {
	a := &App{}

	a.root = &cobra.Command{
		Use:   "quando [query]",
		Short: "Schedule natural-language tasks onto your calendar",
		Long: `Quando turns a natural-language request like "finish the report by Friday"
into concrete calendar events. Simple tasks get a single slot; complex tasks
are broken into ordered subtasks and spread over the available days.`,
		Example: `  quando "call mom tomorrow at 5pm for 30 minutes"
  quando "prepare the quarterly review by Friday"
  quando --list
  quando --delete 6f1c9a7e-4b2d-4c52-9e1f-8f0f4f7f2a10`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			return a.run(cmd.Context(), args)
		},
	}

	flags := a.root.Flags()
	flags.StringVar(&a.configPath, "config", "", "Config file path (default ~/.config/quando/config.toml)")
	flags.StringVar(&a.timezone, "timezone", "", "IANA timezone override, e.g. Europe/Madrid")
	flags.StringVar(&a.dbPath, "db-path", "", "Task database path override")
	flags.BoolVar(&a.jsonOut, "json", false, "Emit the run trace as JSON")
	flags.BoolVarP(&a.interactive, "interactive", "i", false, "Prompt for the query instead of reading arguments")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&a.listTasks, "list", false, "List tracked tasks and their events")
	flags.StringVar(&a.deleteID, "delete", "", "Delete a task by ID (parents cascade to their subtasks)")
	flags.StringVar(&a.deleteParent, "delete-parent", "", "Delete the subtasks of a parent, keeping the parent")
	flags.BoolVar(&a.deleteAll, "delete-all", false, "Delete every tracked task (asks for confirmation)")

	a.root.AddCommand(a.versionCmd())

	return a
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("quando %s (commit: %s)\n", Version, Commit)
		},
	}
}

// setup loads the config and applies flag overrides.
func (a *App) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFrom(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if a.timezone != "" {
		cfg.Schedule.Timezone = a.timezone
	}
	if a.dbPath != "" {
		cfg.Storage.DBPath = a.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if a.noColor {
		DisableColor()
	}

	a.cfg = cfg
	return nil
}

func (a *App) run(ctx context.Context, args []string) error {
	switch {
	case a.listTasks:
		return a.runList(ctx)
	case a.deleteAll:
		return a.runDeleteAll(ctx)
	case a.deleteID != "":
		return a.runDelete(ctx, a.deleteID)
	case a.deleteParent != "":
		return a.runDeleteParent(ctx, a.deleteParent)
	}

	query := ""
	if len(args) == 1 {
		query = strings.TrimSpace(args[0])
	}
	if a.interactive && query == "" {
		var err error
		query, err = promptQuery()
		if err != nil {
			return err
		}
	}
	if query == "" {
		return fmt.Errorf("nothing to do: pass a query, or one of --list / --delete / --delete-all")
	}
	return a.runQuery(ctx, query)
}

func promptQuery() (string, error) {
	var query string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("What would you like to schedule?").
			Placeholder("finish the report by Friday").
			Value(&query),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("empty query")
	}
	return query, nil
}

// openStore opens the task database from the effective config.
func (a *App) openStore() (*db.Store, error) {
	return db.Open(a.cfg.Storage.DBPath)
}

// bridge returns a calendar-bridge client for the configured endpoint.
func (a *App) bridge() *calbridge.Client {
	return calbridge.NewClient(a.cfg.Calendar.BaseURL)
}

// exitCode maps a pipeline failure to the process exit code.
func exitCode(kind pipeline.ErrorKind) int {
	switch kind {
	case pipeline.KindInfeasibleTotal, pipeline.KindInfeasibleLocal:
		return 2
	case pipeline.KindBackendUnavailable:
		return 3
	default:
		return 1
	}
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.root.Execute()
}

// ExecuteContext runs the CLI application with a cancellation context.
func (a *App) ExecuteContext(ctx context.Context) error {
	return a.root.ExecuteContext(ctx)
}
