// Package pipeline runs a natural-language query through the full chain:
// slot extraction, absolute resolution, standardization, classification,
// optional decomposition, time allotment and event creation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lmendoza/quando/internal/allot"
	"github.com/lmendoza/quando/internal/calbridge"
	"github.com/lmendoza/quando/internal/db"
	"github.com/lmendoza/quando/internal/events"
	"github.com/lmendoza/quando/internal/llm"
	"github.com/lmendoza/quando/internal/scheduler"
	"github.com/lmendoza/quando/internal/standardize"
	"github.com/lmendoza/quando/internal/task"
	"github.com/lmendoza/quando/internal/timectx"
)

// ErrorKind buckets pipeline failures for exit codes and user messaging.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindParseLLM           ErrorKind = "PARSE_LLM"
	KindTSParse            ErrorKind = "TS_PARSE"
	KindTSInvariant        ErrorKind = "TS_INVARIANT"
	KindNoCalendar         ErrorKind = "TD_NO_CAL"
	KindDecomposeInvalid   ErrorKind = "LD_INVALID"
	KindInfeasibleTotal    ErrorKind = "SCHED_INFEASIBLE_TOTAL"
	KindInfeasibleLocal    ErrorKind = "SCHED_INFEASIBLE_LOCAL"
	KindPlacementInvalid   ErrorKind = "TA_VALIDATION"
	KindBackendUnavailable ErrorKind = "BACKEND_UNAVAILABLE"
	KindPartialCreate      ErrorKind = "EC_PARTIAL"
)

// Stage statuses.
const (
	StatusPending = "pending"
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Stage names, in execution order.
var stageNames = []string{"connect", "extract", "resolve", "standardize", "classify", "decompose", "allot", "create"}

// Stage is one step's outcome in the trace.
type Stage struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result is the full trace of one run. Err is nil on success; otherwise
// Kind says what went wrong and the stages show where.
type Result struct {
	Query     string           `json:"query"`
	Stages    []Stage          `json:"stages"`
	RawSlot   *task.RawSlot    `json:"raw_slot,omitempty"`
	Window    *task.Window     `json:"window,omitempty"`
	Scheduled *task.Scheduled  `json:"scheduled,omitempty"`
	Persisted []task.Persisted `json:"persisted,omitempty"`
	Kind      ErrorKind        `json:"error_kind,omitempty"`
	Err       error            `json:"-"`
}

// Bridge is the calendar-bridge surface the pipeline needs.
type Bridge interface {
	Status(ctx context.Context) (calbridge.Status, error)
	Calendars(ctx context.Context) ([]calbridge.Calendar, error)
	Events(ctx context.Context, days int) ([]calbridge.Event, error)
	Add(ctx context.Context, ev calbridge.AddEvent) (calbridge.Event, error)
	Delete(ctx context.Context, eventID string) error
}

// Pipeline wires the model stages to the calendar bridge and the store.
type Pipeline struct {
	extractor  *llm.Extractor
	resolver   *llm.Resolver
	classifier *llm.Classifier
	decomposer *llm.Decomposer
	bridge     Bridge
	allotter   *allot.Allotter
	creator    *events.Creator
	loc        *time.Location
	now        func() time.Time
}

// New builds a pipeline from its dependencies.
func New(client llm.Client, bridge Bridge, store *db.Store, opts allot.Options, loc *time.Location) *Pipeline {
	return &Pipeline{
		extractor:  llm.NewExtractor(client),
		resolver:   llm.NewResolver(client),
		classifier: llm.NewClassifier(client),
		decomposer: llm.NewDecomposer(client),
		bridge:     bridge,
		allotter:   allot.New(bridge, opts, loc),
		creator:    events.NewCreator(bridge, store),
		loc:        loc,
		now:        time.Now,
	}
}

// Run executes the full pipeline for one query. The returned Result always
// carries the per-stage trace, even on failure.
func (p *Pipeline) Run(ctx context.Context, queryText string) *Result {
	res := &Result{Query: queryText}
	for _, name := range stageNames {
		res.Stages = append(res.Stages, Stage{Name: name, Status: StatusPending})
	}

	q, err := task.NewQuery(queryText, p.loc.String())
	if err != nil {
		return res.fail("extract", KindParseLLM, err)
	}

	// Preflight: reach the bridge and load the calendar catalog in one go.
	var calendars []calbridge.Calendar
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := p.bridge.Status(gctx)
		if err != nil {
			return err
		}
		if !st.Authorized {
			return fmt.Errorf("%w: calendar access not authorized", calbridge.ErrUnavailable)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		calendars, err = p.bridge.Calendars(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return res.fail("connect", KindBackendUnavailable, err)
	}
	res.ok("connect", fmt.Sprintf("%d calendars", len(calendars)))

	// Extract the verbatim time phrases.
	raw, err := p.extractor.Extract(ctx, q)
	if err != nil {
		return res.fail("extract", KindParseLLM, err)
	}
	res.RawSlot = &raw
	res.ok("extract", describeRaw(raw))

	// Resolve them against the current wall clock.
	now := p.now().In(p.loc)
	tc := timectx.New(now, p.loc)
	abs, err := p.resolver.Resolve(ctx, raw, &tc)
	if err != nil {
		return res.fail("resolve", KindParseLLM, err)
	}
	res.ok("resolve", fmt.Sprintf("%s .. %s", abs.StartText, abs.EndText))

	// Standardize into a concrete window.
	win, err := standardize.Standardize(abs, p.loc, now)
	if err != nil {
		kind := KindTSParse
		if errors.Is(err, standardize.ErrInvariant) {
			kind = KindTSInvariant
		}
		return res.fail("standardize", kind, err)
	}
	res.Window = &win
	res.ok("standardize", fmt.Sprintf("%s .. %s", win.Start.Format(time.RFC3339), win.End.Format(time.RFC3339)))

	// Classify and pick a calendar.
	cls, err := p.classifier.Classify(ctx, q.Text, win.Duration, toCalendarRefs(calendars))
	if err != nil {
		kind := KindParseLLM
		if errors.Is(err, task.ErrMissingCalendar) {
			kind = KindNoCalendar
		}
		return res.fail("classify", kind, err)
	}
	res.ok("classify", fmt.Sprintf("%s / %s", cls.Type, cls.Title))

	// Decompose complex tasks; simple ones skip straight to allotment.
	var scheduled *task.Scheduled
	if cls.Type == task.TypeComplex {
		dec, err := p.decomposer.Decompose(ctx, cls)
		if err != nil {
			kind := KindDecomposeInvalid
			if !isDecompositionError(err) {
				kind = KindParseLLM
			}
			return res.fail("decompose", kind, err)
		}
		res.ok("decompose", fmt.Sprintf("%d subtasks", len(dec.Subtasks)))

		scheduled, err = p.allotter.AllotComplex(ctx, dec, win)
		if err != nil {
			return res.fail("allot", allotKind(err), err)
		}
	} else {
		res.skip("decompose", "simple task")

		scheduled, err = p.allotter.AllotSimple(ctx, cls, win)
		if err != nil {
			return res.fail("allot", allotKind(err), err)
		}
	}
	res.Scheduled = scheduled
	res.ok("allot", describeSlots(scheduled))

	// Create the calendar events and persist the mapping.
	persisted, err := p.creator.Create(ctx, scheduled)
	res.Persisted = persisted
	if err != nil {
		var partial *events.PartialError
		if errors.As(err, &partial) {
			return res.fail("create", KindPartialCreate, err)
		}
		if errors.Is(err, calbridge.ErrUnavailable) {
			return res.fail("create", KindBackendUnavailable, err)
		}
		return res.fail("create", KindNone, err)
	}
	res.ok("create", fmt.Sprintf("%d events", len(persisted)))

	return res
}

func (r *Result) stage(name string) *Stage {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

func (r *Result) ok(name, detail string) {
	if s := r.stage(name); s != nil {
		s.Status, s.Detail = StatusOK, detail
	}
}

func (r *Result) skip(name, detail string) {
	if s := r.stage(name); s != nil {
		s.Status, s.Detail = StatusSkipped, detail
	}
}

func (r *Result) fail(name string, kind ErrorKind, err error) *Result {
	if s := r.stage(name); s != nil {
		s.Status, s.Detail = StatusError, err.Error()
	}
	r.Kind = kind
	r.Err = err
	return r
}

func allotKind(err error) ErrorKind {
	var infeasible *scheduler.InfeasibleError
	switch {
	case errors.As(err, &infeasible):
		if infeasible.Total() {
			return KindInfeasibleTotal
		}
		return KindInfeasibleLocal
	case errors.Is(err, allot.ErrValidation):
		return KindPlacementInvalid
	case errors.Is(err, calbridge.ErrUnavailable):
		return KindBackendUnavailable
	default:
		return KindNone
	}
}

func isDecompositionError(err error) bool {
	return errors.Is(err, task.ErrSubtaskCount) ||
		errors.Is(err, task.ErrSubtaskTooLong) ||
		errors.Is(err, task.ErrEmptyTitle) ||
		errors.Is(err, task.ErrInvalidTaskType)
}

func toCalendarRefs(calendars []calbridge.Calendar) []llm.CalendarRef {
	refs := make([]llm.CalendarRef, len(calendars))
	for i, c := range calendars {
		refs[i] = llm.CalendarRef{ID: c.ID, Title: c.Title, Writable: c.AllowsModifications}
	}
	return refs
}

func describeRaw(raw task.RawSlot) string {
	val := func(s *string) string {
		if s == nil {
			return "-"
		}
		return *s
	}
	return fmt.Sprintf("start=%s end=%s duration=%s", val(raw.StartText), val(raw.EndText), val(raw.Duration))
}

func describeSlots(sch *task.Scheduled) string {
	if sch.Slot != nil {
		return fmt.Sprintf("%s .. %s", sch.Slot.Start.Format("Jan 2 15:04"), sch.Slot.End.Format("15:04"))
	}
	return fmt.Sprintf("%d slots", len(sch.Subtasks))
}
