// Package task defines the core domain types for quando.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrInvalidTimezone  = errors.New("timezone must be a valid IANA zone")
	ErrEndBeforeStart   = errors.New("end must be at or after start")
	ErrWindowTooNarrow  = errors.New("window is shorter than the requested duration")
	ErrInvalidTaskType  = errors.New("task type must be 'simple' or 'complex'")
	ErrComplexDuration  = errors.New("complex tasks carry no top-level duration")
	ErrSubtaskCount     = errors.New("complex tasks need 2 to 5 subtasks")
	ErrSubtaskTooLong   = errors.New("subtask duration exceeds 3 hours")
	ErrEmptyTitle       = errors.New("title cannot be empty")
	ErrMissingCalendar  = errors.New("calendar id is required")
	ErrInvalidDuration  = errors.New("unrecognized duration")
	ErrNegativeDuration = errors.New("duration must be positive")
)

// Type classifies a task as directly schedulable or needing decomposition.
type Type string

const (
	TypeSimple  Type = "simple"
	TypeComplex Type = "complex"
)

// Valid returns true if the type is a known value.
func (t Type) Valid() bool {
	return t == TypeSimple || t == TypeComplex
}

// Query is the immutable user request entering the pipeline.
type Query struct {
	Text string
	Zone *time.Location
}

// NewQuery validates the raw query text and timezone name.
func NewQuery(text, tz string) (*Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return &Query{Text: text, Zone: loc}, nil
}

// RawSlot is the slot extractor output: verbatim temporal substrings from the
// query, unresolved. Nil means the query did not mention that side.
type RawSlot struct {
	StartText *string `json:"start_text"`
	EndText   *string `json:"end_text"`
	Duration  *string `json:"duration"`
}

// Empty reports whether no temporal information was extracted.
func (s RawSlot) Empty() bool {
	return s.StartText == nil && s.EndText == nil && s.Duration == nil
}

// AbsoluteSlot is the absolute resolver output. Start and end are in the
// canonical "Month DD, YYYY HH:MM am|pm" form; duration is copied through
// verbatim from the raw slot.
type AbsoluteSlot struct {
	StartText string  `json:"start_text"`
	EndText   string  `json:"end_text"`
	Duration  *string `json:"duration"`
}

// Window is the standardized scheduling window: zone-aware instants plus an
// optional normalized duration.
type Window struct {
	Start    time.Time
	End      time.Time
	Duration *Duration // nil when the query carried no duration
}

// Validate enforces the window invariants.
func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return ErrEndBeforeStart
	}
	if w.Duration != nil && w.End.Sub(w.Start) < w.Duration.AsTimeDuration() {
		return ErrWindowTooNarrow
	}
	return nil
}

// Classified is the difficulty analyzer output.
type Classified struct {
	CalendarID string
	Type       Type
	Title      string
	Duration   *Duration // nil for complex tasks
}

// Validate enforces the classification invariants.
func (c Classified) Validate() error {
	if c.CalendarID == "" {
		return ErrMissingCalendar
	}
	if !c.Type.Valid() {
		return ErrInvalidTaskType
	}
	if c.Title == "" {
		return ErrEmptyTitle
	}
	if c.Type == TypeComplex && c.Duration != nil {
		return ErrComplexDuration
	}
	return nil
}

// Subtask is a single ordered step of a decomposed task.
type Subtask struct {
	Title    string
	Duration Duration
}

// MaxSubtaskDuration caps every decomposed step.
const MaxSubtaskDuration = 3 * time.Hour

// Decomposed augments a complex classification with its ordered subtasks.
// Order is significant: it encodes execution order.
type Decomposed struct {
	Classified
	Subtasks []Subtask
}

// Validate enforces count and per-subtask duration limits.
func (d Decomposed) Validate() error {
	if err := d.Classified.Validate(); err != nil {
		return err
	}
	if n := len(d.Subtasks); n < 2 || n > 5 {
		return fmt.Errorf("%w: got %d", ErrSubtaskCount, n)
	}
	for i, st := range d.Subtasks {
		if strings.TrimSpace(st.Title) == "" {
			return fmt.Errorf("subtask %d: %w", i, ErrEmptyTitle)
		}
		if st.Duration.Minutes() <= 0 {
			return fmt.Errorf("subtask %d: %w", i, ErrNegativeDuration)
		}
		if st.Duration.AsTimeDuration() > MaxSubtaskDuration {
			return fmt.Errorf("subtask %d (%s): %w", i, st.Duration, ErrSubtaskTooLong)
		}
	}
	return nil
}

// Slot is a concrete start/end placement for one task.
type Slot struct {
	Start time.Time
	End   time.Time
}

// ScheduledSubtask is a placed child of a complex task.
type ScheduledSubtask struct {
	ID       string
	ParentID string
	Title    string
	Slot     Slot
}

// Scheduled is the allotter output: either a single placed task or a parent
// with placed children. Slot is set iff Type is simple; Subtasks iff complex.
type Scheduled struct {
	ID         string
	CalendarID string
	Type       Type
	Title      string
	Slot       *Slot
	Subtasks   []ScheduledSubtask
}

// AllSlots returns every concrete slot in execution order.
func (s Scheduled) AllSlots() []Slot {
	if s.Type == TypeSimple {
		if s.Slot == nil {
			return nil
		}
		return []Slot{*s.Slot}
	}
	out := make([]Slot, 0, len(s.Subtasks))
	for _, st := range s.Subtasks {
		out = append(out, st.Slot)
	}
	return out
}

// Persisted is a stored task row recovered from the database, joined with its
// event mapping. EventID and CalendarID are empty for parent rows, which
// never have a backend event.
type Persisted struct {
	ID         string
	Title      string
	ParentID   *string
	EventID    string
	CalendarID string
}
