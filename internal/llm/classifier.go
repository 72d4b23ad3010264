package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/lmendoza/quando/internal/task"
)

const classifierSystemPrompt = `You are a task analyzer that classifies a task and assigns it to a calendar.

CRITICAL RULES:
1. Return STRICT JSON only.
2. Do NOT modify duration, pass it through exactly as provided.
3. Type: duration != null -> "simple". duration == null and the task is atomic -> "simple". duration == null and the task is multi-step -> "complex".
4. Pick the Work or Home calendar from keywords in the query.
5. Title: short, imperative, concrete (3-7 words), verb + object.

Simple (when duration is null): single atomic action finishable in one sitting. "call mom", "send invoice", "book dentist", "buy milk", "merge approved PR".

Complex (when duration is null): multi-step phrasing (plan, research and write), composite deliverables (proposal, report, deck, analysis), coordination (with team, get approvals), open-ended work (explore, investigate, prototype), broad scope (organize files, prepare taxes), time-horizon framing (this week, roadmap). Borderline: if atomic, simple; otherwise complex.

Work keywords: client, manager, team, meeting, deck, proposal, report, PRD, sprint, code, repo, deploy, invoice, expense, contract, NDA, design, marketing, sales, finance, legal, roadmap, OKR.
Home keywords: mom, dad, family, friend, groceries, laundry, gym, workout, dentist, doctor, birthday, rent, clean, apartment, house.
Matches both: prefer Work for professional deliverables, Home for people, errands and health. Only one calendar exists: use it. Neither exists: calendar null.

Title rules: strip times, deadlines, durations and filler ("please", "ASAP"). No emojis. "Call mom", "Send invoice to Acme", "Draft project proposal".

Output format (STRICT JSON):
{"calendar": "<calendar_id>"|null, "type": "simple"|"complex", "title": "<short imperative title>", "duration": "<PT...>"|null}

Examples:
1. UQ "call mom tomorrow for 20 minutes", duration PT20M, Work=w1 Home=h1 -> {"calendar":"h1","type":"simple","title":"Call mom","duration":"PT20M"}
2. UQ "finish project proposal by Nov 15", duration null, Work=w1 Home=h1 -> {"calendar":"w1","type":"complex","title":"Draft project proposal","duration":null}
3. UQ "send the signed NDA to the client", duration null, Work=w1 Home=h1 -> {"calendar":"w1","type":"simple","title":"Send signed NDA","duration":null}

Return ONLY the JSON object.`

var classifierWorkKeywords = []string{
	"client", "manager", "team", "meeting", "deck", "proposal", "report",
	"prd", "sprint", "code", "repo", "deploy", "invoice", "expense",
	"contract", "nda", "design", "marketing", "sales", "finance", "legal",
	"roadmap", "okr",
}

var classifierHomeKeywords = []string{
	"mom", "dad", "family", "friend", "groceries", "laundry", "gym",
	"workout", "dentist", "doctor", "birthday", "rent", "clean",
	"apartment", "house",
}

// CalendarRef is the slice of calendar metadata the classifier needs to pick
// a target calendar.
type CalendarRef struct {
	ID       string
	Title    string
	Writable bool
}

// Classifier assigns a calendar, a type and a title to a query.
type Classifier struct {
	client Client
}

// NewClassifier creates a Classifier backed by the given client.
func NewClassifier(client Client) *Classifier {
	return &Classifier{client: client}
}

type classifyResponse struct {
	Calendar *string `json:"calendar"`
	Type     string  `json:"type"`
	Title    string  `json:"title"`
	Duration *string `json:"duration"`
}

// Classify decides the task type and title and picks a writable calendar.
// The duration is passed through unchanged regardless of what the model
// returns. It fails with task.ErrMissingCalendar when no writable Work or
// Home calendar exists.
func (c *Classifier) Classify(ctx context.Context, query string, duration *task.Duration, calendars []CalendarRef) (task.Classified, error) {
	if strings.TrimSpace(query) == "" {
		return task.Classified{}, task.ErrEmptyQuery
	}

	workID, homeID := pickWorkHomeCalendars(calendars)
	if workID == "" && homeID == "" {
		return task.Classified{}, fmt.Errorf("no writable work or home calendar: %w", task.ErrMissingCalendar)
	}

	durationStr := "null"
	if duration != nil {
		durationStr = duration.String()
	}

	messages := []Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"User Query: %q\nDuration: %s\nAvailable Calendars:\n- Work: %s\n- Home: %s\n\nAnalyze the task and return JSON:",
			query, durationStr, orNull(workID), orNull(homeID))},
	}

	var resp classifyResponse
	if err := chatJSONRetry(ctx, c.client, messages, &resp); err != nil {
		return task.Classified{}, fmt.Errorf("classifying task: %w", err)
	}

	calendarID := ""
	if resp.Calendar != nil {
		calendarID = *resp.Calendar
	}
	if calendarID == "" || (calendarID != workID && calendarID != homeID) {
		// The model returned an ID outside the catalog; fall back to keyword
		// routing over the raw query.
		calendarID = keywordCalendar(query, workID, homeID)
	}
	if calendarID == "" {
		return task.Classified{}, fmt.Errorf("no calendar matched for query: %w", task.ErrMissingCalendar)
	}

	// Duration present forces simple regardless of the model's answer.
	taskType := task.TypeComplex
	if duration != nil || resp.Type == string(task.TypeSimple) {
		taskType = task.TypeSimple
	}

	title := strings.TrimSpace(resp.Title)
	if title == "" {
		title = fallbackTitle(query)
	}

	out := task.Classified{
		CalendarID: calendarID,
		Type:       taskType,
		Title:      title,
		Duration:   duration,
	}
	if err := out.Validate(); err != nil {
		return task.Classified{}, err
	}
	return out, nil
}

// pickWorkHomeCalendars resolves the Work and Home calendar IDs from the
// catalog. Exact title matches win, then substring matches, then a fuzzy
// pass for near-miss titles like "Workk" or "My Home Stuff".
func pickWorkHomeCalendars(calendars []CalendarRef) (workID, homeID string) {
	for _, cal := range calendars {
		if !cal.Writable {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(cal.Title))
		if title == "work" && workID == "" {
			workID = cal.ID
		} else if title == "home" && homeID == "" {
			homeID = cal.ID
		}
	}
	for _, cal := range calendars {
		if !cal.Writable {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(cal.Title))
		if workID == "" && strings.Contains(title, "work") {
			workID = cal.ID
		} else if homeID == "" && strings.Contains(title, "home") {
			homeID = cal.ID
		}
	}
	for _, cal := range calendars {
		if !cal.Writable {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(cal.Title))
		if workID == "" && fuzzyTitleMatch(title, "work") {
			workID = cal.ID
		} else if homeID == "" && fuzzyTitleMatch(title, "home") {
			homeID = cal.ID
		}
	}
	return workID, homeID
}

const fuzzyTitleThreshold = 0.84

func fuzzyTitleMatch(title, target string) bool {
	for _, word := range strings.Fields(title) {
		sim, err := edlib.StringsSimilarity(word, target, edlib.JaroWinkler)
		if err == nil && sim >= fuzzyTitleThreshold {
			return true
		}
	}
	return false
}

// keywordCalendar routes the query to work or home by keyword scan, falling
// back to whichever calendar exists.
func keywordCalendar(query, workID, homeID string) string {
	lower := strings.ToLower(query)
	hasWork := containsAnyWord(lower, classifierWorkKeywords)
	hasHome := containsAnyWord(lower, classifierHomeKeywords)

	switch {
	case hasWork && workID != "":
		return workID
	case hasHome && homeID != "":
		return homeID
	case workID != "":
		return workID
	default:
		return homeID
	}
}

func containsAnyWord(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// fallbackTitle truncates the query to a usable title when the model returns
// an empty one.
func fallbackTitle(query string) string {
	title := strings.TrimSpace(query)
	if len(title) > 50 {
		title = strings.TrimSpace(title[:50])
	}
	return title
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
