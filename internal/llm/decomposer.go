package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/lmendoza/quando/internal/task"
)

const decomposerSystemPrompt = `You are a decomposer that breaks a complex task into clear, schedulable subtasks.

CRITICAL RULES:
1. Return STRICT JSON only.
2. 2 to 5 subtasks.
3. Every duration must be at most PT3H, in ISO-8601 format (PT30M, PT1H, PT2H30M, PT3H).
4. No dates or times in titles.
5. Output subtasks in execution order, first to last.

Structure the work into phases that fit: Plan/Research/Gather, Outline/Draft/Design, Build/Write/Implement, Review/Test/Polish, Finalize/Package/Submit.

Titles: imperative, outcome-focused, 3-7 words, and each title ends with a short parent-context phrase in parentheses. Extract the phrase from the parent title ("Plan 5-day Japan trip" -> "Japan trip"). Format: "Action description (context phrase)".

Durations: default to PT45M-PT1H30M per subtask, vary them to match the step's heft, never exceed PT3H. Work deliverables get at least one review step; personal complex tasks get gather, compare, decide and finalize steps.

Output format (STRICT JSON):
{"subtasks": [{"title": "...", "duration": "PT..."}, ...]}

Example for "Draft project proposal":
{"subtasks": [
 {"title":"Research background and inputs (project proposal)","duration":"PT1H30M"},
 {"title":"Create proposal outline (project proposal)","duration":"PT45M"},
 {"title":"Write key sections (project proposal)","duration":"PT2H"},
 {"title":"Self-review and revise (project proposal)","duration":"PT1H"},
 {"title":"Export and share proposal (project proposal)","duration":"PT30M"}]}

Example for "Plan 5-day Japan trip":
{"subtasks": [
 {"title":"List must-see cities and dates (Japan trip)","duration":"PT1H"},
 {"title":"Compare flights and book (Japan trip)","duration":"PT2H"},
 {"title":"Draft day-by-day itinerary (Japan trip)","duration":"PT1H30M"},
 {"title":"Book lodging and passes (Japan trip)","duration":"PT2H"},
 {"title":"Finalize budget and checklist (Japan trip)","duration":"PT45M"}]}

Return ONLY the JSON object with the "subtasks" array.`

const decomposerRetryPrompt = `Your previous decomposition was unusable. Respond again with ONLY a JSON object of the form {"subtasks":[{"title":"...","duration":"PT..."}]} containing between 2 and 5 subtasks, every duration in ISO-8601 format and at most PT3H, every title at least 3 characters.`

// Decomposer splits a complex task into ordered subtasks with bounded
// durations.
type Decomposer struct {
	client Client
}

// NewDecomposer creates a Decomposer backed by the given client.
func NewDecomposer(client Client) *Decomposer {
	return &Decomposer{client: client}
}

type decomposeResponse struct {
	Subtasks []struct {
		Title    string `json:"title"`
		Duration string `json:"duration"`
	} `json:"subtasks"`
}

// Decompose breaks a complex classified task into 2-5 subtasks. Durations
// above three hours are capped rather than rejected; a decomposition that
// cannot be repaired fails with task.ErrSubtaskCount.
func (d *Decomposer) Decompose(ctx context.Context, cls task.Classified) (task.Decomposed, error) {
	if cls.Type != task.TypeComplex {
		return task.Decomposed{}, fmt.Errorf("decomposing %q task: %w", cls.Type, task.ErrInvalidTaskType)
	}
	if strings.TrimSpace(cls.Title) == "" {
		return task.Decomposed{}, task.ErrEmptyTitle
	}

	messages := []Message{
		{Role: "system", Content: decomposerSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Title: %q\nCalendar: %s\n\nDecompose this complex task into 2-5 subtasks with ISO-8601 durations (max PT3H each):", cls.Title, cls.CalendarID)},
	}

	subtasks, err := d.decomposeOnce(ctx, messages)
	if err != nil || len(subtasks) < 2 {
		// One tightened retry before giving up.
		retry := append(append([]Message{}, messages...), Message{Role: "user", Content: decomposerRetryPrompt})
		subtasks, err = d.decomposeOnce(ctx, retry)
		if err != nil {
			return task.Decomposed{}, fmt.Errorf("decomposing task: %w", err)
		}
		if len(subtasks) < 2 {
			return task.Decomposed{}, fmt.Errorf("model produced %d usable subtasks: %w", len(subtasks), task.ErrSubtaskCount)
		}
	}

	out := task.Decomposed{Classified: cls, Subtasks: subtasks}
	if err := out.Validate(); err != nil {
		return task.Decomposed{}, err
	}
	return out, nil
}

func (d *Decomposer) decomposeOnce(ctx context.Context, messages []Message) ([]task.Subtask, error) {
	var resp decomposeResponse
	if err := chatJSONRetry(ctx, d.client, messages, &resp); err != nil {
		return nil, err
	}
	return repairSubtasks(resp.Subtasks), nil
}

// repairSubtasks drops unusable entries, caps durations at three hours and
// trims the list to five.
func repairSubtasks(raw []struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
}) []task.Subtask {
	out := make([]task.Subtask, 0, len(raw))
	for _, st := range raw {
		title := strings.TrimSpace(st.Title)
		if len(title) < 3 {
			continue
		}
		dur, err := task.ParseISODuration(strings.TrimSpace(st.Duration))
		if err != nil || dur.Minutes() <= 0 {
			continue
		}
		if dur.AsTimeDuration() > task.MaxSubtaskDuration {
			dur = task.DurationFromMinutes(int(task.MaxSubtaskDuration.Minutes()))
		}
		out = append(out, task.Subtask{Title: title, Duration: dur})
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
