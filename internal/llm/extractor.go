package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/lmendoza/quando/internal/task"
)

const extractorSystemPrompt = `You are a slot extractor that pulls time-related information out of a task query.

CRITICAL RULE: ONLY extract time information that is EXPLICITLY stated in the query. Do NOT infer, assume, or hallucinate time information.

Output contract (STRICT JSON):
{"start_text": string|null, "end_text": string|null, "duration": string|null}

- Return null for anything not present or unclear. Do not invent values.
- Preserve the user's phrasing exactly ("tomorrow", "Friday 2pm", "Nov 15", "EOM", "in 2 hours").
- No absolute dates, no ISO, no defaults, no normalization.

Detection rules:

1) duration - metadata only. Extract phrases like "for 30min", "2 hours", "2h30m", "1.5h", "90m", "for half an hour", "take 45 minutes", "45-minute". Units: m/min/minutes/h/hr/hours. NOT durations: phone numbers, prices, counts ("buy 2 apples"), IDs.

2) end_text - deadline or range end. Deadline markers: by, before, no later than, due, deadline, at the latest, by EOD/EOW/EOM, end of day/week/month. "until X" without a clear start is a deadline. Range joiners capture the end side: "from X to Y", "between X and Y", "X - Y", "X through Y".

3) start_text - when-to-begin anchor. Relative anchors: today, tomorrow, tonight, "this <period>", "next <period>". Specific dates and times: "Nov 15", "11/15", "6pm", "Friday". Start verbs: "from 3", "starting tomorrow", "begin at noon". Offsets: "in 2 hours".

Examples:
- "call mom tomorrow 4pm" -> {"start_text":"tomorrow 4pm","end_text":null,"duration":null}
- "send report by Friday 5pm" -> {"start_text":null,"end_text":"Friday 5pm","duration":null}
- "study for 2 hours" -> {"start_text":null,"end_text":null,"duration":"2 hours"}
- "from 9am to 12pm on Oct 30" -> {"start_text":"Oct 30 9am","end_text":"Oct 30 12pm","duration":null}
- "study for 45m at 6pm" -> {"start_text":"6pm","end_text":null,"duration":"45m"}
- "start next week, finish by EOM" -> {"start_text":"next week","end_text":"EOM","duration":null}
- "ping Alex about the doc" -> {"start_text":null,"end_text":null,"duration":null}
- "buy groceries at the store" -> {"start_text":null,"end_text":null,"duration":null}

If the query contains no explicit time words at all, return all nulls. Location phrases ("at the store", "at home") are not time information.

Return ONLY the JSON object.`

// Extractor pulls start, end and duration phrases out of a raw query without
// resolving them.
type Extractor struct {
	client Client
}

// NewExtractor creates an Extractor backed by the given client.
func NewExtractor(client Client) *Extractor {
	return &Extractor{client: client}
}

type rawSlotResponse struct {
	StartText *string `json:"start_text"`
	EndText   *string `json:"end_text"`
	Duration  *string `json:"duration"`
}

// Extract returns the verbatim time phrases found in the query. All three
// fields may be nil when the query carries no time information.
func (e *Extractor) Extract(ctx context.Context, q *task.Query) (task.RawSlot, error) {
	if q == nil || strings.TrimSpace(q.Text) == "" {
		return task.RawSlot{}, task.ErrEmptyQuery
	}

	messages := []Message{
		{Role: "system", Content: extractorSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("User Query: %q\nUser Timezone: %s\n\nExtract the slots and return JSON:", q.Text, q.Zone.String())},
	}

	var resp rawSlotResponse
	if err := chatJSONRetry(ctx, e.client, messages, &resp); err != nil {
		return task.RawSlot{}, fmt.Errorf("extracting slots: %w", err)
	}

	return task.RawSlot{
		StartText: normalizeSlotText(resp.StartText),
		EndText:   normalizeSlotText(resp.EndText),
		Duration:  normalizeSlotText(resp.Duration),
	}, nil
}

// normalizeSlotText treats empty, whitespace-only and literal "null" strings
// as absent. Small models sometimes emit the string "null" instead of JSON null.
func normalizeSlotText(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" || strings.EqualFold(trimmed, "null") || strings.EqualFold(trimmed, "none") {
		return nil
	}
	return &trimmed
}
