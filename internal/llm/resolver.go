package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lmendoza/quando/internal/task"
	"github.com/lmendoza/quando/internal/timectx"
)

const resolverSystemPrompt = `You are an absolute resolver that converts extracted time slots to absolute dates and times.

CRITICAL RULE: ONLY resolve time information that is explicitly provided. Do NOT infer or hallucinate.
DURATION RULE: NEVER use duration to calculate or shift start/end times. Duration is metadata, copy it AS-IS.
Use the provided context values (NOW_ISO, END_OF_TODAY, ...) rather than the examples below.

Output format (STRICT JSON):
{"start_text": "Month DD, YYYY HH:MM am/pm", "end_text": "Month DD, YYYY HH:MM am/pm", "duration": string|null}

Use the EXACT canonical format "Month DD, YYYY HH:MM am/pm" for both sides.

Resolution rules:

1) Both start and end present: resolve each side. A side with only a time attaches to the same resolved date. If end < start, move end forward one day; a weekday end that still lands before start moves to its next occurrence.

2) Only end present (deadline): start = NOW_ISO in canonical format; end = resolved deadline, 11:59 pm on that date when no time is given.

3) Only start present: start = resolved anchor; end = 11:59 pm on the SAME date as the resolved start.

4) Neither present (duration-only or no time info): start = NOW_ISO in canonical format, end = END_OF_TODAY. Never derive start or end from the duration.

Phrase anchors:
- Unqualified weekday: next occurrence (today if not yet passed). "this Friday" = current week, "next Friday" = following week. Use NEXT_OCCURRENCES.
- Bare time: today if still ahead of NOW, otherwise tomorrow. Two bare times share the same inferred date.
- morning 09:00, afternoon 01:00 pm, evening 06:00 pm, tonight 08:00 pm, noon 12:00 pm, midnight 12:00 am, "tomorrow" without a time = 12:00 am of the next day.
- "next week" as a start = NEXT_MONDAY. "end of week" = END_OF_WEEK. "EOM" / "end of month" = END_OF_MONTH.

Safety: always ensure start <= end; if violated after resolution, set end to 11:59 pm on start's date.

Examples (NOW = 2025-10-21T15:00:00-04:00, America/New_York):
- {"start_text":null,"end_text":"Nov 15","duration":"2h"} -> {"start_text":"October 21, 2025 03:00 pm","end_text":"November 15, 2025 11:59 pm","duration":"2h"}
- {"start_text":"tomorrow","end_text":null,"duration":"30m"} -> {"start_text":"October 22, 2025 12:00 am","end_text":"October 22, 2025 11:59 pm","duration":"30m"}
- {"start_text":"Friday 2pm","end_text":"Friday 4pm","duration":null} -> {"start_text":"October 24, 2025 02:00 pm","end_text":"October 24, 2025 04:00 pm","duration":null}
- {"start_text":"9am","end_text":"5pm","duration":null} -> {"start_text":"October 21, 2025 09:00 am","end_text":"October 21, 2025 05:00 pm","duration":null}
- {"start_text":null,"end_text":null,"duration":"2 hours"} -> {"start_text":"October 21, 2025 03:00 pm","end_text":"October 21, 2025 11:59 pm","duration":"2 hours"}
- {"start_text":"tonight","end_text":null,"duration":"2 hours"} -> {"start_text":"October 21, 2025 08:00 pm","end_text":"October 21, 2025 11:59 pm","duration":"2 hours"}

Return ONLY the JSON object.`

// Resolver turns verbatim time phrases into absolute canonical date strings
// anchored to the current wall clock.
type Resolver struct {
	client Client
}

// NewResolver creates a Resolver backed by the given client.
func NewResolver(client Client) *Resolver {
	return &Resolver{client: client}
}

type absoluteResponse struct {
	StartText string  `json:"start_text"`
	EndText   string  `json:"end_text"`
	Duration  *string `json:"duration"`
}

// Resolve converts a raw slot to absolute canonical-format start and end
// strings using the temporal context. Both sides are always populated.
func (r *Resolver) Resolve(ctx context.Context, slot task.RawSlot, tc *timectx.Context) (task.AbsoluteSlot, error) {
	slotJSON, err := json.Marshal(struct {
		StartText *string `json:"start_text"`
		EndText   *string `json:"end_text"`
		Duration  *string `json:"duration"`
	}{slot.StartText, slot.EndText, slot.Duration})
	if err != nil {
		return task.AbsoluteSlot{}, fmt.Errorf("encoding slots: %w", err)
	}

	messages := []Message{
		{Role: "system", Content: resolverSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Current Context:\n%s\nSlots to Resolve:\n%s\n\nResolve to absolute dates and times:", tc.PromptBlock(), slotJSON)},
	}

	var resp absoluteResponse
	if err := chatJSONRetry(ctx, r.client, messages, &resp); err != nil {
		return task.AbsoluteSlot{}, fmt.Errorf("resolving slots: %w", err)
	}
	if resp.StartText == "" || resp.EndText == "" {
		return task.AbsoluteSlot{}, fmt.Errorf("resolver returned empty start or end (start=%q end=%q)", resp.StartText, resp.EndText)
	}

	// The input duration wins over whatever the model echoed back.
	return task.AbsoluteSlot{
		StartText: resp.StartText,
		EndText:   resp.EndText,
		Duration:  slot.Duration,
	}, nil
}
