package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// mockClient replays canned replies in order. ChatJSON parses each reply the
// same way the real clients do.
type mockClient struct {
	replies []string
	calls   int
	last    []Message
}

func (m *mockClient) Chat(ctx context.Context, messages []Message) (string, error) {
	m.last = messages
	if m.calls >= len(m.replies) {
		return "", errors.New("mock: no more replies")
	}
	reply := m.replies[m.calls]
	m.calls++
	return reply, nil
}

func (m *mockClient) ChatJSON(ctx context.Context, messages []Message, result any) error {
	content, err := m.Chat(ctx, messages)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), result); err != nil {
		return fmt.Errorf("parsing JSON response: %w", err)
	}
	return nil
}

func TestExtractJSONFencedBlock(t *testing.T) {
	in := "Here you go:\n```json\n{\"a\": 1}\n```\nDone."
	if got := extractJSON(in); got != `{"a": 1}` {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestExtractJSONPlainFence(t *testing.T) {
	in := "```\n[1, 2, 3]\n```"
	if got := extractJSON(in); got != "[1, 2, 3]" {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestExtractJSONBracesInProse(t *testing.T) {
	in := `The answer is {"start_text": null, "end_text": "Friday"} as requested.`
	if got := extractJSON(in); got != `{"start_text": null, "end_text": "Friday"}` {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestExtractJSONNoJSON(t *testing.T) {
	if got := extractJSON("  plain text  "); got != "plain text" {
		t.Errorf("extractJSON = %q", got)
	}
}

func TestChatJSONRetryRecoversFromBadJSON(t *testing.T) {
	mock := &mockClient{replies: []string{
		"sorry, I cannot answer in JSON",
		`{"value": 7}`,
	}}

	var out struct {
		Value int `json:"value"`
	}
	if err := chatJSONRetry(context.Background(), mock, []Message{{Role: "user", Content: "go"}}, &out); err != nil {
		t.Fatalf("chatJSONRetry: %v", err)
	}
	if out.Value != 7 {
		t.Errorf("value = %d, want 7", out.Value)
	}
	if mock.calls != 2 {
		t.Errorf("calls = %d, want 2", mock.calls)
	}

	// The retry conversation must end with the corrective reminder.
	lastMsg := mock.last[len(mock.last)-1]
	if lastMsg.Content != retryReminder {
		t.Errorf("retry message = %q", lastMsg.Content)
	}
}

func TestChatJSONRetryFirstTrySucceeds(t *testing.T) {
	mock := &mockClient{replies: []string{`{"value": 1}`}}

	var out struct {
		Value int `json:"value"`
	}
	if err := chatJSONRetry(context.Background(), mock, nil, &out); err != nil {
		t.Fatalf("chatJSONRetry: %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
}

// stallingClient blocks its first call until the per-call deadline fires,
// then answers normally.
type stallingClient struct {
	reply string
	calls int
}

func (s *stallingClient) Chat(ctx context.Context, messages []Message) (string, error) {
	return "", errors.New("not used")
}

func (s *stallingClient) ChatJSON(ctx context.Context, messages []Message, result any) error {
	s.calls++
	if s.calls == 1 {
		<-ctx.Done()
		return ctx.Err()
	}
	return json.Unmarshal([]byte(s.reply), result)
}

func TestChatJSONRetryFreshTimeoutPerAttempt(t *testing.T) {
	saved := callTimeout
	callTimeout = 20 * time.Millisecond
	defer func() { callTimeout = saved }()

	client := &stallingClient{reply: `{"a": 1}`}
	var out map[string]int
	// The first attempt burns its whole budget; the retry must still get a
	// live context of its own.
	if err := chatJSONRetry(context.Background(), client, []Message{{Role: "user", Content: "hi"}}, &out); err != nil {
		t.Fatalf("chatJSONRetry: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
	if out["a"] != 1 {
		t.Errorf("result = %v", out)
	}
}
