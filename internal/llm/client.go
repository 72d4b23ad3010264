// Package llm provides the LLM client abstraction and the four model-backed
// pipeline stages: slot extraction, absolute resolution, difficulty
// classification and decomposition.
package llm

import (
	"context"
	"time"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for LLM providers.
type Client interface {
	// Chat sends messages to the LLM and returns the raw response text.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatJSON sends messages and parses the response as JSON into result.
	ChatJSON(ctx context.Context, messages []Message, result any) error
}

// callTimeout bounds each model call; local models can be slow on first
// token but anything past a minute is a hang. Package variable so tests can
// shorten it.
var callTimeout = 60 * time.Second

const retryReminder = "Your previous reply was not valid JSON matching the required schema. " +
	"Respond again with ONLY the JSON object. No prose, no markdown fences."

// chatJSONRetry performs one ChatJSON call and, if the output fails to parse,
// retries once with a corrective reminder appended to the conversation. Each
// attempt gets its own full timeout budget.
func chatJSONRetry(ctx context.Context, c Client, messages []Message, result any) error {
	err := chatJSONOnce(ctx, c, messages, result)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	retry := append(append([]Message{}, messages...), Message{Role: "user", Content: retryReminder})
	return chatJSONOnce(ctx, c, retry, result)
}

func chatJSONOnce(ctx context.Context, c Client, messages []Message, result any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.ChatJSON(ctx, messages, result)
}
