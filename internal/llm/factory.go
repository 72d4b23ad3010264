package llm

import (
	"fmt"
	"strings"
)

const (
	ProviderOllama   = "ollama"
	ProviderLMStudio = "lmstudio"
	ProviderCopilot  = "copilot"
	ProviderOpenAI   = "openai"
)

// NewClient creates an LLM client for the configured provider. Ollama is the
// default since the pipeline is tuned for local models.
func NewClient(provider, model, baseURL string) (Client, error) {
	var (
		client Client
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderOllama:
		client, err = NewOllamaClient(model, baseURL)
	case ProviderLMStudio, "lm-studio":
		client, err = NewLMStudioClient(model, baseURL)
	case ProviderCopilot:
		client, err = NewCopilotClient(model)
	case ProviderOpenAI:
		client, err = NewOpenAIClient(model, baseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
