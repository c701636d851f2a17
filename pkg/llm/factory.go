package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewChatClient creates the client for cfg.Provider. An empty provider means
// OpenAI-compatible.
func NewChatClient(cfg *Config, logger *zap.Logger) (ChatClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		client, err := NewOpenAIClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
