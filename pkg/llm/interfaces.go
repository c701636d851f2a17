// Package llm provides chat-completion clients for OpenAI-compatible and
// Anthropic endpoints.
package llm

import (
	"context"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// ChatOptions tunes a single chat call.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a single JSON object.
	JSONMode bool
}

// ChatResult is the model's reply with usage stats.
type ChatResult struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatClient is the chat surface the re-evaluator depends on.
// Use this interface for dependency injection to enable mocking in tests.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error)

	// GetModel returns the configured model name.
	GetModel() string
}

var (
	_ ChatClient = (*OpenAIClient)(nil)
	_ ChatClient = (*AnthropicClient)(nil)
	_ ChatClient = (*GuardedClient)(nil)
	_ ChatClient = (*MockChatClient)(nil)
)
