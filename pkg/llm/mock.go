package llm

import (
	"context"
	"sync"
)

// MockChatClient is a configurable mock for testing LLM functionality.
// Set the function fields to control behavior in tests.
type MockChatClient struct {
	// ChatFunc is called when Chat is invoked.
	// If nil, returns an empty JSON object.
	ChatFunc func(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu        sync.Mutex
	ChatCalls int
	LastOpts  ChatOptions
	LastMsgs  []Message
}

// NewMockChatClient creates a new mock with sensible defaults.
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{Model: "mock-model"}
}

// NewMockChatClientWithResponse returns a mock that always replies content.
func NewMockChatClientWithResponse(content string) *MockChatClient {
	m := NewMockChatClient()
	m.ChatFunc = func(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
		return &ChatResult{Content: content, Model: m.Model}, nil
	}
	return m
}

// Chat implements ChatClient.
func (m *MockChatClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
	m.mu.Lock()
	m.ChatCalls++
	m.LastOpts = opts
	m.LastMsgs = append([]Message(nil), messages...)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages, opts)
	}
	return &ChatResult{Content: "{}", Model: m.GetModel()}, nil
}

// GetModel implements ChatClient.
func (m *MockChatClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Calls returns the number of Chat invocations.
func (m *MockChatClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChatCalls
}
