package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 1024

// jsonModeInstruction is appended to the system prompt because the Messages
// API has no response-format switch.
const jsonModeInstruction = "Respond with a single JSON object and nothing else."

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}, nil
}

// Chat sends messages to the Messages API. System messages are joined into
// the request's system prompt.
func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
	var system []string
	var turns []anthropic.Message
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantTextMessage(m.Content))
		default:
			turns = append(turns, anthropic.NewUserTextMessage(m.Content))
		}
	}
	if opts.JSONMode {
		system = append(system, jsonModeInstruction)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temperature := float32(opts.Temperature)

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Float64("temperature", opts.Temperature),
		zap.Bool("json_mode", opts.JSONMode))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      strings.Join(system, "\n\n"),
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = c.model
		return nil, llmErr
	}

	text := extractAnthropicText(resp)
	if text == "" {
		return nil, NewError(ErrorTypeResponse, "no text content in response", false, nil)
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &ChatResult{
		Content:          text,
		Model:            c.model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

func extractAnthropicText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
