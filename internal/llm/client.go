// Package llm wraps the OpenAI chat-completions API behind a small client
// interface so the agent loop can be exercised with a fake in tests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/opsconcierge/opsconcierge/internal/config"
	"github.com/opsconcierge/opsconcierge/pkg/models"
)

// Request is one chat turn sent to the model: the full message transcript
// plus the tool definitions available to the current agent.
type Request struct {
	Messages []models.ChatMessage
	Tools    []models.ToolDefinition
}

// Client sends chat requests to the agent platform.
type Client interface {
	Complete(ctx context.Context, req Request) (*models.Completion, error)
}

// OpenAIClient is the production Client backed by the OpenAI API.
type OpenAIClient struct {
	api        *openai.Client
	model      string
	maxRetries int
}

// NewOpenAIClient builds a client from the OpenAI section of the config.
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		apiCfg.OrgID = cfg.OrgID
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		api:        openai.NewClientWithConfig(apiCfg),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
	}
}

// Complete sends the transcript and returns the model's reply. Transient
// failures (rate limits, 5xx) are retried with exponential backoff up to
// the configured attempt count.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*models.Completion, error) {
	apiReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toAPIMessages(req.Messages),
		Tools:    toAPITools(req.Tools),
	}

	var resp openai.ChatCompletionResponse
	operation := func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, apiReq)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices in response %s", resp.ID)
	}

	msg := resp.Choices[0].Message
	completion := &models.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	log.Debug().
		Str("model", resp.Model).
		Int("tool_calls", len(completion.ToolCalls)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion")

	return completion, nil
}

// retryable reports whether the API error is worth another attempt.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	// Network-level errors (timeouts, resets) come through untyped.
	return true
}

func toAPIMessages(msgs []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		apiMsg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, apiMsg)
	}
	return out
}

func toAPITools(tools []models.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
