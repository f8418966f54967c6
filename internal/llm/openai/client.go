package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"smartqa-backend/internal/llm"
	"smartqa-backend/internal/shared/telemetry"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 16000
	temperature      = 0.2
)

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Client implements llm.Completer using OpenAI Chat Completions.
type Client struct {
	api   chatAPI
	model string
}

// NewClient constructs a client for one model. baseURL is optional.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{api: goopenai.NewClientWithConfig(cfg), model: model}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends req and returns the first choice.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	messages := req.Messages
	if extra, ok := llm.ExtraSystemMessageFromContext(ctx); ok {
		messages = llm.PrependSystemMessage(messages, extra)
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]goopenai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		chatReq.Messages = append(chatReq.Messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if req.JSON {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if isReasoningModel(c.model) {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
		chatReq.Temperature = temperature
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return llm.Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Completion{}, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return llm.Completion{}, fmt.Errorf("openai response empty content")
	}

	out := llm.Completion{
		Content:          content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if out.Model == "" {
		out.Model = c.model
	}
	logUsage(out, resp.Choices[0].FinishReason)
	return out, nil
}

// classify maps provider errors onto llm.ErrTransient where a retry can help.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("openai http status %d: %s (%v)", apiErr.HTTPStatusCode, apiErr.Message, apiErr.Type)
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", llm.ErrTransient, wrapped)
		}
		return wrapped
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		wrapped := fmt.Errorf("openai http status %d: %w", reqErr.HTTPStatusCode, reqErr.Err)
		if reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", llm.ErrTransient, wrapped)
		}
		return wrapped
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return fmt.Errorf("%w: openai request timeout: %w", llm.ErrTransient, err)
	}
	if llm.IsTransient(err) {
		return fmt.Errorf("%w: %w", llm.ErrTransient, err)
	}
	return err
}

func logUsage(c llm.Completion, finish goopenai.FinishReason) {
	telemetry.Info("llm.response", map[string]any{
		"model":             c.Model,
		"finish_reason":     string(finish),
		"prompt_tokens":     c.PromptTokens,
		"completion_tokens": c.CompletionTokens,
		"total_tokens":      c.TotalTokens,
	})
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range []string{"gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

var _ llm.Completer = (*Client)(nil)
