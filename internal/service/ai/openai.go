package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend builds a client for model. An empty baseURL keeps the
// library default.
func NewOpenAIBackend(apiKey, baseURL, model string) (*OpenAIBackend, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai backend requires a model name")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Generate(ctx context.Context, p Prompt, params Params) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(p.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	for _, passage := range p.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: passage})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.Query})

	req := openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", MarkTransient(errors.New("openai returned no content"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.HTTPStatusCode) {
			return MarkTransient(fmt.Errorf("openai api: %w", err))
		}
		return fmt.Errorf("openai api: %w", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if transientStatus(reqErr.HTTPStatusCode) {
			return MarkTransient(fmt.Errorf("openai request: %w", err))
		}
		return fmt.Errorf("openai request: %w", err)
	}
	if IsTransient(err) {
		return MarkTransient(fmt.Errorf("openai: %w", err))
	}
	return fmt.Errorf("openai: %w", err)
}
