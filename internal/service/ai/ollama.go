package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaBackend uses the native Ollama chat API.
type OllamaBackend struct {
	client *api.Client
	model  string
}

// NewOllamaBackend connects to the Ollama server at baseURL. A trailing /v1
// (the OpenAI-compatible prefix) is stripped.
func NewOllamaBackend(baseURL, model string, httpClient *http.Client) (*OllamaBackend, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("ollama backend requires a model name")
	}
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaBackend{client: api.NewClient(parsed, httpClient), model: model}, nil
}

func (b *OllamaBackend) Name() string { return "ollama" }

func (b *OllamaBackend) Generate(ctx context.Context, p Prompt, params Params) (string, error) {
	messages := make([]api.Message, 0, len(p.History)+2)
	messages = append(messages, api.Message{Role: "system", Content: p.System})
	for _, passage := range p.History {
		messages = append(messages, api.Message{Role: "assistant", Content: passage})
	}
	messages = append(messages, api.Message{Role: "user", Content: p.Query})

	stream := false
	options := map[string]any{}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.TopP > 0 {
		options["top_p"] = params.TopP
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}

	req := &api.ChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	var content strings.Builder
	err := b.client.Chat(ctx, req, func(r api.ChatResponse) error {
		content.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		return "", classifyOllamaError(err)
	}
	if strings.TrimSpace(content.String()) == "" {
		return "", MarkTransient(errors.New("ollama returned no content"))
	}
	return content.String(), nil
}

func classifyOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if transientStatus(statusErr.StatusCode) {
			return MarkTransient(fmt.Errorf("ollama: %w", err))
		}
		return fmt.Errorf("ollama: %w", err)
	}
	if IsTransient(err) || looksTransient(err.Error()) {
		return MarkTransient(fmt.Errorf("ollama: %w", err))
	}
	return fmt.Errorf("ollama: %w", err)
}
