package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ArkBackend runs prompts through an eino chain ending in a Volcengine Ark
// chat model.
type ArkBackend struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkBackend compiles the narrator chain around chatModel.
func NewArkBackend(ctx context.Context, chatModel model.BaseChatModel) (*ArkBackend, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile narrator chain: %w", err)
	}
	return &ArkBackend{chain: runnable}, nil
}

func (b *ArkBackend) Name() string { return "ark" }

func (b *ArkBackend) Generate(ctx context.Context, p Prompt, params Params) (string, error) {
	input := map[string]any{
		"system":  p.System,
		"history": historyMessages(p.History),
		"query":   p.Query,
	}

	var opts []model.Option
	if params.Temperature > 0 {
		opts = append(opts, model.WithTemperature(params.Temperature))
	}
	if params.TopP > 0 {
		opts = append(opts, model.WithTopP(params.TopP))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxTokens))
	}

	msg, err := b.chain.Invoke(ctx, input, compose.WithChatModelOption(opts...))
	if err != nil {
		if IsTransient(err) || looksTransient(err.Error()) {
			return "", MarkTransient(fmt.Errorf("ark chain: %w", err))
		}
		return "", fmt.Errorf("ark chain: %w", err)
	}
	if msg == nil || msg.Content == "" {
		return "", MarkTransient(fmt.Errorf("ark returned an empty message"))
	}
	return msg.Content, nil
}

// historyMessages renders prior passages as narrator turns. FString
// formatting only applies to the template itself, so braces in the story text
// are passed through untouched.
func historyMessages(history []string) []*schema.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]*schema.Message, 0, len(history))
	for _, passage := range history {
		out = append(out, schema.AssistantMessage(passage, nil))
	}
	return out
}
