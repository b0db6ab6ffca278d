package config

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
)

// NewBackend 按提供方创建模型后端。
func (c AIConfig) NewBackend(ctx context.Context, genres catalog.Store) (ai.Backend, error) {
	switch provider := c.ResolvedProvider(); provider {
	case ProviderArk:
		chatModel, err := c.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return ai.NewArkBackend(ctx, chatModel)
	case ProviderOpenAI:
		return ai.NewOpenAIBackend(c.APIKey, c.BaseURL, c.Model)
	case ProviderOllama:
		// 单次调用的超时由网关控制。
		return ai.NewOllamaBackend(c.BaseURL, c.Model, &http.Client{})
	case ProviderOffline:
		return ai.NewOfflineBackend(genres), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", provider)
	}
}
