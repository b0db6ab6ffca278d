package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	addr, err := cfg.Server.Addr()
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "json", cfg.Log.Encoding)
	assert.Equal(t, float32(0.8), cfg.AI.Temperature)
	assert.Equal(t, float32(0.9), cfg.AI.TopP)
	assert.Equal(t, 400, cfg.AI.MaxTokens)
	assert.Equal(t, 4, cfg.Gateway.MaxConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Gateway.QueueTimeout)
	assert.Equal(t, 60*time.Second, cfg.Gateway.CallTimeout)
	assert.Equal(t, 3, cfg.Gateway.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.BaseRetryDelay)
	assert.Equal(t, 5*time.Second, cfg.Gateway.MaxRetryDelay)
	assert.Equal(t, 3, cfg.Engine.HistoryWindow)
	assert.Equal(t, 2, cfg.Engine.ParseRetries)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, ProviderOffline, cfg.AI.ResolvedProvider())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("MODEL_PROVIDER", " OpenAI ")
	t.Setenv("MODEL_NAME", "gpt-4o-mini")
	t.Setenv("MODEL_MAX_CONCURRENCY", "8")
	t.Setenv("MODEL_QUEUE_TIMEOUT", "250ms")
	t.Setenv("SESSION_TTL", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddr)
	assert.Equal(t, ProviderOpenAI, cfg.AI.ResolvedProvider())
	assert.Equal(t, 8, cfg.Gateway.Limits().MaxConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Gateway.Limits().QueueTimeout)
	assert.Zero(t, cfg.Session.TTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)

	engine := cfg.Narrative()
	assert.Equal(t, cfg.AI.MaxTokens, engine.Params.MaxTokens)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"provider":    {"MODEL_PROVIDER", "skynet"},
		"temperature": {"MODEL_TEMPERATURE", "3"},
		"concurrency": {"MODEL_MAX_CONCURRENCY", "0"},
		"encoding":    {"LOG_ENCODING", "xml"},
		"port":        {"PORT", "80 80"},
		"duration":    {"MODEL_TIMEOUT", "soon"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestResolvedProviderInference(t *testing.T) {
	assert.Equal(t, ProviderArk, AIConfig{Model: "doubao", ArkAPIKey: "k"}.ResolvedProvider())
	assert.Equal(t, ProviderArk, AIConfig{Model: "doubao", ArkAccessKey: "a", ArkSecretKey: "s"}.ResolvedProvider())
	assert.Equal(t, ProviderOpenAI, AIConfig{Model: "gpt", APIKey: "k"}.ResolvedProvider())
	assert.Equal(t, ProviderOffline, AIConfig{APIKey: "k"}.ResolvedProvider())
	assert.Equal(t, ProviderOllama, AIConfig{Provider: ProviderOllama}.ResolvedProvider())
}

func TestNewBackend(t *testing.T) {
	genres := catalog.NewDefaultStore()

	backend, err := AIConfig{}.NewBackend(context.Background(), genres)
	require.NoError(t, err)
	assert.Equal(t, "offline", backend.Name())

	backend, err = AIConfig{Provider: ProviderOllama, Model: "llama3", BaseURL: "http://localhost:11434/v1"}.NewBackend(context.Background(), genres)
	require.NoError(t, err)
	assert.Equal(t, "ollama", backend.Name())

	_, err = AIConfig{Provider: ProviderOpenAI}.NewBackend(context.Background(), genres)
	assert.Error(t, err)

	_, err = AIConfig{Provider: ProviderArk}.NewBackend(context.Background(), genres)
	assert.Error(t, err)
}
