package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/kelseyhightower/envconfig"

	"github.com/zhouzirui/narrative-forge/backend/internal/logger"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/narrative"
)

// 支持的模型提供方。
const (
	ProviderArk     = "ark"
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderOffline = "offline"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Gateway GatewayConfig
	Engine  EngineConfig
	Session SessionConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	// ListenAddr 由 Load 根据 Port 解析得出。
	ListenAddr string `ignored:"true"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string `envconfig:"MODEL_PROVIDER"`
	Model    string `envconfig:"MODEL_NAME"`
	BaseURL  string `envconfig:"MODEL_BASE_URL"`
	APIKey   string `envconfig:"MODEL_API_KEY"`

	ArkAPIKey    string `envconfig:"ARK_API_KEY"`
	ArkAccessKey string `envconfig:"ARK_ACCESS_KEY"`
	ArkSecretKey string `envconfig:"ARK_SECRET_KEY"`
	ArkBaseURL   string `envconfig:"ARK_BASE_URL" default:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion    string `envconfig:"ARK_REGION" default:"cn-beijing"`

	Temperature float32 `envconfig:"MODEL_TEMPERATURE" default:"0.8"`
	TopP        float32 `envconfig:"MODEL_TOP_P" default:"0.9"`
	MaxTokens   int     `envconfig:"MODEL_MAX_TOKENS" default:"400"`
}

// GatewayConfig 限制对模型的并发与重试。
type GatewayConfig struct {
	MaxConcurrency int           `envconfig:"MODEL_MAX_CONCURRENCY" default:"4"`
	QueueTimeout   time.Duration `envconfig:"MODEL_QUEUE_TIMEOUT" default:"10s"`
	CallTimeout    time.Duration `envconfig:"MODEL_TIMEOUT" default:"60s"`
	MaxAttempts    int           `envconfig:"MODEL_MAX_ATTEMPTS" default:"3"`
	BaseRetryDelay time.Duration `envconfig:"MODEL_RETRY_BASE_DELAY" default:"500ms"`
	MaxRetryDelay  time.Duration `envconfig:"MODEL_RETRY_MAX_DELAY" default:"5s"`
}

// EngineConfig 控制提示词构造与解析重试。
type EngineConfig struct {
	HistoryWindow int `envconfig:"HISTORY_WINDOW" default:"3"`
	TokenBudget   int `envconfig:"PROMPT_TOKEN_BUDGET" default:"0"`
	ParseRetries  int `envconfig:"NARRATIVE_PARSE_RETRIES" default:"2"`
}

// SessionConfig 控制空闲会话的回收。
type SessionConfig struct {
	TTL           time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	addr, err := cfg.Server.Addr()
	if err != nil {
		return nil, err
	}
	cfg.Server.ListenAddr = addr
	return &cfg, nil
}

// Validate 检查取值范围。
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Server.Addr(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("invalid LOG_ENCODING %q: want json or console", c.Log.Encoding))
	}
	switch c.AI.Provider {
	case "", ProviderArk, ProviderOpenAI, ProviderOllama, ProviderOffline:
	default:
		errs = append(errs, fmt.Errorf("invalid MODEL_PROVIDER %q", c.AI.Provider))
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("MODEL_TEMPERATURE must be within [0, 2], got %v", c.AI.Temperature))
	}
	if c.AI.TopP < 0 || c.AI.TopP > 1 {
		errs = append(errs, fmt.Errorf("MODEL_TOP_P must be within [0, 1], got %v", c.AI.TopP))
	}
	if c.AI.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("MODEL_MAX_TOKENS must be positive, got %d", c.AI.MaxTokens))
	}
	if c.Gateway.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("MODEL_MAX_CONCURRENCY must be at least 1, got %d", c.Gateway.MaxConcurrency))
	}
	if c.Gateway.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MODEL_MAX_ATTEMPTS must be at least 1, got %d", c.Gateway.MaxAttempts))
	}
	if c.Gateway.QueueTimeout <= 0 || c.Gateway.CallTimeout <= 0 {
		errs = append(errs, errors.New("MODEL_QUEUE_TIMEOUT and MODEL_TIMEOUT must be positive"))
	}
	if c.Engine.HistoryWindow < 0 || c.Engine.ParseRetries < 0 || c.Engine.TokenBudget < 0 {
		errs = append(errs, errors.New("HISTORY_WINDOW, NARRATIVE_PARSE_RETRIES and PROMPT_TOKEN_BUDGET must not be negative"))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must not be negative, got %s", c.Session.TTL))
	}
	return errors.Join(errs...)
}

// Addr 解析服务器监听地址。
func (c ServerConfig) Addr() (string, error) {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}
	return ":" + port, nil
}

// Logger 返回日志配置。
func (c LogConfig) Logger() logger.Config {
	return logger.Config{Level: c.Level, Encoding: c.Encoding}
}

// ArkEnabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
}

// ResolvedProvider 返回实际使用的提供方：显式配置优先，否则按凭证推断，
// 都没有时退回离线叙述者。
func (c AIConfig) ResolvedProvider() string {
	if c.Provider != "" {
		return c.Provider
	}
	switch {
	case c.ArkEnabled():
		return ProviderArk
	case c.APIKey != "" && c.Model != "":
		return ProviderOpenAI
	default:
		return ProviderOffline
	}
}

// Params 返回采样参数。
func (c AIConfig) Params() ai.Params {
	return ai.Params{Temperature: c.Temperature, TopP: c.TopP, MaxTokens: c.MaxTokens}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + MODEL_NAME 或 AK/SK 组合")
	}

	temperature := c.Temperature
	topP := c.TopP
	maxTokens := c.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      c.ArkAPIKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// Limits 转换为网关配置。
func (c GatewayConfig) Limits() ai.GatewayConfig {
	return ai.GatewayConfig{
		MaxConcurrency: c.MaxConcurrency,
		QueueTimeout:   c.QueueTimeout,
		CallTimeout:    c.CallTimeout,
		MaxAttempts:    c.MaxAttempts,
		BaseRetryDelay: c.BaseRetryDelay,
		MaxRetryDelay:  c.MaxRetryDelay,
	}
}

// Narrative 转换为叙事引擎配置。
func (c *Config) Narrative() narrative.Config {
	return narrative.Config{
		HistoryWindow: c.Engine.HistoryWindow,
		TokenBudget:   c.Engine.TokenBudget,
		ParseRetries:  c.Engine.ParseRetries,
		Params:        c.AI.Params(),
	}
}
