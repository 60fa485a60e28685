package component

import (
	"context"
	"fmt"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"chatrelay/internal/config"
	"chatrelay/internal/pkg/ark"
)

// NewChatModel 创建 ChatModel
// 支持多种 Provider: openai, azure, ark
func NewChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
		return newOpenAIChatModel(ctx, cfg, false)
	case "azure":
		return newOpenAIChatModel(ctx, cfg, true)
	case "ark":
		return newArkChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// newOpenAIChatModel 创建 OpenAI（或 Azure OpenAI）ChatModel
func newOpenAIChatModel(ctx context.Context, cfg *config.AIConfig, byAzure bool) (model.BaseChatModel, error) {
	modelCfg := &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		ByAzure: byAzure,
	}

	opts := cfg.Options
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		modelCfg.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	if opts.TopP > 0 {
		topP := float32(opts.TopP)
		modelCfg.TopP = &topP
	}
	if opts.PresencePenalty != 0 {
		pp := float32(opts.PresencePenalty)
		modelCfg.PresencePenalty = &pp
	}
	if opts.FrequencyPenalty != 0 {
		fp := float32(opts.FrequencyPenalty)
		modelCfg.FrequencyPenalty = &fp
	}

	return openai.NewChatModel(ctx, modelCfg)
}

// newArkChatModel 创建 Ark ChatModel（使用 eino-ext 模块）
func newArkChatModel(ctx context.Context, cfg *config.AIConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ark.DefaultBaseURL
	}

	modelCfg := &arkext.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
	}

	if cfg.Options.Temperature > 0 {
		temp := float32(cfg.Options.Temperature)
		modelCfg.Temperature = &temp
	}
	if cfg.Options.MaxTokens > 0 {
		maxTokens := cfg.Options.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	if cfg.Options.TopP > 0 {
		topP := float32(cfg.Options.TopP)
		modelCfg.TopP = &topP
	}

	return arkext.NewChatModel(ctx, modelCfg)
}
