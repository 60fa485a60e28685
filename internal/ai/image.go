package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/pkg/ark"
)

// DefaultImageSize 默认横幅尺寸（dall-e-3 支持 1024x1024、1024x1792、1792x1024）
const DefaultImageSize = "1792x1024"

// GeneratedImage 生成结果
type GeneratedImage struct {
	URL           string
	RevisedPrompt string
	Created       time.Time
}

// ImageGenerator 图片生成
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, size string) (*GeneratedImage, error)
}

// NewImageGenerator 根据 image.provider 创建图片生成器；api_key 与 base_url 为空时沿用 ai 配置
func NewImageGenerator(cfg *config.ImageConfig, aiCfg *config.AIConfig) (ImageGenerator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = aiCfg.APIKey
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * DefaultTimeout
	}

	switch cfg.Provider {
	case "openai", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = aiCfg.BaseURL
		}
		return NewOpenAIImageGenerator(baseURL, apiKey, cfg.Model, timeout), nil
	case "ark":
		client, err := ark.NewImageClient(apiKey, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("create ark image client: %w", err)
		}
		return &ArkImageGenerator{client: client, timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unsupported image provider: %s", cfg.Provider)
	}
}

// OpenAIImageGenerator 调用 OpenAI images/generations
type OpenAIImageGenerator struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIImageGenerator 创建 OpenAI 图片生成器，baseURL 为空时使用官方地址
func NewOpenAIImageGenerator(baseURL, apiKey, modelName string, timeout time.Duration) *OpenAIImageGenerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	return &OpenAIImageGenerator{
		endpoint:   baseURL + "/v1/images/generations",
		apiKey:     apiKey,
		model:      modelName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage 生成一张图片
func (g *OpenAIImageGenerator) GenerateImage(ctx context.Context, prompt, size string) (*GeneratedImage, error) {
	if size == "" {
		size = DefaultImageSize
	}
	body, err := json.Marshal(imageRequest{Model: g.model, Prompt: prompt, N: 1, Size: size})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrCompletionTimeout, err)
		}
		return nil, fmt.Errorf("image generation request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image generation response: %w", err)
	}

	var out imageResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &APIError{Kind: kindForStatus(resp.StatusCode), Message: fmt.Sprintf("unexpected response (status %d)", resp.StatusCode)}
	}
	if out.Error != nil {
		return nil, &APIError{Kind: out.Error.Type, Message: out.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Kind: kindForStatus(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return nil, &APIError{Kind: "empty_response", Message: "no image in response"}
	}

	created := time.Now()
	if out.Created > 0 {
		created = time.Unix(out.Created, 0)
	}
	return &GeneratedImage{
		URL:           out.Data[0].URL,
		RevisedPrompt: out.Data[0].RevisedPrompt,
		Created:       created,
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// ArkImageGenerator 火山引擎 Ark 图片生成
type ArkImageGenerator struct {
	client  *ark.ImageClient
	timeout time.Duration
}

// GenerateImage 生成一张图片，Ark 不返回改写后的提示词
func (g *ArkImageGenerator) GenerateImage(ctx context.Context, prompt, size string) (*GeneratedImage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	url, err := g.client.GenerateImageURL(ctx, prompt, size)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrCompletionTimeout, err)
		}
		return nil, classify(err)
	}
	return &GeneratedImage{URL: url, Created: time.Now()}, nil
}
