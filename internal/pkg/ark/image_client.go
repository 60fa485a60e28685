package ark

import (
	"context"
	"fmt"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
)

// DefaultBaseURL Ark API 默认地址
const DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// ImageClient Ark 图片生成客户端
// 使用官方 volcengine-go-sdk 调用火山引擎 Ark 的 images/generations
type ImageClient struct {
	client *arkruntime.Client
	model  string
}

// NewImageClient 创建 Ark 图片生成客户端
func NewImageClient(apiKey, baseURL, modelName string) (*ImageClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ark api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &ImageClient{
		client: arkruntime.NewClientWithApiKey(apiKey, arkruntime.WithBaseUrl(baseURL)),
		model:  modelName,
	}, nil
}

// GenerateImageURL 生成一张图片并返回其临时访问 URL
func (c *ImageClient) GenerateImageURL(ctx context.Context, prompt, size string) (string, error) {
	responseFormat := "url"
	watermark := false

	input := model.GenerateImagesRequest{
		Model:          c.model,
		Prompt:         prompt,
		ResponseFormat: &responseFormat,
		Watermark:      &watermark,
	}
	if size != "" {
		input.Size = &size
	}

	output, err := c.client.GenerateImages(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ark GenerateImages: %w", err)
	}

	if len(output.Data) == 0 || output.Data[0].Url == nil || *output.Data[0].Url == "" {
		return "", fmt.Errorf("no image url in ark response")
	}

	return *output.Data[0].Url, nil
}
