package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout 未配置时的调用超时
const DefaultTimeout = 60 * time.Second

// Completer 对话补全客户端
type Completer struct {
	chatModel einomodel.BaseChatModel
	timeout   time.Duration
}

// NewCompleter 创建对话补全客户端
func NewCompleter(chatModel einomodel.BaseChatModel, timeout time.Duration) *Completer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Completer{chatModel: chatModel, timeout: timeout}
}

// Complete 使用指定模型完成一次对话
// 超时返回 ErrCompletionTimeout，上游错误返回 *APIError
func (c *Completer) Complete(ctx context.Context, modelName string, messages []*schema.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.chatModel.Generate(ctx, messages, einomodel.WithModel(modelName))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %v", ErrCompletionTimeout, c.timeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", classify(err)
	}

	content := ""
	if resp != nil {
		content = strings.TrimSpace(resp.Content)
	}
	if content == "" {
		return "", &APIError{Kind: "empty_response", Message: "model returned no content"}
	}

	event := log.Debug().
		Str("model", modelName).
		Int("messages", len(messages)).
		Dur("latency", time.Since(start))
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		event = event.
			Int("prompt_tokens", resp.ResponseMeta.Usage.PromptTokens).
			Int("completion_tokens", resp.ResponseMeta.Usage.CompletionTokens)
	}
	event.Msg("completion finished")

	return content, nil
}
