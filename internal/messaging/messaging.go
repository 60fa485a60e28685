// Package messaging 定义与消息平台交互的接口
package messaging

import (
	"context"
	"io"

	"chatrelay/internal/model"
)

// Messenger 消息平台客户端
type Messenger interface {
	// Reply 使用 reply token 回复，token 只能使用一次
	Reply(ctx context.Context, replyToken string, messages ...model.OutboundMessage) error

	// Push 主动推送消息给用户
	Push(ctx context.Context, to string, messages ...model.OutboundMessage) error

	// Content 获取用户上传的媒体内容，调用方负责关闭
	Content(ctx context.Context, messageID string) (io.ReadCloser, error)
}
