package line

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"chatrelay/internal/config"
	"chatrelay/internal/model"
)

// maxMessagesPerRequest 单次 reply/push 允许的最大消息数
const maxMessagesPerRequest = 5

// Client LINE Messaging API 客户端
type Client struct {
	api        *messaging_api.MessagingApiAPI
	blob       *messaging_api.MessagingApiBlobAPI
	quickReply *messaging_api.QuickReply
}

// NewClient 创建 LINE 客户端
func NewClient(cfg *config.LineConfig) (*Client, error) {
	api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging blob client: %w", err)
	}
	return &Client{
		api:        api,
		blob:       blob,
		quickReply: BuildQuickReply(cfg.QuickReplyIconURL, cfg.QuickReplies),
	}, nil
}

// Reply 回复消息
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...model.OutboundMessage) error {
	if len(messages) == 0 {
		return nil
	}
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   c.convert(messages),
	})
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}

// Push 推送消息
func (c *Client) Push(ctx context.Context, to string, messages ...model.OutboundMessage) error {
	if len(messages) == 0 {
		return nil
	}
	_, err := c.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: c.convert(messages),
	}, "")
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	return nil
}

// Content 获取消息内容（图片等二进制数据）
func (c *Client) Content(ctx context.Context, messageID string) (io.ReadCloser, error) {
	resp, err := c.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return nil, fmt.Errorf("line get content: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("line get content: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) convert(messages []model.OutboundMessage) []messaging_api.MessageInterface {
	if len(messages) > maxMessagesPerRequest {
		messages = messages[:maxMessagesPerRequest]
	}
	out := make([]messaging_api.MessageInterface, 0, len(messages))
	for _, m := range messages {
		out = append(out, ToLineMessage(m, c.quickReply))
	}
	return out
}

// ToLineMessage 转换为 LINE 消息，quickReply 为空时不附带快捷回复
func ToLineMessage(m model.OutboundMessage, quickReply *messaging_api.QuickReply) messaging_api.MessageInterface {
	switch m.Kind {
	case model.MessageKindImage:
		return messaging_api.ImageMessage{
			OriginalContentUrl: m.URL,
			PreviewImageUrl:    m.URL,
			QuickReply:         quickReply,
		}
	default:
		return messaging_api.TextMessage{
			Text:       m.Text,
			QuickReply: quickReply,
		}
	}
}

// BuildQuickReply 按配置生成快捷回复按钮，没有配置时返回 nil
func BuildQuickReply(iconURL string, entries []config.QuickReplyEntry) *messaging_api.QuickReply {
	if len(entries) == 0 {
		return nil
	}
	items := make([]messaging_api.QuickReplyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, messaging_api.QuickReplyItem{
			ImageUrl: iconURL,
			Action: &messaging_api.MessageAction{
				Label: e.Label,
				Text:  e.Text,
			},
		})
	}
	return &messaging_api.QuickReply{Items: items}
}
