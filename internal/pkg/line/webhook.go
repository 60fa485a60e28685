package line

import (
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"chatrelay/internal/model"
)

// ErrInvalidSignature 签名校验失败
var ErrInvalidSignature = webhook.ErrInvalidSignature

// ParseEvents 校验签名并把 webhook 请求转换为入站事件
// 只保留来自用户的消息事件，其它事件（follow、postback 等）忽略
func ParseEvents(channelSecret string, req *http.Request) ([]model.InboundEvent, error) {
	cb, err := webhook.ParseRequest(channelSecret, req)
	if err != nil {
		return nil, err
	}

	events := make([]model.InboundEvent, 0, len(cb.Events))
	for _, e := range cb.Events {
		msgEvent, ok := e.(webhook.MessageEvent)
		if !ok {
			continue
		}
		userID := sourceUserID(msgEvent.Source)
		if userID == "" {
			continue
		}
		events = append(events, model.InboundEvent{
			UserID:     userID,
			ReplyToken: msgEvent.ReplyToken,
			Message:    toInbound(msgEvent.Message),
		})
	}
	return events, nil
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

func toInbound(content webhook.MessageContentInterface) model.InboundMessage {
	switch m := content.(type) {
	case webhook.TextMessageContent:
		return model.InboundMessage{Kind: model.MessageKindText, Text: m.Text}
	case webhook.ImageMessageContent:
		return model.InboundMessage{Kind: model.MessageKindImage, MediaID: m.Id}
	default:
		return model.InboundMessage{Kind: model.MessageKindOther}
	}
}
