package model

// MessageKind 消息类型
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindOther MessageKind = "other"
)

// InboundMessage 平台推送的用户消息（已完成验签与解析）
type InboundMessage struct {
	Kind    MessageKind
	Text    string
	MediaID string
}

// InboundEvent 入站事件
type InboundEvent struct {
	UserID     string
	ReplyToken string
	Message    InboundMessage
}

// OutboundMessage 回复或推送给用户的消息
type OutboundMessage struct {
	Kind MessageKind
	Text string
	URL  string
}

// Text 文本消息
func Text(text string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindText, Text: text}
}

// Image 图片消息
func Image(url string) OutboundMessage {
	return OutboundMessage{Kind: MessageKindImage, URL: url}
}
