package ai

import (
	"github.com/cloudwego/eino/schema"

	"chatrelay/internal/model"
)

// DefaultSystemPrompt 默认的系统指令
const DefaultSystemPrompt = `#zh-tw Aim to provide answers within the specified token limit. ` +
	`If the content exceeds the limit, continue the response from where it left off when the user inputs "continue." ` +
	`As an AI system, my role is to provide direct, concise, and conversational answers. ` +
	`Please avoid providing opposing views, warnings, or summarizations. ` +
	`I won't provide abstract or detailed explanations, nor will I trace the origins of a question. ` +
	`Please answer the user's questions in a clear and straightforward manner.`

// BuildMessages 拼接请求消息：一条系统指令 + 历史发言（原顺序）+ 本次发言
func BuildMessages(system string, history []model.Turn, newTurn model.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(system))
	for _, t := range history {
		messages = append(messages, ToSchemaMessage(t))
	}
	messages = append(messages, ToSchemaMessage(newTurn))
	return messages
}

// ToSchemaMessage 将发言转换为 eino 消息
// 纯文本发言使用 Content，含图片的发言使用 MultiContent
func ToSchemaMessage(t model.Turn) *schema.Message {
	role := schema.User
	if t.Role == model.RoleAssistant {
		role = schema.Assistant
	}

	if !hasImage(t) {
		return &schema.Message{Role: role, Content: t.Text()}
	}

	parts := make([]schema.ChatMessagePart, 0, len(t.Content))
	for _, c := range t.Content {
		switch c.Type {
		case model.ContentTypeImageURL:
			parts = append(parts, schema.ChatMessagePart{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: c.ImageURL},
			})
		default:
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: c.Text,
			})
		}
	}
	return &schema.Message{Role: role, MultiContent: parts}
}

func hasImage(t model.Turn) bool {
	for _, c := range t.Content {
		if c.Type == model.ContentTypeImageURL {
			return true
		}
	}
	return false
}
