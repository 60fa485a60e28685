package model

import (
	"time"
)

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType 内容类型
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImageURL ContentType = "image_url"
)

// Content 多模态内容片段，文本或图片引用二选一
type Content struct {
	Type     ContentType `bson:"type" json:"type"`
	Text     string      `bson:"text,omitempty" json:"text,omitempty"`
	ImageURL string      `bson:"image_url,omitempty" json:"image_url,omitempty"`
}

// TextContent 文本内容
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ImageContent 图片引用内容
func ImageContent(url string) Content {
	return Content{Type: ContentTypeImageURL, ImageURL: url}
}

// Turn 一次发言
type Turn struct {
	Role    Role      `bson:"role" json:"role"`
	Content []Content `bson:"content" json:"content"`
}

// UserTurn 构造用户发言
func UserTurn(content ...Content) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn 构造助手回复
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: []Content{TextContent(text)}}
}

// Text 拼接所有文本片段
func (t Turn) Text() string {
	var s string
	for _, c := range t.Content {
		if c.Type == ContentTypeText {
			s += c.Text
		}
	}
	return s
}

// TurnPair 一问一答，历史记录的最小持久化单元，写入后不再修改
type TurnPair struct {
	ID        string    `bson:"id" json:"id"`
	User      Turn      `bson:"user" json:"user"`
	Assistant Turn      `bson:"assistant" json:"assistant"`
	Model     string    `bson:"model,omitempty" json:"model,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Turns 展开为 [user, assistant]
func (p *TurnPair) Turns() []Turn {
	return []Turn{p.User, p.Assistant}
}

// UserConfig 用户个性化配置
type UserConfig struct {
	UserKey   string    `bson:"user_key" json:"user_key"`
	Model     string    `bson:"model" json:"model"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
