package config

import (
	"errors"
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Line    LineConfig    `mapstructure:"line"`
	AI      AIConfig      `mapstructure:"ai"`
	Image   ImageConfig   `mapstructure:"image"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	Domain       string        `mapstructure:"domain"` // 对外访问域名，用于拼接图片 URL
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LineConfig LINE Messaging API 配置
type LineConfig struct {
	ChannelSecret      string            `mapstructure:"channel_secret"`
	ChannelAccessToken string            `mapstructure:"channel_access_token"`
	QuickReplyIconURL  string            `mapstructure:"quick_reply_icon_url"`
	QuickReplies       []QuickReplyEntry `mapstructure:"quick_replies"`
}

// QuickReplyEntry 快捷回复按钮
type QuickReplyEntry struct {
	Label string `mapstructure:"label"`
	Text  string `mapstructure:"text"`
}

// AIConfig AI 服务配置
type AIConfig struct {
	Provider     string            `mapstructure:"provider"`
	APIKey       string            `mapstructure:"api_key"`
	Model        string            `mapstructure:"model"`        // 默认模型
	VisionModel  string            `mapstructure:"vision_model"` // 图片理解使用的模型
	BaseURL      string            `mapstructure:"base_url"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	SystemPrompt string            `mapstructure:"system_prompt"`
	Models       map[string]string `mapstructure:"models"` // 切换指令 -> 模型名
	Options      AIOptionsConfig   `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature      float64 `mapstructure:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	TopP             float64 `mapstructure:"top_p"`
	PresencePenalty  float64 `mapstructure:"presence_penalty"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty"`
}

// ImageConfig 图片生成配置
type ImageConfig struct {
	Provider string        `mapstructure:"provider"` // openai, ark
	APIKey   string        `mapstructure:"api_key"`  // 为空时沿用 ai.api_key
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"` // 同时作为“画图模式”的模型标记
	Size     string        `mapstructure:"size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ChatConfig 对话行为配置
type ChatConfig struct {
	HistoryLimit int `mapstructure:"history_limit"` // 拼接提示词时携带的最近问答对数量
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// StoreConfig 对话历史与用户配置的持久化后端
type StoreConfig struct {
	Backend   string `mapstructure:"backend"`   // bolt, redis, mongo
	BoltPath  string `mapstructure:"bolt_path"` // bolt 数据文件路径
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig 图片存储配置
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss, s3
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
	S3    *S3Config    `mapstructure:"s3,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath string `mapstructure:"base_path"` // 基础路径
	BaseURL  string `mapstructure:"base_url"`  // 基础URL（用于生成访问URL）
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`          // OSS端点
	Bucket          string `mapstructure:"bucket"`            // Bucket名称
	AccessKeyID     string `mapstructure:"access_key_id"`     // AccessKey ID
	AccessKeySecret string `mapstructure:"access_key_secret"` // AccessKey Secret
	PresignExpiry   int    `mapstructure:"presign_expiry"`    // 预签名URL过期时间（秒）
}

// S3Config S3 / MinIO 配置
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	PresignExpiry   int    `mapstructure:"presign_expiry"`
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Line.ChannelSecret == "" || c.Line.ChannelAccessToken == "" {
		return errors.New("line channel secret and access token are required")
	}

	if c.AI.Model == "" {
		return errors.New("ai.model is required")
	}

	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("invalid chat.history_limit: %d", c.Chat.HistoryLimit)
	}

	return c.Store.Validate()
}

// Validate 校验持久化后端配置
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case "bolt":
		if c.BoltPath == "" {
			return errors.New("store.bolt_path is required for bolt backend")
		}
	case "redis", "mongo":
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Backend)
	}
	return nil
}

// KnownModel 判断模型名是否为可切换的模型（默认模型、视觉模型、别名映射中的模型或画图模型）
func (c *Config) KnownModel(name string) bool {
	if name == "" {
		return false
	}
	if name == c.AI.Model || name == c.AI.VisionModel || name == c.Image.Model {
		return true
	}
	for _, m := range c.AI.Models {
		if m == name {
			return true
		}
	}
	return false
}
