package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatrelay/internal/ai"
	"chatrelay/internal/config"
	"chatrelay/internal/pkg/logger"
)

var (
	cfgFile   string
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "ChatRelay - LINE chat bot relay for LLM completion",
	Long: `ChatRelay receives LINE webhook events, forwards them to a chat completion
API (or an image generation API in drawing mode), keeps a rolling per-user
conversation history and replies through the LINE Messaging API.`,
	SilenceUsage: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.chatrelay")
	}

	// 环境变量设置，例如 CHATRELAY_LINE_CHANNEL_SECRET
	viper.SetEnvPrefix("CHATRELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	closer, err := logger.Init(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	logCloser = closer

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.domain", "http://localhost:3000")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")

	// LINE
	viper.SetDefault("line.quick_reply_icon_url", "")
	viper.SetDefault("line.quick_replies", []map[string]string{
		{"label": "新話題", "text": "!新話題"},
		{"label": "目前模型", "text": "!model查詢"},
		{"label": "製作圖片", "text": "!製作圖片"},
		{"label": "GPT-4o", "text": "!GPT-4o"},
		{"label": "說明", "text": "!help"},
	})

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-3.5-turbo")
	viper.SetDefault("ai.vision_model", "gpt-4o")
	viper.SetDefault("ai.timeout", "60s")
	viper.SetDefault("ai.system_prompt", ai.DefaultSystemPrompt)
	viper.SetDefault("ai.models", map[string]string{
		"!GPT-4o":              "gpt-4o",
		"!GPT-3.5-Turbo":       "gpt-3.5-turbo",
		"!GPT-4-Turbo":         "gpt-4-turbo-preview",
		"!GPT-4-Turbo-Preview": "gpt-4-turbo-preview",
	})
	viper.SetDefault("ai.options.temperature", 0.9)
	viper.SetDefault("ai.options.max_tokens", 768)
	viper.SetDefault("ai.options.top_p", 1.0)
	viper.SetDefault("ai.options.presence_penalty", 0.6)
	viper.SetDefault("ai.options.frequency_penalty", 0.0)

	// Image
	viper.SetDefault("image.provider", "openai")
	viper.SetDefault("image.model", "dall-e-3")
	viper.SetDefault("image.size", ai.DefaultImageSize)
	viper.SetDefault("image.timeout", "120s")

	// Chat
	viper.SetDefault("chat.history_limit", 3)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// Store
	viper.SetDefault("store.backend", "bolt")
	viper.SetDefault("store.bolt_path", "data/chatrelay.db")
	viper.SetDefault("store.key_prefix", "chatrelay:")

	// MongoDB
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "chatrelay")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Storage
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.base_path", "data/storage")
	viper.SetDefault("storage.local.base_url", "http://localhost:3000")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
