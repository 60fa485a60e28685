package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"chatrelay/internal/ai"
	"chatrelay/internal/config"
	"chatrelay/internal/messaging"
	"chatrelay/internal/model"
	"chatrelay/internal/pkg/id"
	"chatrelay/internal/pkg/logger"
	"chatrelay/internal/pkg/storage"
	"chatrelay/internal/pkg/userkey"
	"chatrelay/internal/repository"
)

// Completer 对话补全
type Completer interface {
	Complete(ctx context.Context, modelName string, messages []*schema.Message) (string, error)
}

// Options 对话行为参数，启动时由配置生成，之后只读
type Options struct {
	SystemPrompt string
	HistoryLimit int
	DefaultModel string
	VisionModel  string
	ImageModel   string
	ImageSize    string
	Aliases      map[string]string // 小写指令 -> 模型名
}

// OptionsFromConfig 从应用配置生成 Options
func OptionsFromConfig(cfg *config.Config) Options {
	aliases := make(map[string]string, len(cfg.AI.Models))
	for alias, m := range cfg.AI.Models {
		aliases[strings.ToLower(alias)] = m
	}
	prompt := cfg.AI.SystemPrompt
	if prompt == "" {
		prompt = ai.DefaultSystemPrompt
	}
	return Options{
		SystemPrompt: prompt,
		HistoryLimit: cfg.Chat.HistoryLimit,
		DefaultModel: cfg.AI.Model,
		VisionModel:  cfg.AI.VisionModel,
		ImageModel:   cfg.Image.Model,
		ImageSize:    cfg.Image.Size,
		Aliases:      aliases,
	}
}

// ChatService 对话服务 - 业务逻辑层
// 职责: 解析指令，编排历史仓库、AI 层与消息平台
type ChatService struct {
	opts      Options
	configs   repository.ConfigRepo
	history   repository.HistoryRepo
	completer Completer
	images    ai.ImageGenerator // 可为空，为空时画图模式不可用
	storage   storage.Storage
	messenger messaging.Messenger
	fetch     *http.Client
	now       func() time.Time
}

// NewChatService 创建对话服务
func NewChatService(
	opts Options,
	repos *repository.Repos,
	completer Completer,
	images ai.ImageGenerator,
	store storage.Storage,
	messenger messaging.Messenger,
) *ChatService {
	aliases := make(map[string]string, len(opts.Aliases))
	for alias, m := range opts.Aliases {
		aliases[strings.ToLower(alias)] = m
	}
	opts.Aliases = aliases
	if opts.VisionModel == "" {
		opts.VisionModel = opts.DefaultModel
	}

	return &ChatService{
		opts:      opts,
		configs:   repos.Config,
		history:   repos.History,
		completer: completer,
		images:    images,
		storage:   store,
		messenger: messenger,
		fetch:     &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

// HandleEvent 处理一条入站事件
// 上游错误以 "[kind]message" 回复用户后返回 nil；存储等内部错误回复通用提示并返回错误
func (s *ChatService) HandleEvent(ctx context.Context, ev model.InboundEvent) error {
	key := userkey.Derive(ev.UserID)
	lg := logger.ForUser(ctx, key.String())
	ctx = lg.WithContext(ctx)

	var err error
	switch ev.Message.Kind {
	case model.MessageKindText:
		err = s.handleText(ctx, key, ev)
	case model.MessageKindImage:
		err = s.handleImage(ctx, key, ev)
	default:
		s.reply(ctx, ev.ReplyToken, model.Text(msgUnsupported))
		return nil
	}
	if err == nil {
		return nil
	}
	return s.fail(ctx, ev.ReplyToken, err)
}

func (s *ChatService) handleText(ctx context.Context, key userkey.Key, ev model.InboundEvent) error {
	if cmd := s.parseCommand(ev.Message.Text); cmd.kind != commandNone {
		return s.runCommand(ctx, key, ev.ReplyToken, cmd)
	}

	cfg, err := s.configs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get user config: %w", err)
	}
	if s.opts.ImageModel != "" && cfg.Model == s.opts.ImageModel {
		return s.draw(ctx, key, ev, ev.Message.Text)
	}

	turn := model.UserTurn(model.TextContent(ev.Message.Text))
	return s.converse(ctx, key, ev.ReplyToken, cfg.Model, turn)
}

func (s *ChatService) handleImage(ctx context.Context, key userkey.Key, ev model.InboundEvent) error {
	body, err := s.messenger.Content(ctx, ev.Message.MediaID)
	if err != nil {
		return fmt.Errorf("fetch image content: %w", err)
	}
	defer body.Close()

	objectKey := fmt.Sprintf("%s/%s/%d.jpg", storage.UploadPrefix, key, s.now().UnixMilli())
	url, err := s.storage.Upload(ctx, objectKey, body, "image/jpeg")
	if err != nil {
		return fmt.Errorf("store uploaded image: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("object", objectKey).Msg("stored uploaded image")

	turn := model.UserTurn(model.ImageContent(url))
	return s.converse(ctx, key, ev.ReplyToken, s.opts.VisionModel, turn)
}

// converse 读取历史、调用模型、成功后追加问答并回复
func (s *ChatService) converse(ctx context.Context, key userkey.Key, replyToken, modelName string, turn model.Turn) error {
	history, err := s.history.Recent(ctx, key, s.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	messages := ai.BuildMessages(s.opts.SystemPrompt, history, turn)
	answer, err := s.completer.Complete(ctx, modelName, messages)
	if err != nil {
		return err
	}

	pair := &model.TurnPair{
		ID:        id.New(),
		User:      turn,
		Assistant: model.AssistantTurn(answer),
		Model:     modelName,
		CreatedAt: s.now(),
	}
	if err := s.history.Append(ctx, key, pair); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("model", modelName).
		Int("history_turns", len(history)).
		Msg("chat completed")

	s.reply(ctx, replyToken, model.Text(answer))
	return nil
}

func (s *ChatService) runCommand(ctx context.Context, key userkey.Key, replyToken string, cmd command) error {
	switch cmd.kind {
	case commandHelp:
		s.reply(ctx, replyToken, model.Text(s.helpText()))

	case commandNewTopic:
		if _, err := s.ResetTopic(ctx, key); err != nil {
			return err
		}
		s.reply(ctx, replyToken, model.Text(msgNewTopic))

	case commandQueryModel:
		m, err := s.CurrentModel(ctx, key)
		if err != nil {
			return err
		}
		s.reply(ctx, replyToken, model.Text(fmt.Sprintf(msgCurrentModel, m)))

	case commandSwitchModel:
		m, err := s.SetModel(ctx, key, cmd.model)
		if err != nil {
			return err
		}
		if m == s.opts.ImageModel {
			s.reply(ctx, replyToken, model.Text(msgDrawPrompt))
		} else {
			s.reply(ctx, replyToken, model.Text(fmt.Sprintf(msgSwitched, m)))
		}
	}
	return nil
}

// draw 画图模式：先回复等待提示，生成后推送图片，并归档图片与提示词
// 生成的图片不进入对话历史。等待提示已用掉 reply token，之后的失败只能推送或记录日志
func (s *ChatService) draw(ctx context.Context, key userkey.Key, ev model.InboundEvent, prompt string) error {
	if s.images == nil {
		return errors.New("image generation is not configured")
	}
	s.reply(ctx, ev.ReplyToken, model.Text(msgDrawing))

	img, err := s.images.GenerateImage(ctx, prompt, s.opts.ImageSize)
	if err != nil {
		notice := msgDrawFailed
		var apiErr *ai.APIError
		if errors.As(err, &apiErr) {
			notice = apiErr.Error()
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("image generation failed")
		s.push(ctx, ev.UserID, model.Text(notice))
		return nil
	}
	s.push(ctx, ev.UserID, model.Image(img.URL))

	// 图片已送达，归档失败不影响本次事件
	if err := s.archiveGenerated(ctx, key, prompt, img); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to archive generated image")
	}
	return nil
}

// generatedRecord 画图归档记录
type generatedRecord struct {
	Prompt        string    `json:"prompt"`
	RevisedPrompt string    `json:"revised_prompt,omitempty"`
	Model         string    `json:"model"`
	SourceURL     string    `json:"source_url"`
	ImageKey      string    `json:"image_key"`
	CreatedAt     time.Time `json:"created_at"`
}

// archiveGenerated 上游图片链接会过期，下载后与提示词一起存档
func (s *ChatService) archiveGenerated(ctx context.Context, key userkey.Key, prompt string, img *ai.GeneratedImage) error {
	base := fmt.Sprintf("%s/%s/%d", storage.GeneratedPrefix, key, s.now().UnixMilli())
	imageKey := base + ".png"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return fmt.Errorf("download generated image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download generated image: unexpected status %d", resp.StatusCode)
	}
	if _, err := s.storage.Upload(ctx, imageKey, resp.Body, "image/png"); err != nil {
		return fmt.Errorf("store generated image: %w", err)
	}

	record, err := json.Marshal(generatedRecord{
		Prompt:        prompt,
		RevisedPrompt: img.RevisedPrompt,
		Model:         s.opts.ImageModel,
		SourceURL:     img.URL,
		ImageKey:      imageKey,
		CreatedAt:     img.Created,
	})
	if err != nil {
		return err
	}
	if _, err := s.storage.Upload(ctx, base+".json", bytes.NewReader(record), "application/json"); err != nil {
		return fmt.Errorf("store prompt record: %w", err)
	}
	return nil
}

// ResetTopic 归档当前话题，返回归档 ID（没有历史时为空）
func (s *ChatService) ResetTopic(ctx context.Context, key userkey.Key) (string, error) {
	archiveID, err := s.history.Archive(ctx, key)
	if err != nil {
		return "", fmt.Errorf("archive history: %w", err)
	}
	if archiveID != "" {
		zerolog.Ctx(ctx).Info().Str("archive_id", archiveID).Msg("topic archived")
	}
	return archiveID, nil
}

// CurrentModel 返回用户当前使用的模型
func (s *ChatService) CurrentModel(ctx context.Context, key userkey.Key) (string, error) {
	cfg, err := s.configs.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get user config: %w", err)
	}
	return cfg.Model, nil
}

// SetModel 切换模型并返回实际写入的模型，空或未知的模型名写入默认模型
func (s *ChatService) SetModel(ctx context.Context, key userkey.Key, name string) (string, error) {
	if !s.knownModel(name) {
		zerolog.Ctx(ctx).Warn().Str("requested", name).Msg("unknown model, falling back to default")
		name = s.opts.DefaultModel
	}
	if err := s.configs.SetModel(ctx, key, name); err != nil {
		return "", fmt.Errorf("set user model: %w", err)
	}
	return name, nil
}

// History 返回当前话题最近 limit 组问答
func (s *ChatService) History(ctx context.Context, key userkey.Key, limit int) ([]model.Turn, error) {
	return s.history.Recent(ctx, key, limit)
}

func (s *ChatService) knownModel(name string) bool {
	if name == "" {
		return false
	}
	if name == s.opts.DefaultModel || name == s.opts.ImageModel || name == s.opts.VisionModel {
		return true
	}
	for _, m := range s.opts.Aliases {
		if m == name {
			return true
		}
	}
	return false
}

// fail 把错误转换为用户可见的提示；上游错误直接展示，其余错误回复通用提示并向上返回
func (s *ChatService) fail(ctx context.Context, replyToken string, err error) error {
	var apiErr *ai.APIError
	switch {
	case errors.As(err, &apiErr):
		zerolog.Ctx(ctx).Warn().Err(err).Msg("upstream api error")
		s.reply(ctx, replyToken, model.Text(apiErr.Error()))
		return nil
	case errors.Is(err, ai.ErrCompletionTimeout):
		s.reply(ctx, replyToken, model.Text(msgTimeout))
		return err
	default:
		s.reply(ctx, replyToken, model.Text(msgInternal))
		return err
	}
}

// reply 与 push 的投递结果只记录日志
func (s *ChatService) reply(ctx context.Context, replyToken string, msgs ...model.OutboundMessage) {
	if err := s.messenger.Reply(ctx, replyToken, msgs...); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to send reply")
	}
}

func (s *ChatService) push(ctx context.Context, to string, msgs ...model.OutboundMessage) {
	if err := s.messenger.Push(ctx, to, msgs...); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to push message")
	}
}
