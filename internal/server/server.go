package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"chatrelay/internal/ai"
	"chatrelay/internal/ai/component"
	"chatrelay/internal/config"
	"chatrelay/internal/handler"
	"chatrelay/internal/pkg/line"
	"chatrelay/internal/pkg/storage"
	"chatrelay/internal/pkg/storagefactory"
	"chatrelay/internal/repository"
	"chatrelay/internal/server/middleware"
	"chatrelay/internal/service"
)

// maxEventsInFlight 单个 webhook 请求内并发处理的事件数上限
const maxEventsInFlight = 8

// Server HTTP 服务器
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	repos   *repository.Repos
	storage storage.Storage
	chat    *service.ChatService
}

// New 创建服务器实例并初始化全部依赖
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	repos, err := repository.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	chat, store, err := NewChatService(ctx, cfg, repos)
	if err != nil {
		_ = repos.Close(context.Background())
		return nil, err
	}

	srv := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		repos:   repos,
		storage: store,
		chat:    chat,
	}
	srv.setupRoutes()

	return srv, nil
}

// NewChatService 组装对话服务及其依赖，返回的 storage 同时用于图片路由
func NewChatService(ctx context.Context, cfg *config.Config, repos *repository.Repos) (*service.ChatService, storage.Storage, error) {
	chatModel, err := component.NewChatModel(ctx, &cfg.AI)
	if err != nil {
		return nil, nil, fmt.Errorf("init chat model: %w", err)
	}
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized chat model")

	var images ai.ImageGenerator
	if cfg.Image.Model != "" {
		images, err = ai.NewImageGenerator(&cfg.Image, &cfg.AI)
		if err != nil {
			return nil, nil, fmt.Errorf("init image generator: %w", err)
		}
	} else {
		log.Warn().Msg("image.model not configured, drawing mode disabled")
	}

	store, err := storagefactory.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	messenger, err := line.NewClient(&cfg.Line)
	if err != nil {
		return nil, nil, fmt.Errorf("init line client: %w", err)
	}

	chat := service.NewChatService(
		service.OptionsFromConfig(cfg),
		repos,
		ai.NewCompleter(chatModel, cfg.AI.Timeout),
		images,
		store,
		messenger,
	)
	return chat, store, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler(s.repos)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// LINE webhook
	webhookHandler := handler.NewWebhookHandler(s.cfg.Line.ChannelSecret, s.chat, maxEventsInFlight)
	s.engine.POST("/webhook", webhookHandler.Callback)

	// 用户上传的图片
	imageHandler := handler.NewImageHandler(s.storage)
	s.engine.GET("/uploads/:hash/:file", imageHandler.Get)
	s.engine.GET("/images/:hash/:file", imageHandler.Get)
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 先停止接收请求，等待处理中的事件写完历史再关闭存储
		shutdownErr := srv.Shutdown(context.Background())
		if err := s.repos.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
		return shutdownErr
	case err := <-errCh:
		_ = s.repos.Close(context.Background())
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
