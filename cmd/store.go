package cmd

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/pkg/userkey"
	"chatrelay/internal/repository"
	"chatrelay/internal/service"
)

// withChatService 打开持久化后端并构造只用于离线维护的对话服务
func withChatService(ctx context.Context, fn func(svc *service.ChatService) error) error {
	cfg := GetConfig()
	if err := cfg.Store.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	repos, err := repository.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repos.Close(context.Background())

	svc := service.NewChatService(service.OptionsFromConfig(cfg), repos, nil, nil, nil, nil)
	return fn(svc)
}

// keyFromFlag 由平台用户 ID 派生用户键
func keyFromFlag(userID string) (userkey.Key, error) {
	if userID == "" {
		return "", errors.New("--user is required")
	}
	return userkey.Derive(userID), nil
}
