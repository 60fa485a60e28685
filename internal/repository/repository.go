package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/model"
	"chatrelay/internal/pkg/id"
	"chatrelay/internal/pkg/userkey"
)

// ErrUnsupportedBackend 不支持的持久化后端
var ErrUnsupportedBackend = errors.New("unsupported store backend")

// archiveMarker 归档历史的前缀标记，正常流程不会再读取带此标记的历史
const archiveMarker = "[X]"

// ConfigRepo 用户配置仓库
type ConfigRepo interface {
	// Get 获取用户配置，不存在时返回携带默认模型的配置
	Get(ctx context.Context, key userkey.Key) (*model.UserConfig, error)

	// SetModel 覆盖写入用户选择的模型
	SetModel(ctx context.Context, key userkey.Key, modelName string) error
}

// HistoryRepo 对话历史仓库
type HistoryRepo interface {
	// Append 向当前话题追加一组问答，不覆盖、不重排已有记录
	Append(ctx context.Context, key userkey.Key, pair *model.TurnPair) error

	// Recent 返回当前话题最近 limit 组问答展开后的发言，按时间正序
	Recent(ctx context.Context, key userkey.Key, limit int) ([]model.Turn, error)

	// Archive 将当前话题整体归档并开启空白话题，返回归档 ID；没有当前话题时返回空 ID
	Archive(ctx context.Context, key userkey.Key) (string, error)
}

// ArchiveID 生成归档 ID："[X]<key>_<毫秒时间戳>_<随机后缀>"，重复重置不会冲突
func ArchiveID(key userkey.Key, now time.Time) string {
	return fmt.Sprintf("%s%s_%d_%s", archiveMarker, key, now.UnixMilli(), id.Short())
}

// defaultConfig 未自定义时的配置
func defaultConfig(key userkey.Key, defaultModel string) *model.UserConfig {
	return &model.UserConfig{
		UserKey: key.String(),
		Model:   defaultModel,
	}
}

// flatten 将问答对展开为发言序列
func flatten(pairs []*model.TurnPair) []model.Turn {
	turns := make([]model.Turn, 0, len(pairs)*2)
	for _, p := range pairs {
		turns = append(turns, p.Turns()...)
	}
	return turns
}
