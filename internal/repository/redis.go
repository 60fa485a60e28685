package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/model"
	"chatrelay/internal/pkg/cache"
	"chatrelay/internal/pkg/userkey"
)

// RedisHistoryRepo 基于 Redis 列表的对话历史仓库
// <prefix>histories:<key> 为当前话题，RPUSH 追加、LRANGE -N -1 读取窗口、RENAME 归档
type RedisHistoryRepo struct {
	cache  *cache.RedisCache
	prefix string
}

// NewRedisHistoryRepo 创建 Redis 对话历史仓库
func NewRedisHistoryRepo(c *cache.RedisCache, prefix string) *RedisHistoryRepo {
	return &RedisHistoryRepo{cache: c, prefix: prefix}
}

func (r *RedisHistoryRepo) key(name string) string {
	return r.prefix + "histories:" + name
}

// Append 追加问答，缺省 ID 只写入存储副本
func (r *RedisHistoryRepo) Append(ctx context.Context, key userkey.Key, pair *model.TurnPair) error {
	rec := *pair
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	if _, err := r.cache.Push(ctx, r.key(key.String()), &rec); err != nil {
		return fmt.Errorf("append turn pair: %w", err)
	}
	return nil
}

// Recent 读取最近 limit 组问答
func (r *RedisHistoryRepo) Recent(ctx context.Context, key userkey.Key, limit int) ([]model.Turn, error) {
	items, err := r.cache.Tail(ctx, r.key(key.String()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("read recent history: %w", err)
	}
	pairs := make([]*model.TurnPair, 0, len(items))
	for _, item := range items {
		var p model.TurnPair
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			return nil, fmt.Errorf("decode turn pair: %w", err)
		}
		pairs = append(pairs, &p)
	}
	return flatten(pairs), nil
}

// Archive 通过 RENAME 原子地把当前话题移到归档 key
func (r *RedisHistoryRepo) Archive(ctx context.Context, key userkey.Key) (string, error) {
	id := ArchiveID(key, time.Now())
	err := r.cache.Rename(ctx, r.key(key.String()), r.key(id))
	if errors.Is(err, cache.ErrMiss) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("archive history: %w", err)
	}
	return id, nil
}

// RedisConfigRepo 基于 Redis 的用户配置仓库
type RedisConfigRepo struct {
	cache        *cache.RedisCache
	prefix       string
	defaultModel string
}

// NewRedisConfigRepo 创建 Redis 用户配置仓库
func NewRedisConfigRepo(c *cache.RedisCache, prefix, defaultModel string) *RedisConfigRepo {
	return &RedisConfigRepo{cache: c, prefix: prefix, defaultModel: defaultModel}
}

func (r *RedisConfigRepo) key(key userkey.Key) string {
	return r.prefix + "configs:" + key.String()
}

// Get 获取用户配置
func (r *RedisConfigRepo) Get(ctx context.Context, key userkey.Key) (*model.UserConfig, error) {
	var cfg model.UserConfig
	err := r.cache.Get(ctx, r.key(key), &cfg)
	if errors.Is(err, cache.ErrMiss) {
		return defaultConfig(key, r.defaultModel), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user config: %w", err)
	}
	return &cfg, nil
}

// SetModel 覆盖写入模型
func (r *RedisConfigRepo) SetModel(ctx context.Context, key userkey.Key, modelName string) error {
	cfg := &model.UserConfig{
		UserKey:   key.String(),
		Model:     modelName,
		UpdatedAt: time.Now(),
	}
	if err := r.cache.Set(ctx, r.key(key), cfg, 0); err != nil {
		return fmt.Errorf("write user config: %w", err)
	}
	return nil
}
