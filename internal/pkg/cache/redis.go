package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chatrelay/internal/config"
)

// ErrMiss key 不存在
var ErrMiss = errors.New("cache: key not found")

// RedisCache Redis 封装
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建 Redis 客户端并测试连接
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// Set 以 JSON 写入，expiration 为 0 表示不过期
func (c *RedisCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get 读取 JSON，key 不存在时返回 ErrMiss
func (c *RedisCache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Push 以 JSON 追加到列表尾部，返回追加后的列表长度
func (c *RedisCache) Push(ctx context.Context, key string, value any) (int64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	return c.client.RPush(ctx, key, data).Result()
}

// Tail 读取列表最后 n 个元素（按列表顺序）
func (c *RedisCache) Tail(ctx context.Context, key string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return c.client.LRange(ctx, key, -n, -1).Result()
}

// Rename 重命名 key；源 key 不存在时返回 ErrMiss
func (c *RedisCache) Rename(ctx context.Context, from, to string) error {
	err := c.client.Rename(ctx, from, to).Err()
	if err != nil && strings.Contains(err.Error(), "no such key") {
		return ErrMiss
	}
	return err
}

// Ping 检查连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client 获取原始客户端
func (c *RedisCache) Client() *redis.Client {
	return c.client
}
