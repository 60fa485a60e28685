package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"chatrelay/internal/config"
	"chatrelay/internal/pkg/cache"
	"chatrelay/internal/pkg/mongodb"
)

// Repos 按配置创建的一组仓库
type Repos struct {
	History HistoryRepo
	Config  ConfigRepo
	pingFn  func(ctx context.Context) error
	closeFn func(ctx context.Context) error
}

// Ping 检查后端是否可用
func (r *Repos) Ping(ctx context.Context) error {
	if r.pingFn == nil {
		return nil
	}
	return r.pingFn(ctx)
}

// Close 释放底层连接
func (r *Repos) Close(ctx context.Context) error {
	if r.closeFn == nil {
		return nil
	}
	return r.closeFn(ctx)
}

// New 根据 store.backend 创建对话历史与用户配置仓库
func New(ctx context.Context, cfg *config.Config) (*Repos, error) {
	defaultModel := cfg.AI.Model

	switch cfg.Store.Backend {
	case "bolt", "":
		db, err := OpenBolt(cfg.Store.BoltPath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Store.BoltPath).Msg("opened bolt store")
		return &Repos{
			History: NewBoltHistoryRepo(db),
			Config:  NewBoltConfigRepo(db, defaultModel),
			pingFn: func(context.Context) error {
				return db.View(func(*bolt.Tx) error { return nil })
			},
			closeFn: func(context.Context) error { return db.Close() },
		}, nil

	case "redis":
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		return &Repos{
			History: NewRedisHistoryRepo(rc, cfg.Store.KeyPrefix),
			Config:  NewRedisConfigRepo(rc, cfg.Store.KeyPrefix, defaultModel),
			pingFn:  rc.Ping,
			closeFn: func(context.Context) error { return rc.Close() },
		}, nil

	case "mongo":
		mc, err := mongodb.New(ctx, &cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")
		if err := mongodb.EnsureIndexes(ctx, mc.Database()); err != nil {
			log.Warn().Err(err).Msg("failed to ensure indexes")
		}
		return &Repos{
			History: NewMongoHistoryRepo(mc.Database()),
			Config:  NewMongoConfigRepo(mc.Database(), defaultModel),
			pingFn:  mc.Ping,
			closeFn: mc.Close,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Store.Backend)
	}
}
