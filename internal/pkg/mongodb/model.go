package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Model MongoDB 模型接口
// 所有需要管理索引的模型都应该实现这个接口
type Model interface {
	// Collection 返回集合名称
	Collection() string

	// EnsureIndexes 创建和维护索引
	EnsureIndexes(ctx context.Context, db *mongo.Database) error
}

// EnsureAllIndexes 为所有模型创建索引
func EnsureAllIndexes(ctx context.Context, db *mongo.Database, models ...Model) error {
	for _, m := range models {
		if err := m.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("ensure indexes for %s: %w", m.Collection(), err)
		}
	}
	return nil
}
