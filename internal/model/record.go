package model

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// HistoryRecord MongoDB 中的一条历史记录
// History 为所属话题 ID：用户的第一个话题沿用用户键，之后的话题 ID 由 TopicRecord 指定；归档后改写为归档 ID
type HistoryRecord struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	History  string             `bson:"history"`
	UserKey  string             `bson:"user_key"`
	Seq      int64              `bson:"seq"`
	TurnPair `bson:",inline"`
}

// Collection 返回集合名称
func (r *HistoryRecord) Collection() string {
	return "turn_pairs"
}

// EnsureIndexes 创建和维护索引
func (r *HistoryRecord) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(r.Collection()).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "history", Value: 1}, bson.E{Key: "seq", Value: -1}, bson.E{Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_history_seq"),
		},
		{
			Keys:    bson.D{bson.E{Key: "user_key", Value: 1}, bson.E{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_user_created"),
		},
	})
	return err
}

// TopicRecord 用户当前话题指针，每个用户一条
// 重置话题时原子地替换 Topic，只有换出旧话题的那次重置负责归档它
type TopicRecord struct {
	UserKey   string    `bson:"_id"`
	Topic     string    `bson:"topic"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Collection 返回集合名称
func (t *TopicRecord) Collection() string {
	return "topics"
}

// EnsureIndexes 以 _id 为用户键，无需额外索引
func (t *TopicRecord) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return nil
}

// Collection 返回集合名称
func (c *UserConfig) Collection() string {
	return "user_configs"
}

// EnsureIndexes 创建和维护索引
func (c *UserConfig) EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(c.Collection()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "user_key", Value: 1}},
		Options: options.Index().SetName("idx_user_key").SetUnique(true),
	})
	return err
}
