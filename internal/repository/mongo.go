package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatrelay/internal/model"
	"chatrelay/internal/pkg/id"
	"chatrelay/internal/pkg/userkey"
)

// MongoHistoryRepo 基于 MongoDB 的对话历史仓库
// 当前话题由 topics 集合中的指针决定，重置时先原子替换指针再归档旧话题，
// 并发重置各自换出不同的话题，同一段历史只会被一次重置改写
type MongoHistoryRepo struct {
	collection *mongo.Collection
	topics     *mongo.Collection
}

// NewMongoHistoryRepo 创建 MongoDB 对话历史仓库
func NewMongoHistoryRepo(db *mongo.Database) *MongoHistoryRepo {
	var (
		rec   model.HistoryRecord
		topic model.TopicRecord
	)
	return &MongoHistoryRepo{
		collection: db.Collection(rec.Collection()),
		topics:     db.Collection(topic.Collection()),
	}
}

// activeTopic 返回当前话题 ID，从未重置过的用户沿用用户键
func (r *MongoHistoryRepo) activeTopic(ctx context.Context, key userkey.Key) (string, error) {
	var t model.TopicRecord
	err := r.topics.FindOne(ctx, bson.M{"_id": key.String()}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return key.String(), nil
	}
	if err != nil {
		return "", fmt.Errorf("read active topic: %w", err)
	}
	return t.Topic, nil
}

// swapTopic 原子地把当前话题指针换成 next，返回被换出的话题 ID
func (r *MongoHistoryRepo) swapTopic(ctx context.Context, key userkey.Key, next string) (string, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)
	update := bson.M{"$set": bson.M{"topic": next, "updated_at": time.Now()}}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var prev model.TopicRecord
		err = r.topics.FindOneAndUpdate(ctx, bson.M{"_id": key.String()}, update, opts).Decode(&prev)
		switch {
		case err == nil:
			return prev.Topic, nil
		case errors.Is(err, mongo.ErrNoDocuments):
			// 本次 upsert 创建了指针，换出的是初始话题
			return key.String(), nil
		case mongo.IsDuplicateKeyError(err):
			// 并发 upsert 撞上唯一 _id，指针已存在，重试一次即可走更新分支
			continue
		}
		break
	}
	return "", fmt.Errorf("swap active topic: %w", err)
}

// Append 追加问答到当前话题，缺省字段只写入存储副本
func (r *MongoHistoryRepo) Append(ctx context.Context, key userkey.Key, pair *model.TurnPair) error {
	topic, err := r.activeTopic(ctx, key)
	if err != nil {
		return err
	}

	now := time.Now()
	rec := &model.HistoryRecord{
		History:  topic,
		UserKey:  key.String(),
		Seq:      now.UnixNano(),
		TurnPair: *pair,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.TurnPair.ID == "" {
		rec.TurnPair.ID = fmt.Sprintf("%d", now.UnixNano())
	}
	if _, err := r.collection.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("append turn pair: %w", err)
	}
	return nil
}

// Recent 按 (seq, _id) 倒序取 limit 条，依赖 idx_history_seq 索引
func (r *MongoHistoryRepo) Recent(ctx context.Context, key userkey.Key, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return []model.Turn{}, nil
	}
	topic, err := r.activeTopic(ctx, key)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{bson.E{Key: "seq", Value: -1}, bson.E{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"history": topic}, opts)
	if err != nil {
		return nil, fmt.Errorf("read recent history: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []*model.HistoryRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode recent history: %w", err)
	}

	pairs := make([]*model.TurnPair, len(recs))
	for i, rec := range recs {
		pairs[len(recs)-1-i] = &rec.TurnPair
	}
	return flatten(pairs), nil
}

// Archive 换出当前话题后，把它的全部记录改写到归档 ID 下
// 换出的话题不再被 Append/Recent 读到，因此改写期间不会与其他重置交叉
func (r *MongoHistoryRepo) Archive(ctx context.Context, key userkey.Key) (string, error) {
	prev, err := r.swapTopic(ctx, key, fmt.Sprintf("%s_%s", key, id.New()))
	if err != nil {
		return "", fmt.Errorf("archive history: %w", err)
	}

	archiveID := ArchiveID(key, time.Now())
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"history": prev},
		bson.M{"$set": bson.M{"history": archiveID}},
	)
	if err != nil {
		return "", fmt.Errorf("archive history: %w", err)
	}
	if res.ModifiedCount == 0 {
		return "", nil
	}
	return archiveID, nil
}

// MongoConfigRepo 基于 MongoDB 的用户配置仓库
type MongoConfigRepo struct {
	collection   *mongo.Collection
	defaultModel string
}

// NewMongoConfigRepo 创建 MongoDB 用户配置仓库
func NewMongoConfigRepo(db *mongo.Database, defaultModel string) *MongoConfigRepo {
	var cfg model.UserConfig
	return &MongoConfigRepo{collection: db.Collection(cfg.Collection()), defaultModel: defaultModel}
}

// Get 获取用户配置
func (r *MongoConfigRepo) Get(ctx context.Context, key userkey.Key) (*model.UserConfig, error) {
	var cfg model.UserConfig
	err := r.collection.FindOne(ctx, bson.M{"user_key": key.String()}).Decode(&cfg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return defaultConfig(key, r.defaultModel), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user config: %w", err)
	}
	return &cfg, nil
}

// SetModel 覆盖写入模型（upsert）
func (r *MongoConfigRepo) SetModel(ctx context.Context, key userkey.Key, modelName string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_key": key.String()},
		bson.M{"$set": bson.M{"model": modelName, "updated_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("write user config: %w", err)
	}
	return nil
}
