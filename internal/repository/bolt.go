package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"chatrelay/internal/model"
	"chatrelay/internal/pkg/userkey"
)

var (
	bucketHistories = []byte("histories")
	bucketConfigs   = []byte("configs")
)

// OpenBolt 打开（必要时创建）bolt 数据文件并初始化顶层 bucket
func OpenBolt(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketHistories, bucketConfigs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return db, nil
}

// BoltHistoryRepo 基于 bolt 的对话历史仓库
// histories/<key> 为当前话题，记录以 NextSequence 的大端编码为键，天然按写入顺序排列
type BoltHistoryRepo struct {
	db *bolt.DB
}

// NewBoltHistoryRepo 创建 bolt 对话历史仓库
func NewBoltHistoryRepo(db *bolt.DB) *BoltHistoryRepo {
	return &BoltHistoryRepo{db: db}
}

// Append 追加问答，缺省 ID 只写入存储副本，不修改调用方的 pair
func (r *BoltHistoryRepo) Append(ctx context.Context, key userkey.Key, pair *model.TurnPair) error {
	rec := *pair
	err := r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketHistories).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("%d", seq)
		}
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return fmt.Errorf("append turn pair: %w", err)
	}
	return nil
}

// Recent 从尾部反向读取 limit 条，复杂度只与 limit 相关
func (r *BoltHistoryRepo) Recent(ctx context.Context, key userkey.Key, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return []model.Turn{}, nil
	}

	pairs := make([]*model.TurnPair, 0, limit)
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistories).Bucket([]byte(key))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(pairs) < limit; k, v = c.Prev() {
			var p model.TurnPair
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode turn pair %x: %w", k, err)
			}
			pairs = append(pairs, &p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read recent history: %w", err)
	}

	// 反向读取，翻转为时间正序
	for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}
	return flatten(pairs), nil
}

// Archive 在同一个写事务中复制当前话题到归档 bucket 并删除原 bucket
// bolt 写事务串行执行，并发重置时后到者看不到当前话题，直接返回
func (r *BoltHistoryRepo) Archive(ctx context.Context, key userkey.Key) (string, error) {
	var archiveID string
	err := r.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketHistories)
		src := root.Bucket([]byte(key))
		if src == nil {
			return nil
		}

		id := ArchiveID(key, time.Now())
		dst, err := root.CreateBucket([]byte(id))
		if err != nil {
			return err
		}
		if err := dst.SetSequence(src.Sequence()); err != nil {
			return err
		}
		if err := src.ForEach(func(k, v []byte) error {
			return dst.Put(k, v)
		}); err != nil {
			return err
		}
		if err := root.DeleteBucket([]byte(key)); err != nil {
			return err
		}
		archiveID = id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("archive history: %w", err)
	}
	return archiveID, nil
}

// BoltConfigRepo 基于 bolt 的用户配置仓库
type BoltConfigRepo struct {
	db           *bolt.DB
	defaultModel string
}

// NewBoltConfigRepo 创建 bolt 用户配置仓库
func NewBoltConfigRepo(db *bolt.DB, defaultModel string) *BoltConfigRepo {
	return &BoltConfigRepo{db: db, defaultModel: defaultModel}
}

// Get 获取用户配置
func (r *BoltConfigRepo) Get(ctx context.Context, key userkey.Key) (*model.UserConfig, error) {
	var cfg *model.UserConfig
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConfigs).Get([]byte(key))
		if data == nil {
			return nil
		}
		cfg = &model.UserConfig{}
		return json.Unmarshal(data, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("read user config: %w", err)
	}
	if cfg == nil {
		return defaultConfig(key, r.defaultModel), nil
	}
	return cfg, nil
}

// SetModel 覆盖写入模型
func (r *BoltConfigRepo) SetModel(ctx context.Context, key userkey.Key, modelName string) error {
	data, err := json.Marshal(&model.UserConfig{
		UserKey:   key.String(),
		Model:     modelName,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	err = r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfigs).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("write user config: %w", err)
	}
	return nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
