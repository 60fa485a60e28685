package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	bolt "go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/bson"

	"chatrelay/internal/config"
	"chatrelay/internal/model"
	"chatrelay/internal/pkg/cache"
	"chatrelay/internal/pkg/mongodb"
	"chatrelay/internal/pkg/userkey"
)

const testDefaultModel = "gpt-3.5-turbo"

func newPair(i int) *model.TurnPair {
	return &model.TurnPair{
		User:      model.UserTurn(model.TextContent(fmt.Sprintf("q%d", i))),
		Assistant: model.AssistantTurn(fmt.Sprintf("a%d", i)),
		CreatedAt: time.Now(),
	}
}

func texts(turns []model.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, string(t.Role)+":"+t.Text())
	}
	return out
}

// archivedCounter 读取归档 ID 下的问答组数，用于校验归档内容完整
type archivedCounter func(ctx context.Context, archiveID string) (int, error)

// runRepoSuite 各后端共用的行为约束
func runRepoSuite(t *testing.T, name string, history HistoryRepo, cfgRepo ConfigRepo, archived archivedCounter) {
	ctx := context.Background()

	Convey(name+": 用户配置", t, func() {
		key := userkey.Derive(fmt.Sprintf("cfg-%s-%d", name, time.Now().UnixNano()))

		Convey("新用户返回默认模型", func() {
			cfg, err := cfgRepo.Get(ctx, key)
			So(err, ShouldBeNil)
			So(cfg.Model, ShouldEqual, testDefaultModel)
		})

		Convey("后写覆盖前写", func() {
			So(cfgRepo.SetModel(ctx, key, "m1"), ShouldBeNil)
			cfg, err := cfgRepo.Get(ctx, key)
			So(err, ShouldBeNil)
			So(cfg.Model, ShouldEqual, "m1")

			So(cfgRepo.SetModel(ctx, key, "m2"), ShouldBeNil)
			cfg, err = cfgRepo.Get(ctx, key)
			So(err, ShouldBeNil)
			So(cfg.Model, ShouldEqual, "m2")
		})

		Convey("读取时信任已存储的值", func() {
			So(cfgRepo.SetModel(ctx, key, "whatever-was-stored"), ShouldBeNil)
			cfg, err := cfgRepo.Get(ctx, key)
			So(err, ShouldBeNil)
			So(cfg.Model, ShouldEqual, "whatever-was-stored")
		})
	})

	Convey(name+": 对话历史窗口", t, func() {
		key := userkey.Derive(fmt.Sprintf("hist-%s-%d", name, time.Now().UnixNano()))

		Convey("新用户窗口为空", func() {
			turns, err := history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(turns, ShouldBeEmpty)
		})

		Convey("追加不修改调用方的问答", func() {
			pair := newPair(1)
			So(history.Append(ctx, key, pair), ShouldBeNil)
			So(pair.ID, ShouldBeEmpty)
		})

		Convey("1 组", func() {
			So(history.Append(ctx, key, newPair(1)), ShouldBeNil)
			turns, err := history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(texts(turns), ShouldResemble, []string{"user:q1", "assistant:a1"})
		})

		Convey("2 组", func() {
			for i := 1; i <= 2; i++ {
				So(history.Append(ctx, key, newPair(i)), ShouldBeNil)
			}
			turns, err := history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(texts(turns), ShouldResemble, []string{"user:q1", "assistant:a1", "user:q2", "assistant:a2"})
		})

		Convey("5 组只返回最后 3 组且按时间正序", func() {
			for i := 1; i <= 5; i++ {
				So(history.Append(ctx, key, newPair(i)), ShouldBeNil)
			}
			turns, err := history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(texts(turns), ShouldResemble, []string{
				"user:q3", "assistant:a3",
				"user:q4", "assistant:a4",
				"user:q5", "assistant:a5",
			})
		})

		Convey("多模态内容无损往返", func() {
			pair := &model.TurnPair{
				User:      model.UserTurn(model.ImageContent("https://example.com/images/x/1.jpg")),
				Assistant: model.AssistantTurn("a cat"),
				CreatedAt: time.Now(),
			}
			So(history.Append(ctx, key, pair), ShouldBeNil)
			turns, err := history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(len(turns), ShouldEqual, 2)
			So(turns[0].Role, ShouldEqual, model.RoleUser)
			So(turns[0].Content, ShouldResemble, []model.Content{model.ImageContent("https://example.com/images/x/1.jpg")})
			So(turns[1].Text(), ShouldEqual, "a cat")
		})
	})

	Convey(name+": 新话题", t, func() {
		key := userkey.Derive(fmt.Sprintf("reset-%s-%d", name, time.Now().UnixNano()))

		Convey("没有历史时重置不报错，连续两次也不报错", func() {
			id, err := history.Archive(ctx, key)
			So(err, ShouldBeNil)
			So(id, ShouldBeEmpty)
			_, err = history.Archive(ctx, key)
			So(err, ShouldBeNil)
		})

		Convey("重置后窗口为空，之后只看到新话题", func() {
			for i := 1; i <= 4; i++ {
				So(history.Append(ctx, key, newPair(i)), ShouldBeNil)
			}
			id, err := history.Archive(ctx, key)
			So(err, ShouldBeNil)
			So(id, ShouldStartWith, "[X]"+key.String()+"_")

			turns, err := history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(turns, ShouldBeEmpty)

			So(history.Append(ctx, key, newPair(9)), ShouldBeNil)
			turns, err = history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(texts(turns), ShouldResemble, []string{"user:q9", "assistant:a9"})
		})

		Convey("重复重置得到不同的归档 ID", func() {
			So(history.Append(ctx, key, newPair(1)), ShouldBeNil)
			id1, err := history.Archive(ctx, key)
			So(err, ShouldBeNil)
			So(history.Append(ctx, key, newPair(2)), ShouldBeNil)
			id2, err := history.Archive(ctx, key)
			So(err, ShouldBeNil)
			So(id1, ShouldNotBeEmpty)
			So(id2, ShouldNotBeEmpty)
			So(id1, ShouldNotEqual, id2)
		})

		Convey("并发重置只产生一个完整归档", func() {
			for i := 0; i < 5; i++ {
				So(history.Append(ctx, key, newPair(i)), ShouldBeNil)
			}

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				ids  []string
				errs []error
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					id, err := history.Archive(ctx, key)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
					} else if id != "" {
						ids = append(ids, id)
					}
				}()
			}
			wg.Wait()
			So(errs, ShouldBeEmpty)
			So(len(ids), ShouldEqual, 1)

			n, err := archived(ctx, ids[0])
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 5)

			turns, err := history.Recent(ctx, key, 3)
			So(err, ShouldBeNil)
			So(turns, ShouldBeEmpty)
		})
	})
}

func openTestBolt(t *testing.T) *bolt.DB {
	db, err := OpenBolt(filepath.Join(t.TempDir(), "store", "chatrelay.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBoltRepos(t *testing.T) {
	db := openTestBolt(t)
	runRepoSuite(t, "bolt", NewBoltHistoryRepo(db), NewBoltConfigRepo(db, testDefaultModel),
		func(ctx context.Context, archiveID string) (int, error) {
			var n int
			err := db.View(func(tx *bolt.Tx) error {
				b := tx.Bucket(bucketHistories).Bucket([]byte(archiveID))
				if b == nil {
					return fmt.Errorf("archive bucket %s missing", archiveID)
				}
				n = b.Stats().KeyN
				return nil
			})
			return n, err
		})
}

func TestBoltHistoryRepo_Concurrency(t *testing.T) {
	db := openTestBolt(t)
	repo := NewBoltHistoryRepo(db)
	ctx := context.Background()

	Convey("并发追加全部落盘", t, func() {
		key := userkey.Derive("concurrent-append")
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = repo.Append(ctx, key, newPair(i))
			}(i)
		}
		wg.Wait()

		turns, err := repo.Recent(ctx, key, 100)
		So(err, ShouldBeNil)
		So(len(turns), ShouldEqual, 40)
	})
}

func TestRedisRepos(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rc, err := cache.NewRedisCache(&config.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer rc.Close()

	prefix := fmt.Sprintf("chatrelay_test_%d:", time.Now().UnixNano())
	repo := NewRedisHistoryRepo(rc, prefix)
	runRepoSuite(t, "redis", repo, NewRedisConfigRepo(rc, prefix, testDefaultModel),
		func(ctx context.Context, archiveID string) (int, error) {
			n, err := rc.Client().LLen(ctx, repo.key(archiveID)).Result()
			return int(n), err
		})
}

func TestMongoRepos(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx := context.Background()
	mc, err := mongodb.New(ctx, &config.MongoConfig{URI: uri, Database: "chatrelay_test"})
	if err != nil {
		t.Fatalf("connect mongodb: %v", err)
	}
	defer func() {
		_ = mc.Database().Drop(ctx)
		_ = mc.Close(ctx)
	}()
	if err := mongodb.EnsureIndexes(ctx, mc.Database()); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	var rec model.HistoryRecord
	turnPairs := mc.Database().Collection(rec.Collection())
	runRepoSuite(t, "mongo", NewMongoHistoryRepo(mc.Database()), NewMongoConfigRepo(mc.Database(), testDefaultModel),
		func(ctx context.Context, archiveID string) (int, error) {
			n, err := turnPairs.CountDocuments(ctx, bson.M{"history": archiveID})
			return int(n), err
		})
}

func TestNew_UnsupportedBackend(t *testing.T) {
	Convey("未知后端返回 ErrUnsupportedBackend", t, func() {
		_, err := New(context.Background(), &config.Config{Store: config.StoreConfig{Backend: "sqlite"}})
		So(err, ShouldNotBeNil)
		So(strings.Contains(err.Error(), ErrUnsupportedBackend.Error()), ShouldBeTrue)
	})
}

func TestNew_Bolt(t *testing.T) {
	Convey("bolt 后端可直接创建并关闭", t, func() {
		cfg := &config.Config{
			AI:    config.AIConfig{Model: testDefaultModel},
			Store: config.StoreConfig{Backend: "bolt", BoltPath: filepath.Join(t.TempDir(), "chatrelay.db")},
		}
		repos, err := New(context.Background(), cfg)
		So(err, ShouldBeNil)
		c, err := repos.Config.Get(context.Background(), userkey.Derive("U1"))
		So(err, ShouldBeNil)
		So(c.Model, ShouldEqual, testDefaultModel)
		So(repos.Ping(context.Background()), ShouldBeNil)
		So(repos.Close(context.Background()), ShouldBeNil)
		So(repos.Ping(context.Background()), ShouldNotBeNil)
	})
}
