package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vtakaj/ShiftAgent/config"
	"github.com/vtakaj/ShiftAgent/internal/model"
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

const redisJobPrefix = "shiftagent:job:"

// RedisStore Redis 作业存储
// 每个作业一个 key（shiftagent:job:<id>），值为与其他后端相同的 JSON 快照。
type RedisStore struct {
	rdb *goredis.Client
}

// NewRedisStore 创建 Redis 连接并执行 Ping 健康检查
func NewRedisStore(cfg *config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 存储就绪", zap.String("addr", cfg.Addr))
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化作业失败: %w", err)
	}
	if err := s.rdb.Set(ctx, redisJobPrefix+job.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("写入 Redis 失败: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, redisJobPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
		}
		return nil, fmt.Errorf("读取 Redis 失败: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("反序列化作业失败: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*model.Job, error) {
	var out []*model.Job
	iter := s.rdb.Scan(ctx, 0, redisJobPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(redisJobPrefix):]
		job, err := s.Get(ctx, id)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				continue // SCAN 与 DEL 竞争时跳过
			}
			return nil, err
		}
		out = append(out, job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("遍历 Redis 失败: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, redisJobPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("删除 Redis key 失败: %w", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.KindNotFound, "not_found.job", "作业不存在: %s", id)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

