package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const resultKeyPrefix = "mattekit:result:"

// ResultCache 处理结果缓存，处理过程是确定性的，相同输入可直接复用结果
type ResultCache interface {
	GetResult(ctx context.Context, key string) (*ProcessResult, error)
	SetResult(ctx context.Context, key string, result *ProcessResult) error
}

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetResult 从缓存获取处理结果，未命中时返回 nil, nil
func (s *RedisService) GetResult(ctx context.Context, key string) (*ProcessResult, error) {
	data, err := s.client.Get(ctx, resultKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var result ProcessResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal cached result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetResult 写入处理结果
func (s *RedisService) SetResult(ctx context.Context, key string, result *ProcessResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, resultKeyPrefix+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
