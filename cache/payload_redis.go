package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"MusicManager/logger"
)

const payloadKeyPrefix = "payload:"

// RedisPayloadStore 在 Redis 中按 TTL 保存原始音频负载
type RedisPayloadStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisPayloadStore 创建 Redis 音频存储，ttl 为 0 时永不过期
func NewRedisPayloadStore(client redis.Cmdable, ttl time.Duration) *RedisPayloadStore {
	return &RedisPayloadStore{client: client, ttl: ttl}
}

// PayloadKey 曲目负载的 Redis 键
func PayloadKey(trackID string) string {
	return payloadKeyPrefix + trackID
}

// Name 实现 PayloadStore
func (s *RedisPayloadStore) Name() string { return "redis" }

// Put 设置音频缓存
func (s *RedisPayloadStore) Put(ctx context.Context, trackID string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Set(ctx, PayloadKey(trackID), payload, s.ttl).Err(); err != nil {
		logger.Error("设置音频缓存失败",
			logger.String("trackId", trackID),
			logger.Int("dataSize", len(payload)),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("音频缓存设置成功",
		logger.String("trackId", trackID),
		logger.Int("dataSize", len(payload)),
		logger.Duration("expiration", s.ttl))
	return nil
}

// Get 获取音频缓存
func (s *RedisPayloadStore) Get(ctx context.Context, trackID string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, PayloadKey(trackID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Delete 删除音频缓存
func (s *RedisPayloadStore) Delete(ctx context.Context, trackID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, PayloadKey(trackID)).Err(); err != nil {
		logger.Error("删除音频缓存失败",
			logger.String("trackId", trackID),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// Info 获取每个缓存负载的剩余 TTL（秒），以曲目 ID 为键
func (s *RedisPayloadStore) Info(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info := make(map[string]int64)
	iter := s.client.Scan(ctx, 0, payloadKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := s.client.TTL(ctx, key).Result()
		if err != nil {
			continue
		}
		info[key[len(payloadKeyPrefix):]] = int64(ttl.Seconds())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return info, nil
}
