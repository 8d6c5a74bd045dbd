package cache

import (
	"context"
	"fmt"
	"time"

	"MusicManager/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient 是全局Redis客户端
var RedisClient *redis.Client

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// TestRedis 测试 Redis 读写一个负载大小的值
func TestRedis(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	const key = "musicmanager:ping"
	want := make([]byte, 64<<10)
	for i := range want {
		want[i] = byte(i)
	}

	if err := RedisClient.Set(ctx, key, want, time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}
	defer RedisClient.Del(ctx, key)

	got, err := RedisClient.Get(ctx, key).Bytes()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if len(got) != len(want) {
		return fmt.Errorf("unexpected value size from Redis: got %d, want %d", len(got), len(want))
	}
	return nil
}
