package cmd

import (
	"context"
	"fmt"

	"MusicManager/cache"
	"MusicManager/config"
	"MusicManager/core/audio"
	"MusicManager/core/filter"
	"MusicManager/core/player"
	"MusicManager/core/provider"
	"MusicManager/db"
	"MusicManager/logger"
	"MusicManager/model"
	"MusicManager/state"
	"MusicManager/storage"
)

// loadConfig 读取环境变量并初始化日志
func loadConfig() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	return cfg
}

// newProviders 注册 yt-dlp 提供者
func newProviders(cfg *config.Config) *provider.Manager {
	providers := provider.NewManager()
	providers.Register(provider.NewYTDLP(cfg.YouTubeProxy))
	return providers
}

func newPipeline(cfg *config.Config, resolver audio.Resolver) (*audio.Pipeline, *audio.FFmpegTranscoder) {
	transcoder := audio.NewFFmpegTranscoder(cfg.FFmpegPath, cfg.AudioBitrate, cfg.SampleRate)
	return audio.NewPipeline(resolver, transcoder, cfg.FilterFastPath, cfg.SampleRate), transcoder
}

// payloadFetcher 无滤镜请求经过负载存储，有滤镜请求直接交给流水线
type payloadFetcher struct {
	tiered   *cache.TieredFetcher
	pipeline *audio.Pipeline
}

func (f payloadFetcher) Fetch(ctx context.Context, track model.Track, sel filter.Selection) ([]byte, error) {
	if sel.Empty() {
		return f.tiered.Fetch(ctx, track)
	}
	return f.pipeline.Fetch(ctx, track, sel)
}

// backends 可选的基础设施及其释放方法
type backends struct {
	stores  []cache.PayloadStore
	persist player.Persister
	closers []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("关闭后端失败", logger.ErrorField(err))
		}
	}
}

// openBackends 按配置连接 Redis、MinIO 和 MySQL，Redis 排在 MinIO 之前以优先查询更快的一层
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	if cfg.RedisEnabled || cfg.StateBackend == "redis" {
		if err := cache.ConnectRedis(cfg); err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, cache.CloseRedis)
		logger.Info("Redis 连接成功",
			logger.String("addr", cfg.RedisHost+":"+cfg.RedisPort))
		if cfg.RedisEnabled {
			b.stores = append(b.stores, cache.NewRedisPayloadStore(cache.RedisClient, cfg.PayloadCacheTTL))
		}
	}

	if cfg.MinioEnabled {
		m, err := storage.InitMinio(ctx, cfg)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
		}
		b.stores = append(b.stores, storage.NewMinioPayloadStore(m))
	}

	var store state.Store
	switch cfg.StateBackend {
	case "redis":
		store = state.NewRedisStore(cache.RedisClient)
	case "mysql":
		if err := db.ConnectGormDB(cfg); err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, db.CloseGormDB)
		gs, err := state.NewGormStore(db.GormDB)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("failed to migrate state table: %w", err)
		}
		store = gs
	case "memory":
		store = state.NewMemoryStore()
	default:
		store = state.NewFileStore(cfg.StateFile)
	}
	b.persist = state.NewPersistence(store)
	logger.Info("状态后端就绪", logger.String("backend", cfg.StateBackend))
	return b, nil
}
