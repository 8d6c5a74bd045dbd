package cache

import (
	"context"
	"time"

	"MusicManager/logger"
	"MusicManager/model"
)

// TieredFetcher 分层获取器
//
// 依次在各存储中查找原始负载，都未命中时回源，并把结果回写到未命中的存储。
// 存储失败只记录日志，按未命中处理。
type TieredFetcher struct {
	stores []PayloadStore
	origin Fetcher
}

// NewTieredFetcher 创建多级缓存获取器
func NewTieredFetcher(origin Fetcher, stores ...PayloadStore) *TieredFetcher {
	return &TieredFetcher{stores: stores, origin: origin}
}

// Fetch 实现 Fetcher
func (f *TieredFetcher) Fetch(ctx context.Context, track model.Track) ([]byte, error) {
	for i, store := range f.stores {
		data, ok, err := store.Get(ctx, track.ID)
		if err != nil {
			logger.Warn("音频存储查询失败",
				logger.String("store", store.Name()),
				logger.String("trackId", track.ID),
				logger.ErrorField(err))
			continue
		}
		if ok && len(data) > 0 {
			logger.Debug("音频存储命中",
				logger.String("store", store.Name()),
				logger.String("trackId", track.ID))
			f.writeBack(ctx, track.ID, data, f.stores[:i])
			return data, nil
		}
	}

	start := time.Now()
	data, err := f.origin(ctx, track)
	if err != nil {
		return nil, err
	}
	logger.Debug("回源获取音频",
		logger.String("trackId", track.ID),
		logger.Duration("took", time.Since(start)))

	f.writeBack(ctx, track.ID, data, f.stores)
	return data, nil
}

func (f *TieredFetcher) writeBack(ctx context.Context, trackID string, data []byte, stores []PayloadStore) {
	if ctx.Err() != nil {
		return
	}
	for _, store := range stores {
		if err := store.Put(ctx, trackID, data); err != nil {
			logger.Warn("音频存储回写失败",
				logger.String("store", store.Name()),
				logger.String("trackId", trackID),
				logger.ErrorField(err))
		}
	}
}
