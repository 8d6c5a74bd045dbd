package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"MusicManager/core/apperr"
	"MusicManager/logger"
	"MusicManager/model"
)

// 持久化数据的键
const (
	QueueKey    = "music-player-queue"
	AutoplayKey = "music-player-autoplay"
)

// Persistence 读写队列和自动播放标志
//
// 加载从不失败：缺失或损坏的值回退为空队列和关闭自动播放。
type Persistence struct {
	store Store
}

// NewPersistence 创建持久化层
func NewPersistence(store Store) *Persistence {
	return &Persistence{store: store}
}

// LoadQueue 加载队列，丢弃没有 id 或 url 的条目
func (p *Persistence) LoadQueue(ctx context.Context) []model.Track {
	data, err := p.store.Load(ctx, QueueKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("加载持久化队列失败", logger.ErrorField(err))
		}
		return []model.Track{}
	}

	tracks, err := DecodeQueue(data)
	if err != nil {
		logger.Warn("持久化队列无法解析，使用空队列", logger.ErrorField(err))
		return []model.Track{}
	}
	return tracks
}

// DecodeQueue 解析持久化的队列数据
func DecodeQueue(data []byte) ([]model.Track, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []model.Track{}, nil
	}

	var raw []model.Track
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", QueueKey, err, apperr.ErrPersistedStateCorrupt)
	}

	tracks := make([]model.Track, 0, len(raw))
	for _, t := range raw {
		if t.Valid() {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// SaveQueue 保存队列
func (p *Persistence) SaveQueue(ctx context.Context, tracks []model.Track) error {
	if tracks == nil {
		tracks = []model.Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return err
	}
	return p.store.Save(ctx, QueueKey, data)
}

// LoadAutoplay 加载自动播放标志，缺失或损坏时为 false
func (p *Persistence) LoadAutoplay(ctx context.Context) bool {
	data, err := p.store.Load(ctx, AutoplayKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("加载自动播放标志失败", logger.ErrorField(err))
		}
		return false
	}

	var on bool
	if err := json.Unmarshal(bytes.TrimSpace(data), &on); err != nil {
		logger.Warn("自动播放标志无法解析",
			logger.ErrorField(fmt.Errorf("%s: %v: %w", AutoplayKey, err, apperr.ErrPersistedStateCorrupt)))
		return false
	}
	return on
}

// SaveAutoplay 保存自动播放标志
func (p *Persistence) SaveAutoplay(ctx context.Context, on bool) error {
	data, _ := json.Marshal(on)
	return p.store.Save(ctx, AutoplayKey, data)
}
