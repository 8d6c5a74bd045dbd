package player

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"MusicManager/core/audio"
)

// Handle 已安装媒体负载的句柄，可撤销，只属于一个播放会话
type Handle struct {
	ID          string    `json:"id"`
	TrackID     string    `json:"trackId"`
	Size        int       `json:"size"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Valid 句柄是否有效
func (h Handle) Valid() bool { return h.ID != "" }

type media struct {
	handle  Handle
	payload []byte
}

// MediaRegistry 保存有效句柄背后的负载，统计每次注册和释放以便发现泄漏
type MediaRegistry struct {
	mu    sync.RWMutex
	items map[string]*media

	installed atomic.Int64
	released  atomic.Int64
	peak      atomic.Int64
}

// NewMediaRegistry 创建媒体句柄注册表
func NewMediaRegistry() *MediaRegistry {
	return &MediaRegistry{items: make(map[string]*media)}
}

// Swap 以新句柄注册负载并在同一步撤销旧句柄，每个会话最多只有一个有效句柄
func (r *MediaRegistry) Swap(old Handle, trackID string, payload []byte) Handle {
	h := Handle{
		ID:          uuid.NewString(),
		TrackID:     trackID,
		Size:        len(payload),
		ContentType: audio.SniffContentType(payload),
		CreatedAt:   time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[h.ID] = &media{handle: h, payload: payload}
	r.installed.Add(1)
	if old.Valid() {
		r.revokeLocked(old.ID)
	}
	if n := int64(len(r.items)); n > r.peak.Load() {
		r.peak.Store(n)
	}
	return h
}

// Open 获取 id 对应的负载
func (r *MediaRegistry) Open(id string) (Handle, []byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id]
	if !ok {
		return Handle{}, nil, false
	}
	return m.handle, m.payload, true
}

// Revoke 释放 id，id 无效时返回 false
func (r *MediaRegistry) Revoke(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeLocked(id)
}

func (r *MediaRegistry) revokeLocked(id string) bool {
	if _, ok := r.items[id]; !ok {
		return false
	}
	delete(r.items, id)
	r.released.Add(1)
	return true
}

// Live 当前注册的句柄数
func (r *MediaRegistry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Installed 累计注册的句柄数
func (r *MediaRegistry) Installed() int64 { return r.installed.Load() }

// Released 累计撤销的句柄数
func (r *MediaRegistry) Released() int64 { return r.released.Load() }

// PeakLive 同时有效句柄数的峰值
func (r *MediaRegistry) PeakLive() int64 { return r.peak.Load() }
