// Package provider 外部媒体源接口：搜索、推荐和音源解析
package provider

import (
	"context"
	"fmt"
	"io"
	"sync"

	"MusicManager/core/apperr"
	"MusicManager/model"
)

// Provider 媒体来源统一接口
type Provider interface {
	// Search 按相关度返回曲目
	Search(ctx context.Context, query string, limit int) ([]model.Track, error)

	// Autocomplete 返回 trackID 之后的推荐，不含其本身
	Autocomplete(ctx context.Context, trackID string, limit int) ([]model.Track, error)

	// Resolve 打开 trackURL 背后的原始压缩音频，由调用方关闭，不重试
	Resolve(ctx context.Context, trackURL string) (io.ReadCloser, error)

	// Source 获取来源标识
	Source() string
}

// Manager 管理已注册的提供者，把调用路由到默认提供者
type Manager struct {
	mu            sync.RWMutex
	providers     map[string]Provider
	defaultSource string
}

// NewManager 创建管理器
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
	}
}

// Register 注册提供者，第一个注册的成为默认
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Source()] = p
	if m.defaultSource == "" {
		m.defaultSource = p.Source()
	}
}

// Get 获取 source 对应的提供者，没有时为 nil
func (m *Manager) Get(source string) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[source]
}

// Default 获取默认提供者，没有时为 nil
func (m *Manager) Default() Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.providers[m.defaultSource]
}

func (m *Manager) require() (Provider, error) {
	p := m.Default()
	if p == nil {
		return nil, fmt.Errorf("no provider registered: %w", apperr.ErrUpstreamUnavailable)
	}
	return p, nil
}

// Search 使用默认提供者搜索
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]model.Track, error) {
	p, err := m.require()
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, query, limit)
}

// Autocomplete 使用默认提供者获取推荐
func (m *Manager) Autocomplete(ctx context.Context, trackID string, limit int) ([]model.Track, error) {
	p, err := m.require()
	if err != nil {
		return nil, err
	}
	return p.Autocomplete(ctx, trackID, limit)
}

// Resolve 使用默认提供者解析音源
func (m *Manager) Resolve(ctx context.Context, trackURL string) (io.ReadCloser, error) {
	p, err := m.require()
	if err != nil {
		return nil, err
	}
	return p.Resolve(ctx, trackURL)
}

// Source 默认提供者的来源标识
func (m *Manager) Source() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultSource
}
