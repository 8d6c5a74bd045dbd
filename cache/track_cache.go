package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"MusicManager/logger"
	"MusicManager/model"
)

// ErrNotCached Await 等待的 id 不在缓存中
var ErrNotCached = errors.New("track not cached")

// Fetcher 获取曲目的原始负载
type Fetcher func(ctx context.Context, track model.Track) ([]byte, error)

// Status 缓存条目状态
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

type entry struct {
	track  model.Track
	cancel context.CancelFunc
	done   chan struct{}

	// 在关闭 done 之前设置一次
	payload []byte
	err     error
}

// TrackCache 队列曲目的原始负载缓存
//
// 键集合通过 Reconcile 跟随队列：离开队列的 id 被淘汰并取消其获取，
// 进入队列的 id 恰好获取一次。失败的条目保留到 id 离开队列，不会重试。
type TrackCache struct {
	fetch   Fetcher
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

// NewTrackCache 创建预取缓存，timeout 限制单次获取时长，0 表示不限
func NewTrackCache(fetch Fetcher, timeout time.Duration) *TrackCache {
	return &TrackCache{
		fetch:   fetch,
		timeout: timeout,
		entries: make(map[string]*entry),
	}
}

// Reconcile 使缓存的 id 集合等于 tracks 的 id 集合，返回新增和移除的 id
//
// 对相同的 tracks 重复调用不做任何事。
func (c *TrackCache) Reconcile(tracks []model.Track) (added, removed []string) {
	want := make(map[string]model.Track, len(tracks))
	order := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if !t.Valid() {
			continue
		}
		if _, dup := want[t.ID]; dup {
			continue
		}
		want[t.ID] = t
		order = append(order, t.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil
	}

	removed, added = lo.Difference(lo.Keys(c.entries), order)
	sort.Strings(removed)

	for _, id := range removed {
		e := c.entries[id]
		delete(c.entries, id)
		e.cancel()
	}

	for _, id := range added {
		c.start(want[id])
	}

	if len(added) > 0 || len(removed) > 0 {
		logger.Debug("预取缓存已同步队列",
			logger.Strings("added", added),
			logger.Strings("removed", removed),
			logger.Int("size", len(c.entries)))
	}
	return added, removed
}

// start 启动曲目获取，调用方持有 c.mu
func (c *TrackCache) start(track model.Track) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	e := &entry{track: track, cancel: cancel, done: make(chan struct{})}
	c.entries[track.ID] = e

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		payload, err := c.fetch(ctx, track)

		c.mu.Lock()
		current := c.entries[track.ID] == e
		c.mu.Unlock()

		if !current {
			// 获取期间被淘汰（可能又被重新加入）
			logger.Debug("丢弃过期的预取结果", logger.String("trackId", track.ID))
			e.err = context.Canceled
			close(e.done)
			return
		}

		if err == nil && len(payload) == 0 {
			err = errors.New("empty payload")
		}
		if err != nil {
			logger.Warn("预取失败",
				logger.String("trackId", track.ID),
				logger.String("title", track.Title),
				logger.ErrorField(err))
			e.err = err
		} else {
			e.payload = payload
		}
		close(e.done)
	}()
}

// Get 获取已成功完成的负载
func (c *TrackCache) Get(id string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		return e.payload, e.err == nil
	default:
		return nil, false
	}
}

// Await 等待 id 的条目完成，未缓存返回 ErrNotCached，获取失败返回获取错误
func (c *TrackCache) Await(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return nil, ErrNotCached
	}
	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return e.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status 获取条目状态
func (c *TrackCache) Status(id string) (Status, bool) {
	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	select {
	case <-e.done:
		if e.err != nil {
			return StatusFailed, true
		}
		return StatusReady, true
	default:
		return StatusPending, true
	}
}

// Len 条目数量，含进行中的
func (c *TrackCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// IDs 获取排序后的缓存 id
func (c *TrackCache) IDs() []string {
	c.mu.Lock()
	ids := lo.Keys(c.entries)
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Close 取消所有获取，清空条目并等待获取协程退出
func (c *TrackCache) Close() {
	c.mu.Lock()
	c.closed = true
	for id, e := range c.entries {
		e.cancel()
		delete(c.entries, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
