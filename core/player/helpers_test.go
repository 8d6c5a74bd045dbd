package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MusicManager/core/filter"
	"MusicManager/model"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func track(id string) model.Track {
	return model.Track{
		ID:       id,
		URL:      "https://www.youtube.com/watch?v=" + id,
		Title:    "Track " + id,
		Duration: 240,
	}
}

type fetchCall struct {
	id    string
	graph string
}

// fakeFetcher 返回 "audio:<id>:<graph>"，标记为失败的 id 除外
// before 在每次获取开始时执行
type fakeFetcher struct {
	mu     sync.Mutex
	calls  []fetchCall
	fail   map[string]bool
	before func(track model.Track)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fail: map[string]bool{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, t model.Track, sel filter.Selection) ([]byte, error) {
	graph := filter.Graph(filter.Compile(sel))
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{id: t.ID, graph: graph})
	before := f.before
	failing := f.fail[t.ID]
	f.mu.Unlock()

	if before != nil {
		before(t)
	}
	if failing {
		return nil, errors.New("upstream refused " + t.ID)
	}
	return []byte(fmt.Sprintf("audio:%s:%s", t.ID, graph)), nil
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

type fakeProvider struct {
	mu          sync.Mutex
	results     []model.Track
	suggestions []model.Track
	suggestErr  error
	suggestFor  []string
}

func (p *fakeProvider) Search(_ context.Context, query string, limit int) ([]model.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Track(nil), p.results...), nil
}

func (p *fakeProvider) Autocomplete(_ context.Context, trackID string, limit int) ([]model.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suggestFor = append(p.suggestFor, trackID)
	if p.suggestErr != nil {
		return nil, p.suggestErr
	}
	return append([]model.Track(nil), p.suggestions...), nil
}

// fakeCache 保存就绪负载并记录每次同步
type fakeCache struct {
	mu         sync.Mutex
	payloads   map[string][]byte
	reconciled [][]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{payloads: map[string][]byte{}}
}

func (c *fakeCache) Get(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.payloads[id]
	return p, ok
}

func (c *fakeCache) Await(_ context.Context, id string) ([]byte, error) {
	if p, ok := c.Get(id); ok {
		return p, nil
	}
	return nil, errors.New("not cached")
}

func (c *fakeCache) Reconcile(tracks []model.Track) (added, removed []string) {
	ids := make([]string, len(tracks))
	keep := map[string]bool{}
	for i, t := range tracks {
		ids[i] = t.ID
		keep[t.ID] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciled = append(c.reconciled, ids)
	for id := range c.payloads {
		if !keep[id] {
			delete(c.payloads, id)
		}
	}
	for id := range keep {
		if _, ok := c.payloads[id]; !ok {
			c.payloads[id] = []byte("cached:" + id)
		}
	}
	return nil, nil
}

type memPersister struct {
	mu       sync.Mutex
	queue    []model.Track
	autoplay bool
	saves    int
}

func (p *memPersister) LoadQueue(context.Context) []model.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Track(nil), p.queue...)
}

func (p *memPersister) SaveQueue(_ context.Context, tracks []model.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append([]model.Track(nil), tracks...)
	p.saves++
	return nil
}

func (p *memPersister) LoadAutoplay(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

func (p *memPersister) SaveAutoplay(_ context.Context, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoplay = on
	return nil
}

type harness struct {
	clock    *ManualClock
	fetcher  *fakeFetcher
	provider *fakeProvider
	cache    *fakeCache
	persist  *memPersister
	session  *Session
}

func newHarness() *harness {
	h := &harness{
		clock:    NewManualClock(epoch),
		fetcher:  newFakeFetcher(),
		provider: &fakeProvider{},
		cache:    newFakeCache(),
		persist:  &memPersister{},
	}
	h.session = h.open()
	return h
}

func (h *harness) open() *Session {
	return NewSession(context.Background(), Options{
		Provider:       h.provider,
		Fetcher:        h.fetcher,
		Cache:          h.cache,
		Persister:      h.persist,
		Clock:          h.clock,
		NoticeDuration: 2500 * time.Millisecond,
	})
}

func ids(tracks []model.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}
