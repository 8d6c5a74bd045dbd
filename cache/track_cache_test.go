package cache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MusicManager/model"
)

func tr(id string) model.Track {
	return model.Track{ID: id, URL: "https://www.youtube.com/watch?v=" + id, Title: id}
}

func tracks(ids ...string) []model.Track {
	out := make([]model.Track, len(ids))
	for i, id := range ids {
		out[i] = tr(id)
	}
	return out
}

type call struct {
	id    string
	ctx   context.Context
	reply chan []byte
}

func blockingFetcher() (Fetcher, chan call) {
	calls := make(chan call, 16)
	return func(ctx context.Context, t model.Track) ([]byte, error) {
		c := call{id: t.ID, ctx: ctx, reply: make(chan []byte)}
		calls <- c
		// 忽略 ctx，模拟迟到的结果
		return <-c.reply, nil
	}, calls
}

func recv(t *testing.T, calls chan call) call {
	t.Helper()
	select {
	case c := <-calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not started")
		return call{}
	}
}

func countingFetcher(fail bool) (Fetcher, *int32) {
	var n int32
	return func(_ context.Context, t model.Track) ([]byte, error) {
		atomic.AddInt32(&n, 1)
		if fail {
			return nil, errors.New("upstream down")
		}
		return []byte("audio-" + t.ID), nil
	}, &n
}

func await(t *testing.T, c *TrackCache, id string) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Await(ctx, id)
}

func TestReconcileSymmetricDifference(t *testing.T) {
	fetch, n := countingFetcher(false)
	c := NewTrackCache(fetch, 0)
	defer c.Close()

	added, removed := c.Reconcile(tracks("a", "b", "c"))
	if !reflect.DeepEqual(added, []string{"a", "b", "c"}) || len(removed) != 0 {
		t.Fatalf("first reconcile added=%v removed=%v", added, removed)
	}

	added, removed = c.Reconcile(tracks("b", "c", "d"))
	if !reflect.DeepEqual(added, []string{"d"}) || !reflect.DeepEqual(removed, []string{"a"}) {
		t.Fatalf("second reconcile added=%v removed=%v", added, removed)
	}
	if !reflect.DeepEqual(c.IDs(), []string{"b", "c", "d"}) || c.Len() != 3 {
		t.Fatalf("cache ids = %v", c.IDs())
	}

	for _, id := range c.IDs() {
		data, err := await(t, c, id)
		if err != nil || string(data) != "audio-"+id {
			t.Errorf("Await(%s) = %q, %v", id, data, err)
		}
	}
	if got := atomic.LoadInt32(n); got != 4 {
		t.Errorf("fetches = %d, want 4", got)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	fetch, n := countingFetcher(false)
	c := NewTrackCache(fetch, 0)
	defer c.Close()

	q := tracks("a", "b", "a")
	c.Reconcile(q)
	added, removed := c.Reconcile(q)
	if len(added) != 0 || len(removed) != 0 {
		t.Fatalf("repeat reconcile changed the cache: +%v -%v", added, removed)
	}
	await(t, c, "a")
	await(t, c, "b")
	if got := atomic.LoadInt32(n); got != 2 {
		t.Errorf("fetches = %d, want exactly one per id", got)
	}
}

func TestReconcileConcurrent(t *testing.T) {
	fetch, n := countingFetcher(false)
	c := NewTrackCache(fetch, 0)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Reconcile(tracks("a", "b", "c"))
		}()
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := await(t, c, id); err != nil {
			t.Fatalf("Await(%s): %v", id, err)
		}
	}
	if got := atomic.LoadInt32(n); got != 3 {
		t.Errorf("fetches = %d, want 3", got)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	fetch, calls := blockingFetcher()
	c := NewTrackCache(fetch, 0)
	defer c.Close()

	c.Reconcile(tracks("a"))
	first := recv(t, calls)

	c.Reconcile(nil)
	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("evicted fetch was not cancelled")
	}
	if c.Len() != 0 {
		t.Fatalf("evicted id still cached")
	}

	c.Reconcile(tracks("a"))
	second := recv(t, calls)

	first.reply <- []byte("old")
	if _, ok := c.Get("a"); ok {
		t.Fatal("stale result was installed")
	}
	if st, _ := c.Status("a"); st != StatusPending {
		t.Fatalf("status = %s, want pending", st)
	}

	second.reply <- []byte("new")
	data, err := await(t, c, "a")
	if err != nil || string(data) != "new" {
		t.Fatalf("Await = %q, %v", data, err)
	}
}

func TestFailedFetchIsNotRetried(t *testing.T) {
	fetch, n := countingFetcher(true)
	c := NewTrackCache(fetch, 0)
	defer c.Close()

	c.Reconcile(tracks("a"))
	if _, err := await(t, c, "a"); err == nil {
		t.Fatal("expected fetch error")
	}
	if st, ok := c.Status("a"); !ok || st != StatusFailed {
		t.Fatalf("status = %s %v, want failed", st, ok)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("failed entry must not be readable")
	}

	c.Reconcile(tracks("a"))
	if got := atomic.LoadInt32(n); got != 1 {
		t.Fatalf("failed entry was refetched (%d calls)", got)
	}

	// 离开后重新进入队列会重新获取
	c.Reconcile(nil)
	c.Reconcile(tracks("a"))
	await(t, c, "a")
	if got := atomic.LoadInt32(n); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestAwaitMissing(t *testing.T) {
	fetch, _ := countingFetcher(false)
	c := NewTrackCache(fetch, 0)
	defer c.Close()

	if _, err := c.Await(context.Background(), "nope"); !errors.Is(err, ErrNotCached) {
		t.Errorf("got %v, want ErrNotCached", err)
	}
}

func TestCloseCancelsPending(t *testing.T) {
	var started sync.WaitGroup
	started.Add(1)
	c := NewTrackCache(func(ctx context.Context, _ model.Track) ([]byte, error) {
		started.Done()
		<-ctx.Done()
		return nil, ctx.Err()
	}, 0)

	c.Reconcile(tracks("a"))
	started.Wait()
	c.Close()

	if c.Len() != 0 {
		t.Error("Close should drop all entries")
	}
	if added, _ := c.Reconcile(tracks("b")); len(added) != 0 {
		t.Error("closed cache must not start fetches")
	}
}
