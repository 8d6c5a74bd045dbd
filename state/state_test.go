package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"MusicManager/core/apperr"
	"MusicManager/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	if _, err := s.Load(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file should be not found, got %v", err)
	}
	if err := s.Save(ctx, "k", []byte(`[1,2]`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "other", []byte(`true`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened := NewFileStore(path)
	got, err := reopened.Load(ctx, "k")
	if err != nil || string(got) != `[1,2]` {
		t.Errorf("Load(k) = %q, %v", got, err)
	}
	got, err = reopened.Load(ctx, "other")
	if err != nil || string(got) != `true` {
		t.Errorf("Load(other) = %q, %v", got, err)
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(path)
	ctx := context.Background()

	if _, err := s.Load(ctx, QueueKey); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("corrupt document should surface a read error, got %v", err)
	}
	if err := s.Save(ctx, QueueKey, []byte(`[]`)); err != nil {
		t.Fatalf("Save over corrupt document: %v", err)
	}
	if got, err := s.Load(ctx, QueueKey); err != nil || string(got) != `[]` {
		t.Errorf("Load after repair = %q, %v", got, err)
	}
}

func TestPersistenceQueue(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(NewMemoryStore())

	if q := p.LoadQueue(ctx); q == nil || len(q) != 0 {
		t.Fatalf("missing queue should load empty, got %v", q)
	}

	in := []model.Track{
		{ID: "a", URL: "https://www.youtube.com/watch?v=a", Title: "A", Duration: 61, DurationFormatted: "1:01"},
		{ID: "b", URL: "https://www.youtube.com/watch?v=b", Title: "B"},
	}
	if err := p.SaveQueue(ctx, in); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}
	out := p.LoadQueue(ctx)
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("LoadQueue = %+v", out)
	}
}

func TestPersistenceCorruptValues(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		queue    string
		autoplay string
		wantLen  int
	}{
		{"garbage", "{{{", "maybe", 0},
		{"wrong shape", `{"id":"a"}`, `"true"`, 0},
		{"null", "null", "null", 0},
		{"invalid entries dropped", `[{"id":"a","url":"u"},{"title":"no id"}]`, "1", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore()
			store.Save(ctx, QueueKey, []byte(tc.queue))
			store.Save(ctx, AutoplayKey, []byte(tc.autoplay))
			p := NewPersistence(store)

			if q := p.LoadQueue(ctx); len(q) != tc.wantLen {
				t.Errorf("queue len = %d, want %d", len(q), tc.wantLen)
			}
			if p.LoadAutoplay(ctx) {
				t.Error("corrupt autoplay should load as false")
			}
		})
	}
}

func TestDecodeQueueCorruptError(t *testing.T) {
	if _, err := DecodeQueue([]byte("[oops")); !errors.Is(err, apperr.ErrPersistedStateCorrupt) {
		t.Errorf("got %v, want ErrPersistedStateCorrupt", err)
	}
}

func TestPersistenceAutoplay(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(NewMemoryStore())

	if p.LoadAutoplay(ctx) {
		t.Fatal("missing autoplay should be false")
	}
	p.SaveAutoplay(ctx, true)
	if !p.LoadAutoplay(ctx) {
		t.Error("autoplay should round trip")
	}
}
