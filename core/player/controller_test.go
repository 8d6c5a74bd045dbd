package player

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"MusicManager/core/apperr"
	"MusicManager/core/filter"
	"MusicManager/model"
)

func TestCompensate(t *testing.T) {
	tests := []struct {
		name       string
		p0         float64
		elapsed    time.Duration
		wasPlaying bool
		want       float64
	}{
		{"playing advances", 30, 2 * time.Second, true, 32},
		{"paused holds", 30, 2 * time.Second, false, 30},
		{"fractional", 10.5, 1500 * time.Millisecond, true, 12},
		{"negative start clamps", -3, time.Second, false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compensate(tc.p0, tc.elapsed, tc.wasPlaying); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Compensate = %v, want %v", got, tc.want)
			}
		})
	}
}

func newTestController(clock *ManualClock, f *fakeFetcher, cache AudioCache) (*Controller, *MediaRegistry) {
	media := NewMediaRegistry()
	return NewController(ControllerOptions{
		Fetcher: f,
		Cache:   cache,
		Media:   media,
		Clock:   clock,
	}), media
}

func TestApplyFiltersLiveKeepsPosition(t *testing.T) {
	for _, wasPlaying := range []bool{true, false} {
		clock := NewManualClock(epoch)
		f := newFakeFetcher()
		ctrl, _ := newTestController(clock, f, nil)
		ctx := context.Background()

		if err := ctrl.SelectTrack(ctx, track("a"), false); err != nil {
			t.Fatalf("SelectTrack: %v", err)
		}
		clock.Advance(30 * time.Second)
		if !wasPlaying {
			ctrl.Pause()
		}

		// 重新获取耗时两秒
		f.before = func(model.Track) { clock.Advance(2 * time.Second) }
		ctrl.SetFilters(filter.NewSelection(filter.Echo))
		if err := ctrl.ApplyFiltersLive(ctx); err != nil {
			t.Fatalf("ApplyFiltersLive: %v", err)
		}

		snap := ctrl.Snapshot()
		want := 30.0
		if wasPlaying {
			want = 32.0
		}
		if math.Abs(snap.Position-want) > 1e-9 {
			t.Errorf("wasPlaying=%v: position = %v, want %v", wasPlaying, snap.Position, want)
		}
		if snap.Playing != wasPlaying {
			t.Errorf("wasPlaying=%v: playing = %v after swap", wasPlaying, snap.Playing)
		}

		calls := f.Calls()
		if last := calls[len(calls)-1]; last.graph != "aecho=0.8:0.88:60:0.4" {
			t.Errorf("refetch used chain %q", last.graph)
		}
	}
}

func TestSettleSeekKeepsAdvancing(t *testing.T) {
	for _, wasPlaying := range []bool{true, false} {
		clock := NewManualClock(epoch)
		ctrl := NewController(ControllerOptions{
			Fetcher:     newFakeFetcher(),
			Media:       NewMediaRegistry(),
			Clock:       clock,
			SettleDelay: 500 * time.Millisecond,
		})
		ctx := context.Background()

		if err := ctrl.SelectTrack(ctx, track("a"), false); err != nil {
			t.Fatalf("SelectTrack: %v", err)
		}
		clock.Advance(30 * time.Second)
		if !wasPlaying {
			ctrl.Pause()
		}

		ctrl.SetFilters(filter.NewSelection(filter.Echo))
		done := make(chan error, 1)
		go func() { done <- ctrl.ApplyFiltersLive(ctx) }()

		deadline := time.Now().Add(2 * time.Second)
		for clock.Pending() == 0 {
			if time.Now().After(deadline) {
				t.Fatal("settle timer never started")
			}
			time.Sleep(time.Millisecond)
		}
		if pos := ctrl.Snapshot().Position; math.Abs(pos-30) > 1e-9 {
			t.Errorf("wasPlaying=%v: position while settling = %v, want 30", wasPlaying, pos)
		}

		clock.Advance(500 * time.Millisecond)
		if err := <-done; err != nil {
			t.Fatalf("ApplyFiltersLive: %v", err)
		}

		want := 30.0
		if wasPlaying {
			want = 30.5
		}
		if pos := ctrl.Snapshot().Position; math.Abs(pos-want) > 1e-9 {
			t.Errorf("wasPlaying=%v: position after settle = %v, want %v", wasPlaying, pos, want)
		}
	}
}

func TestApplyFiltersLiveWithoutTrack(t *testing.T) {
	f := newFakeFetcher()
	ctrl, media := newTestController(NewManualClock(epoch), f, nil)

	if err := ctrl.ApplyFiltersLive(context.Background()); err != nil {
		t.Fatalf("ApplyFiltersLive: %v", err)
	}
	if len(f.Calls()) != 0 || media.Installed() != 0 {
		t.Error("applying filters without a track must do nothing")
	}
}

func TestSelectTrackReleasesPreviousHandleOnce(t *testing.T) {
	ctrl, media := newTestController(NewManualClock(epoch), newFakeFetcher(), nil)
	ctx := context.Background()

	if err := ctrl.SelectTrack(ctx, track("a"), false); err != nil {
		t.Fatal(err)
	}
	first := ctrl.Snapshot().Handle
	if err := ctrl.SelectTrack(ctx, track("b"), false); err != nil {
		t.Fatal(err)
	}

	if media.Released() != 1 {
		t.Errorf("released = %d, want 1", media.Released())
	}
	if media.Live() != 1 || media.PeakLive() != 1 {
		t.Errorf("live = %d peak = %d, want 1 and 1", media.Live(), media.PeakLive())
	}
	if _, _, ok := media.Open(first); ok {
		t.Error("first handle still open")
	}
	if media.Revoke(first) {
		t.Error("revoking a released handle must not count again")
	}

	ctrl.Close()
	if media.Released() != 2 || media.Live() != 0 {
		t.Errorf("after close released = %d live = %d", media.Released(), media.Live())
	}
}

func TestSelectTrackFailureKeepsSession(t *testing.T) {
	f := newFakeFetcher()
	ctrl, media := newTestController(NewManualClock(epoch), f, nil)
	ctx := context.Background()

	if err := ctrl.SelectTrack(ctx, track("a"), false); err != nil {
		t.Fatal(err)
	}
	before := ctrl.Snapshot()

	f.fail["b"] = true
	err := ctrl.SelectTrack(ctx, track("b"), false)
	if !errors.Is(err, apperr.ErrNoAudioAvailable) {
		t.Fatalf("err = %v, want ErrNoAudioAvailable", err)
	}

	after := ctrl.Snapshot()
	if after.Track == nil || after.Track.ID != "a" || after.Handle != before.Handle {
		t.Errorf("previous session was replaced: %+v", after)
	}
	if after.Loading || after.State != StatePlaying {
		t.Errorf("state after failure = %s loading=%v", after.State, after.Loading)
	}
	if media.Released() != 0 {
		t.Error("failed selection must not release the live handle")
	}
}

func TestApplyFiltersFailureKeepsSession(t *testing.T) {
	f := newFakeFetcher()
	ctrl, _ := newTestController(NewManualClock(epoch), f, nil)
	ctx := context.Background()

	ctrl.SelectTrack(ctx, track("a"), false)
	before := ctrl.Snapshot().Handle

	f.fail["a"] = true
	ctrl.SetFilters(filter.NewSelection(filter.Reverb))
	if err := ctrl.ApplyFiltersLive(ctx); !errors.Is(err, apperr.ErrNoAudioAvailable) {
		t.Fatalf("err = %v", err)
	}
	if ctrl.Snapshot().Handle != before {
		t.Error("failed filter change swapped the source")
	}
}

func TestSupersededSelectionIsDiscarded(t *testing.T) {
	f := newFakeFetcher()
	ctrl, media := newTestController(NewManualClock(epoch), f, nil)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	f.before = func(tr model.Track) {
		if tr.ID == "slow" {
			close(started)
			<-release
		}
	}

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowErr = ctrl.SelectTrack(ctx, track("slow"), false)
	}()
	<-started

	if err := ctrl.SelectTrack(ctx, track("fast"), false); err != nil {
		t.Fatalf("fast select: %v", err)
	}
	close(release)
	wg.Wait()

	if !errors.Is(slowErr, ErrSuperseded) {
		t.Errorf("slow select err = %v, want ErrSuperseded", slowErr)
	}
	snap := ctrl.Snapshot()
	if snap.Track.ID != "fast" || snap.Loading {
		t.Errorf("snapshot = %+v", snap)
	}
	if media.Installed() != 1 || media.Live() != 1 {
		t.Errorf("installed = %d live = %d", media.Installed(), media.Live())
	}
}

func TestSelectTrackUsesCacheOnlyWithoutFilters(t *testing.T) {
	f := newFakeFetcher()
	cache := newFakeCache()
	cache.payloads["a"] = []byte("cached:a")
	ctrl, media := newTestController(NewManualClock(epoch), f, cache)
	ctx := context.Background()

	ctrl.SelectTrack(ctx, track("a"), false)
	if len(f.Calls()) != 0 {
		t.Fatal("cached track was fetched again")
	}
	_, payload, _ := media.Open(ctrl.Snapshot().Handle)
	if string(payload) != "cached:a" {
		t.Errorf("payload = %q", payload)
	}

	ctrl.SetFilters(filter.NewSelection(filter.Bass))
	ctrl.SelectTrack(ctx, track("a"), false)
	calls := f.Calls()
	if len(calls) != 1 || !strings.HasPrefix(calls[0].graph, "bass=g=") {
		t.Errorf("filtered selection should fetch fresh, calls = %+v", calls)
	}
}

func TestPreservePositionSeeks(t *testing.T) {
	clock := NewManualClock(epoch)
	ctrl, _ := newTestController(clock, newFakeFetcher(), nil)
	ctx := context.Background()

	ctrl.SelectTrack(ctx, track("a"), false)
	clock.Advance(42 * time.Second)
	ctrl.SelectTrack(ctx, track("a"), true)
	if pos := ctrl.Snapshot().Position; pos != 42 {
		t.Errorf("position = %v, want 42", pos)
	}

	ctrl.SelectTrack(ctx, track("b"), false)
	if pos := ctrl.Snapshot().Position; pos != 0 {
		t.Errorf("new track should start at 0, got %v", pos)
	}
}

func TestPlayPauseSeek(t *testing.T) {
	clock := NewManualClock(epoch)
	ctrl, _ := newTestController(clock, newFakeFetcher(), nil)

	if err := ctrl.Play(); !errors.Is(err, apperr.ErrNoAudioAvailable) {
		t.Errorf("play without source: %v", err)
	}
	if ctrl.Snapshot().State != StateIdle {
		t.Errorf("initial state = %s", ctrl.Snapshot().State)
	}
	if _, ok := ctrl.Tap(); ok {
		t.Error("tap should be unavailable before a track loads")
	}

	ctrl.SelectTrack(context.Background(), track("a"), false)
	clock.Advance(5 * time.Second)
	ctrl.Pause()
	clock.Advance(5 * time.Second)
	snap := ctrl.Snapshot()
	if snap.State != StatePaused || snap.Position != 5 {
		t.Errorf("paused snapshot = %s at %v", snap.State, snap.Position)
	}

	ctrl.Seek(100)
	ctrl.Play()
	clock.Advance(time.Second)
	if pos := ctrl.Snapshot().Position; pos != 101 {
		t.Errorf("position = %v, want 101", pos)
	}

	ctrl.Seek(10_000)
	if pos := ctrl.Snapshot().Position; pos != 240 {
		t.Errorf("seek past the end should clamp to the duration, got %v", pos)
	}

	tap, ok := ctrl.Tap()
	if !ok || tap.Handle.TrackID != "a" || len(tap.Payload) == 0 {
		t.Errorf("tap = %+v %v", tap, ok)
	}
}

func TestReportPositionIgnoresStaleHandles(t *testing.T) {
	ctrl, _ := newTestController(NewManualClock(epoch), newFakeFetcher(), nil)
	ctrl.SelectTrack(context.Background(), track("a"), false)
	h := ctrl.Snapshot().Handle

	if ctrl.ReportPosition("old-handle", 50, true) {
		t.Error("report for a stale handle was accepted")
	}
	if !ctrl.ReportPosition(h, 50, false) {
		t.Fatal("report for the live handle was rejected")
	}
	if snap := ctrl.Snapshot(); snap.Position != 50 || snap.Playing {
		t.Errorf("snapshot = %+v", snap)
	}
}
