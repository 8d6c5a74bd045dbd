package command

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MusicManager/core/apperr"
	"MusicManager/core/player"
	"MusicManager/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Command
	}{
		{"plain json", `{"type":"play","payload":"bohemian rhapsody"}`, Command{Play, "bohemian rhapsody"}},
		{"wrapped json", "Sure!\n```json\n{\"type\": \"skip\"}\n```", Command{Type: Skip}},
		{"numeric payload", `{"type":"search","payload":42}`, Command{Search, "42"}},
		{"broken json", `{"type": play}`, Command{Type: Unknown}},
		{"json without type", `{"payload":"x"}`, Command{Unknown, "x"}},
		{"keyword play", "play Hey Jude", Command{Play, "Hey Jude"}},
		{"keyword search", "please search daft punk", Command{Search, "please daft punk"}},
		{"keyword pause", "you want to pause", Command{Type: Pause}},
		{"nothing", "I don't know", Command{Type: Unknown}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Parse(tc.response); got != tc.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tc.response, got, tc.want)
			}
		})
	}
}

func TestInterpret(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{
			Response: `Here you go: {"type":"addToQueueTop","payload":"one more time"}`,
		})
	}))
	defer srv.Close()

	in := NewInterpreter(&Config{BaseURL: srv.URL + "/", Model: "llama3", Temperature: 0.1})
	cmd, err := in.Interpret(context.Background(), "put one more time next")
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if cmd != (Command{AddToQueueTop, "one more time"}) {
		t.Errorf("cmd = %+v", cmd)
	}
	if got.Model != "llama3" || got.Stream || got.Options.Temperature != 0.1 {
		t.Errorf("request = %+v", got)
	}
	if !strings.Contains(got.Prompt, `Command: "put one more time next"`) {
		t.Errorf("prompt does not carry the command:\n%s", got.Prompt)
	}
}

func TestInterpretErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	in := NewInterpreter(&Config{BaseURL: srv.URL, Model: "missing"})
	if _, err := in.Interpret(context.Background(), "pause"); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Errorf("bad status = %v", err)
	}
	if _, err := in.Interpret(context.Background(), "  "); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty text = %v", err)
	}
}

type fakePlayer struct {
	calls  []string
	volume player.Volume
	err    error
}

func (f *fakePlayer) submit(name, q string) (player.Submit, error) {
	f.calls = append(f.calls, name+":"+q)
	if f.err != nil {
		return player.Submit{}, f.err
	}
	return player.Submit{Track: model.Track{ID: "id-" + q, URL: "u", Title: q}}, nil
}

func (f *fakePlayer) PlayQuery(_ context.Context, q string) (player.Submit, error) {
	return f.submit("play", q)
}

func (f *fakePlayer) EnqueueQuery(_ context.Context, q string) (player.Submit, error) {
	return f.submit("enqueue", q)
}

func (f *fakePlayer) EnqueueQueryTop(_ context.Context, q string) (player.Submit, error) {
	return f.submit("top", q)
}

func (f *fakePlayer) Pause() error { f.calls = append(f.calls, "pause"); return nil }
func (f *fakePlayer) Resume() error { f.calls = append(f.calls, "resume"); return nil }
func (f *fakePlayer) Next(context.Context) error { f.calls = append(f.calls, "next"); return nil }
func (f *fakePlayer) ClearQueue() error { f.calls = append(f.calls, "clear"); return nil }
func (f *fakePlayer) ShuffleQueue() error { f.calls = append(f.calls, "shuffle"); return nil }
func (f *fakePlayer) SetVolume(l float64) player.Volume {
	f.volume = player.Volume{Level: l}
	return f.volume
}
func (f *fakePlayer) AdjustVolume(d float64) player.Volume { return f.SetVolume(f.volume.Level + d) }
func (f *fakePlayer) ToggleMute() player.Volume {
	f.volume.Muted = !f.volume.Muted
	return f.volume
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		cmd  Command
		call string
	}{
		{Command{Search, "a"}, "enqueue:a"},
		{Command{AddToQueueEnd, "b"}, "enqueue:b"},
		{Command{Play, "c"}, "play:c"},
		{Command{AddToQueueTop, "d"}, "top:d"},
		{Command{Type: Pause}, "pause"},
		{Command{Type: Resume}, "resume"},
		{Command{Type: Skip}, "next"},
		{Command{Type: ClearQueue}, "clear"},
		{Command{Type: ShuffleQueue}, "shuffle"},
	}
	for _, tc := range tests {
		t.Run(string(tc.cmd.Type), func(t *testing.T) {
			p := &fakePlayer{}
			out, err := Dispatch(context.Background(), p, tc.cmd)
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if len(p.calls) != 1 || p.calls[0] != tc.call {
				t.Errorf("calls = %v, want [%s]", p.calls, tc.call)
			}
			if tc.cmd.Payload != "" && (out.Track == nil || out.Track.Title != tc.cmd.Payload) {
				t.Errorf("outcome track = %+v", out.Track)
			}
		})
	}
}

func TestDispatchVolume(t *testing.T) {
	p := &fakePlayer{volume: player.Volume{Level: 0.5}}
	ctx := context.Background()

	out, _ := Dispatch(ctx, p, Command{Type: VolumeDown})
	if out.Volume == nil || math.Abs(out.Volume.Level-0.4) > 1e-9 {
		t.Errorf("volumeDown = %+v", out.Volume)
	}
	out, _ = Dispatch(ctx, p, Command{Type: VolumeMax})
	if out.Volume.Level != 1 {
		t.Errorf("volumeMax = %+v", out.Volume)
	}
	out, _ = Dispatch(ctx, p, Command{Type: Mute})
	if !out.Volume.Muted {
		t.Error("mute did not toggle")
	}
}

func TestDispatchRejects(t *testing.T) {
	p := &fakePlayer{}
	ctx := context.Background()

	if _, err := Dispatch(ctx, p, Command{Type: Play}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("play without payload = %v", err)
	}
	if _, err := Dispatch(ctx, p, Command{Type: Unknown}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("unknown = %v", err)
	}
	if len(p.calls) != 0 {
		t.Errorf("rejected commands reached the player: %v", p.calls)
	}

	p.err = apperr.ErrUpstreamUnavailable
	out, err := Dispatch(ctx, p, Command{Play, "x"})
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) || out.Track != nil {
		t.Errorf("failed search = %+v, %v", out, err)
	}
}

var _ Player = (*player.Session)(nil)
