package command

import (
	"context"
	"fmt"

	"MusicManager/core/apperr"
	"MusicManager/core/player"
	"MusicManager/model"
)

// Player 命令作用的会话接口
type Player interface {
	PlayQuery(ctx context.Context, query string) (player.Submit, error)
	EnqueueQuery(ctx context.Context, query string) (player.Submit, error)
	EnqueueQueryTop(ctx context.Context, query string) (player.Submit, error)
	Pause() error
	Resume() error
	Next(ctx context.Context) error
	SetVolume(level float64) player.Volume
	AdjustVolume(delta float64) player.Volume
	ToggleMute() player.Volume
	ClearQueue() error
	ShuffleQueue() error
}

// Outcome 命令执行结果
type Outcome struct {
	Command Command        `json:"command"`
	Track   *model.Track   `json:"track,omitempty"`
	Volume  *player.Volume `json:"volume,omitempty"`
}

// Dispatch 把命令应用到播放器
func Dispatch(ctx context.Context, p Player, cmd Command) (Outcome, error) {
	out := Outcome{Command: cmd}

	query := func(run func(context.Context, string) (player.Submit, error)) error {
		if cmd.Payload == "" {
			return fmt.Errorf("%s needs a song: %w", cmd.Type, apperr.ErrInvalidArgument)
		}
		res, err := run(ctx, cmd.Payload)
		if res.Track.ID != "" {
			t := res.Track
			out.Track = &t
		}
		return err
	}
	volume := func(v player.Volume) error {
		out.Volume = &v
		return nil
	}

	var err error
	switch cmd.Type {
	case Search, AddToQueueEnd:
		err = query(p.EnqueueQuery)
	case Play:
		err = query(p.PlayQuery)
	case AddToQueueTop:
		err = query(p.EnqueueQueryTop)
	case Pause:
		err = p.Pause()
	case Resume:
		err = p.Resume()
	case Skip:
		err = p.Next(ctx)
	case VolumeUp:
		err = volume(p.AdjustVolume(player.VolumeStep))
	case VolumeDown:
		err = volume(p.AdjustVolume(-player.VolumeStep))
	case VolumeMax:
		err = volume(p.SetVolume(1))
	case Mute:
		err = volume(p.ToggleMute())
	case ClearQueue:
		err = p.ClearQueue()
	case ShuffleQueue:
		err = p.ShuffleQueue()
	default:
		err = fmt.Errorf("unrecognized command %q: %w", cmd.Type, apperr.ErrInvalidArgument)
	}
	return out, err
}
