package player

import (
	"context"
	"sync/atomic"

	"MusicManager/logger"
	"MusicManager/model"
)

// Suggester 返回 trackID 之后的推荐曲目，不含其本身
type Suggester interface {
	Autocomplete(ctx context.Context, trackID string, limit int) ([]model.Track, error)
}

// Orchestrator 决定当前曲目之后播放什么：优先队首，否则取自动播放推荐
type Orchestrator struct {
	queue    *Queue
	ctrl     *Controller
	suggest  Suggester
	limit    int
	autoplay atomic.Bool
	bus      *Bus
}

// NewOrchestrator 创建队列编排器
func NewOrchestrator(queue *Queue, ctrl *Controller, suggest Suggester, limit int, bus *Bus) *Orchestrator {
	return &Orchestrator{queue: queue, ctrl: ctrl, suggest: suggest, limit: limit, bus: bus}
}

// Autoplay 自动播放是否开启
func (o *Orchestrator) Autoplay() bool {
	return o.autoplay.Load()
}

// SetAutoplay 开关自动播放，返回是否有变化
func (o *Orchestrator) SetAutoplay(on bool) bool {
	changed := o.autoplay.Swap(on) != on
	if changed && o.bus != nil {
		o.bus.Publish(EventAutoplayChanged, on)
	}
	return changed
}

// OnEnded 当前曲目结束后推进播放：
//  1. 队列非空时弹出队首，从 0 开始播放；
//  2. 自动播放关闭时停止播放；
//  3. 否则播放结束曲目的第一个推荐，其余推荐成为新队列。
//
// 自动播放查询失败只记录日志并停止播放，不返回错误。
func (o *Orchestrator) OnEnded(ctx context.Context) error {
	finished, ok := o.ctrl.Current()
	if !ok {
		return nil
	}

	if head, ok := o.queue.Front(); ok {
		// 先取走预取音频，弹出队首会把它从缓存中移除
		claimed := o.ctrl.prefetched(head.ID)
		if next, ok := o.queue.PopFront(); ok {
			if next.ID != head.ID {
				claimed = nil
			}
			return o.ctrl.selectTrack(ctx, next, false, claimed)
		}
	}

	if !o.Autoplay() {
		o.ctrl.Stop()
		return nil
	}

	o.ctrl.setBusy(true)
	suggestions, err := o.suggest.Autocomplete(ctx, finished.ID, o.limit)
	o.ctrl.setBusy(false)
	if err != nil || len(suggestions) == 0 {
		logger.Warn("自动播放没有可播放的曲目",
			logger.String("trackId", finished.ID),
			logger.Int("suggestions", len(suggestions)),
			logger.ErrorField(err))
		o.ctrl.Stop()
		return nil
	}

	if err := o.ctrl.SelectTrack(ctx, suggestions[0], false); err != nil {
		return err
	}
	if err := o.queue.Replace(suggestions[1:]); err != nil {
		logger.Warn("自动播放推荐被拒绝", logger.ErrorField(err))
	}
	return nil
}

// Next 按与 OnEnded 相同的策略跳过当前曲目
func (o *Orchestrator) Next(ctx context.Context) error {
	return o.OnEnded(ctx)
}
