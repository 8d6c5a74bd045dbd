package player

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"MusicManager/core/apperr"
	"MusicManager/model"
)

// Queue 待播曲目的有序列表
//
// 条目只会被追加、删除或移动，不会原地修改。每次修改都按修改顺序把新列表的副本
// 交给变更回调，回调中不能再修改队列。
type Queue struct {
	// notify 从修改开始持有到回调结束，保证回调按修改顺序执行
	notify sync.Mutex

	mu      sync.Mutex
	items   []model.Track
	dragged int // 正在拖动的下标，没有拖动时为 -1

	onChange func(items []model.Track)
}

// NewQueue 创建播放队列
func NewQueue(items []model.Track, onChange func([]model.Track)) *Queue {
	return &Queue{
		items:    slices.Clone(items),
		dragged:  -1,
		onChange: onChange,
	}
}

// Items 获取队列副本
func (q *Queue) Items() []model.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

// Len 队列长度
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// mutate 持锁执行 f，f 有改动时通知变更回调
func (q *Queue) mutate(f func() (bool, error)) error {
	q.notify.Lock()
	defer q.notify.Unlock()

	q.mu.Lock()
	changed, err := f()
	snapshot := slices.Clone(q.items)
	q.mu.Unlock()

	if err != nil {
		return err
	}
	if changed && q.onChange != nil {
		q.onChange(snapshot)
	}
	return nil
}

func (q *Queue) checkIndex(i int) error {
	if i < 0 || i >= len(q.items) {
		return fmt.Errorf("queue index %d out of range [0,%d): %w", i, len(q.items), apperr.ErrInvalidArgument)
	}
	return nil
}

func validTracks(tracks []model.Track) error {
	for _, t := range tracks {
		if !t.Valid() {
			return fmt.Errorf("track %q has no id or url: %w", t.Title, apperr.ErrInvalidArgument)
		}
	}
	return nil
}

// Append 追加到队尾
func (q *Queue) Append(tracks ...model.Track) error {
	if err := validTracks(tracks); err != nil {
		return err
	}
	return q.mutate(func() (bool, error) {
		q.items = append(q.items, tracks...)
		return len(tracks) > 0, nil
	})
}

// Prepend 按原顺序插入到队首
func (q *Queue) Prepend(tracks ...model.Track) error {
	if err := validTracks(tracks); err != nil {
		return err
	}
	return q.mutate(func() (bool, error) {
		q.items = append(slices.Clone(tracks), q.items...)
		return len(tracks) > 0, nil
	})
}

// Remove 删除第 i 项
func (q *Queue) Remove(i int) error {
	return q.mutate(func() (bool, error) {
		if err := q.checkIndex(i); err != nil {
			return false, err
		}
		q.items = slices.Delete(q.items, i, i+1)
		return true, nil
	})
}

// Clear 清空队列
func (q *Queue) Clear() error {
	return q.mutate(func() (bool, error) {
		changed := len(q.items) > 0
		q.items = nil
		return changed, nil
	})
}

// Replace 替换整个队列
func (q *Queue) Replace(tracks []model.Track) error {
	if err := validTracks(tracks); err != nil {
		return err
	}
	return q.mutate(func() (bool, error) {
		q.items = slices.Clone(tracks)
		return true, nil
	})
}

// Front 获取队首但不移除
func (q *Queue) Front() (model.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.Track{}, false
	}
	return q.items[0], true
}

// PopFront 移除并返回队首
func (q *Queue) PopFront() (model.Track, bool) {
	var head model.Track
	var ok bool
	q.mutate(func() (bool, error) {
		if len(q.items) == 0 {
			return false, nil
		}
		head, ok = q.items[0], true
		q.items = slices.Delete(q.items, 0, 1)
		return true, nil
	})
	return head, ok
}

// Move 把 from 处的条目取出并插入到 to
func (q *Queue) Move(from, to int) error {
	return q.mutate(func() (bool, error) {
		return q.moveLocked(from, to)
	})
}

func (q *Queue) moveLocked(from, to int) (bool, error) {
	if err := q.checkIndex(from); err != nil {
		return false, err
	}
	if err := q.checkIndex(to); err != nil {
		return false, err
	}
	if from == to {
		return false, nil
	}
	moved := q.items[from]
	q.items = slices.Delete(q.items, from, from+1)
	q.items = slices.Insert(q.items, to, moved)
	return true, nil
}

// Shuffle 均匀随机打乱队列
func (q *Queue) Shuffle(rng *rand.Rand) error {
	return q.mutate(func() (bool, error) {
		if len(q.items) < 2 {
			return false, nil
		}
		shuffle := rand.Shuffle
		if rng != nil {
			shuffle = rng.Shuffle
		}
		shuffle(len(q.items), func(i, j int) {
			q.items[i], q.items[j] = q.items[j], q.items[i]
		})
		return true, nil
	})
}

// DragStart 开始拖动第 i 项
func (q *Queue) DragStart(i int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.checkIndex(i); err != nil {
		return err
	}
	q.dragged = i
	return nil
}

// DragOver 把正在拖动的条目移到 i，没有拖动时不做任何事
func (q *Queue) DragOver(i int) error {
	return q.mutate(func() (bool, error) {
		if q.dragged < 0 || q.dragged == i {
			return false, nil
		}
		changed, err := q.moveLocked(q.dragged, i)
		if err != nil {
			return false, err
		}
		q.dragged = i
		return changed, nil
	})
}

// DragEnd 结束拖动
func (q *Queue) DragEnd() {
	q.mu.Lock()
	q.dragged = -1
	q.mu.Unlock()
}

// Dragged 获取正在拖动的下标，没有时为 -1
func (q *Queue) Dragged() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dragged
}
