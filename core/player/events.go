package player

import (
	"sync"
	"time"

	"MusicManager/logger"
)

// EventType 会话事件类型
type EventType string

const (
	EventTrackChanged    EventType = "track_changed"
	EventStateChanged    EventType = "state_changed"
	EventSeek            EventType = "seek"
	EventQueueChanged    EventType = "queue_changed"
	EventFiltersChanged  EventType = "filters_changed"
	EventModeChanged     EventType = "mode_changed"
	EventNotice          EventType = "notice"
	EventLoading         EventType = "loading"
	EventError           EventType = "error"
	EventAutoplayChanged EventType = "autoplay_changed"
	EventVolumeChanged   EventType = "volume_changed"

	// 完整 State，WebSocket 新订阅者首先收到
	EventSnapshot EventType = "snapshot"
)

// Event 发布给订阅者的状态变化，窗口标题、提示和加载动画都由它派生
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

const subscriberBuffer = 64

// Bus 事件总线，慢订阅者会丢事件而不会阻塞会话
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	now  func() time.Time
}

// NewBus 创建事件总线
func NewBus(clock Clock) *Bus {
	if clock == nil {
		clock = RealClock()
	}
	return &Bus{subs: make(map[chan Event]struct{}), now: clock.Now}
}

// Subscribe 订阅事件，返回事件通道和取消订阅函数
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish 非阻塞地向所有订阅者发送事件
func (b *Bus) Publish(t EventType, data any) {
	ev := Event{Type: t, Time: b.now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Debug("订阅者过慢，丢弃事件", logger.String("type", string(t)))
		}
	}
}
