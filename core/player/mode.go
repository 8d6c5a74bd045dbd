package player

import (
	"sync"
	"time"
)

// Mode 决定搜索提交如何处理首个结果
type Mode string

const (
	ModePlay    Mode = "play"
	ModeEnqueue Mode = "enqueue"
)

// ModeState 模式状态机快照
type ModeState struct {
	Mode              Mode `json:"mode"`
	AutoSwitchPending bool `json:"autoSwitchPending"`
	NoticeVisible     bool `json:"noticeVisible"`
}

// ModeMachine 初始为 Play 模式
//
// 第一次有曲目成为当前曲目时，如果模式仍是 Play 且用户从未手动切换过，
// 就自动切到 Enqueue 并在固定时间内显示提示。自动切换最多发生一次。
type ModeMachine struct {
	mu             sync.Mutex
	mode           Mode
	neverToggled   bool
	switchConsumed bool
	noticeUntil    time.Time
	noticeTimer    Timer

	noticeFor time.Duration
	clock     Clock
	bus       *Bus
}

// NewModeMachine 创建模式状态机. bus may be nil.
func NewModeMachine(clock Clock, noticeFor time.Duration, bus *Bus) *ModeMachine {
	if clock == nil {
		clock = RealClock()
	}
	return &ModeMachine{
		mode:         ModePlay,
		neverToggled: true,
		noticeFor:    noticeFor,
		clock:        clock,
		bus:          bus,
	}
}

// Mode 获取当前模式
func (m *ModeMachine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Toggle 手动切换模式，隐藏提示并取消自动切换
func (m *ModeMachine) Toggle() Mode {
	m.mu.Lock()
	if m.mode == ModePlay {
		m.mode = ModeEnqueue
	} else {
		m.mode = ModePlay
	}
	m.neverToggled = false
	hadNotice := m.hideNoticeLocked()
	state := m.stateLocked()
	m.mu.Unlock()

	m.publish(EventModeChanged, state)
	if hadNotice {
		m.publish(EventNotice, state)
	}
	return state.Mode
}

// ObserveTrack 有曲目成为当前曲目时调用，返回是否触发了自动切换
func (m *ModeMachine) ObserveTrack(hasTrack bool) bool {
	m.mu.Lock()
	if !hasTrack || m.mode != ModePlay || !m.neverToggled || m.switchConsumed {
		m.mu.Unlock()
		return false
	}

	m.mode = ModeEnqueue
	m.switchConsumed = true
	m.noticeUntil = m.clock.Now().Add(m.noticeFor)
	if m.noticeTimer != nil {
		m.noticeTimer.Stop()
	}
	m.noticeTimer = m.clock.AfterFunc(m.noticeFor, m.expireNotice)
	state := m.stateLocked()
	m.mu.Unlock()

	m.publish(EventModeChanged, state)
	m.publish(EventNotice, state)
	return true
}

// NoticeVisible 自动切换提示是否正在显示
func (m *ModeMachine) NoticeVisible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noticeVisibleLocked()
}

// State 获取快照
func (m *ModeMachine) State() ModeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *ModeMachine) expireNotice() {
	m.mu.Lock()
	m.noticeTimer = nil
	m.noticeUntil = time.Time{}
	state := m.stateLocked()
	m.mu.Unlock()
	m.publish(EventNotice, state)
}

func (m *ModeMachine) hideNoticeLocked() bool {
	visible := m.noticeVisibleLocked()
	if m.noticeTimer != nil {
		m.noticeTimer.Stop()
		m.noticeTimer = nil
	}
	m.noticeUntil = time.Time{}
	return visible
}

func (m *ModeMachine) noticeVisibleLocked() bool {
	return !m.noticeUntil.IsZero() && m.clock.Now().Before(m.noticeUntil)
}

func (m *ModeMachine) stateLocked() ModeState {
	return ModeState{
		Mode:              m.mode,
		AutoSwitchPending: m.neverToggled && !m.switchConsumed,
		NoticeVisible:     m.noticeVisibleLocked(),
	}
}

func (m *ModeMachine) publish(t EventType, state ModeState) {
	if m.bus != nil {
		m.bus.Publish(t, state)
	}
}
