package player

import "github.com/samber/lo"

// VolumeStep 每次调节音量的步长
const VolumeStep = 0.1

// Volume 渲染端输出音量 [0, 1] 及静音开关
type Volume struct {
	Level float64 `json:"level"`
	Muted bool    `json:"muted"`
}

// Volume 获取当前音量
func (s *Session) Volume() Volume {
	s.volMu.Lock()
	defer s.volMu.Unlock()
	return s.volume
}

// SetVolume 设置音量（限制在 [0, 1]）并取消静音
func (s *Session) SetVolume(level float64) Volume {
	s.volMu.Lock()
	s.volume.Level = lo.Clamp(level, 0, 1)
	s.volume.Muted = false
	v := s.volume
	s.volMu.Unlock()
	s.bus.Publish(EventVolumeChanged, v)
	return v
}

// AdjustVolume 按 delta 调节音量
func (s *Session) AdjustVolume(delta float64) Volume {
	return s.SetVolume(s.Volume().Level + delta)
}

// ToggleMute 切换静音
func (s *Session) ToggleMute() Volume {
	s.volMu.Lock()
	s.volume.Muted = !s.volume.Muted
	v := s.volume
	s.volMu.Unlock()
	s.bus.Publish(EventVolumeChanged, v)
	return v
}
