package filter

import (
	"encoding/json"

	"github.com/samber/lo"
)

// Selection 已选滤镜集合及低音增益
//
// 集合与顺序无关，应用顺序由 Compile 决定。零值是带默认增益的空选择。
type Selection struct {
	ids      map[ID]struct{}
	bassGain *int
}

// NewSelection 由 id 创建选择，重复项合并
func NewSelection(ids ...ID) Selection {
	s := Selection{ids: make(map[ID]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Has id 是否已选
func (s Selection) Has(id ID) bool {
	_, ok := s.ids[id]
	return ok
}

// Len 已选 id 数量，含未知 id
func (s Selection) Len() int {
	return len(s.ids)
}

// Empty 选择是否编译不出任何滤镜
func (s Selection) Empty() bool {
	return len(s.List()) == 0
}

// List 按固定顺序返回已选的已知 id
func (s Selection) List() []ID {
	return lo.Filter(canonicalOrder, func(id ID, _ int) bool { return s.Has(id) })
}

// BassGain 获取限制后的低音增益（dB）
func (s Selection) BassGain() int {
	if s.bassGain == nil {
		return DefaultBassGain
	}
	return *s.bassGain
}

// SetBassGain 设置低音增益并限制在允许范围内
func (s *Selection) SetBassGain(gain int) {
	g := ClampBassGain(gain)
	s.bassGain = &g
}

// Toggle 切换 id，返回切换后是否选中
func (s *Selection) Toggle(id ID) bool {
	if s.ids == nil {
		s.ids = make(map[ID]struct{})
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Set 替换已选 id，保留低音增益
func (s *Selection) Set(ids ...ID) {
	s.ids = make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Clear 清除所有已选 id，保留低音增益
func (s *Selection) Clear() {
	s.ids = make(map[ID]struct{})
}

// Clone 获取独立副本
func (s Selection) Clone() Selection {
	c := NewSelection(lo.Keys(s.ids)...)
	if s.bassGain != nil {
		g := *s.bassGain
		c.bassGain = &g
	}
	return c
}

type selectionJSON struct {
	Filters  []ID `json:"filters"`
	BassGain int  `json:"bassBoost"`
}

// MarshalJSON 输出按固定顺序排列的 id 和增益
func (s Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(selectionJSON{Filters: s.List(), BassGain: s.BassGain()})
}

// UnmarshalJSON 解析 {"filters": [...], "bassBoost": n}，增益会被限制
func (s *Selection) UnmarshalJSON(data []byte) error {
	raw := selectionJSON{BassGain: DefaultBassGain}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSelection(raw.Filters...)
	s.SetBassGain(raw.BassGain)
	return nil
}
