package model

import (
	"fmt"
	"strings"
)

// Channel 曲目上传者
type Channel struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
	Icon string `json:"icon,omitempty"`
}

// Thumbnail 封面信息
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Track 搜索或推荐返回的曲目元数据，创建后不再修改
type Track struct {
	ID                string    `json:"id"`
	URL               string    `json:"url"`
	Title             string    `json:"title"`
	Duration          int       `json:"duration"` // 秒
	DurationFormatted string    `json:"duration_formatted"`
	Channel           Channel   `json:"channel"`
	Thumbnail         Thumbnail `json:"thumbnail"`
}

// Valid 曲目信息是否足以播放
func (t Track) Valid() bool {
	return strings.TrimSpace(t.ID) != "" && strings.TrimSpace(t.URL) != ""
}

// FormatDuration 把秒数格式化为 m:ss，一小时以上为 h:mm:ss
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
