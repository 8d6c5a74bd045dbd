package player

import "time"

// Compensate 计算同一曲目换源后应继续的位置
//
// 播放中的曲目在获取新音源期间继续前进，暂停的不会。
func Compensate(p0 float64, elapsed time.Duration, wasPlaying bool) float64 {
	if p0 < 0 {
		p0 = 0
	}
	if !wasPlaying || elapsed <= 0 {
		return p0
	}
	return p0 + elapsed.Seconds()
}
