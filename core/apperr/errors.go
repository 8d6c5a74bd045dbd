// Package apperr 播放核心与 HTTP 层共用的错误分类
//
// 调用方用 fmt.Errorf("...: %w") 包装，用 errors.Is 判断。
package apperr

import "errors"

var (
	// ErrUpstreamUnavailable 搜索或媒体源失败，或链接无效（私有、锁区、已删除）
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrTranscodeFailed DSP 引擎或编码器失败，以此错误结束的流不能当作完整曲目
	ErrTranscodeFailed = errors.New("transcode failed")

	// ErrNoAudioAvailable 无法获得可播放的负载
	ErrNoAudioAvailable = errors.New("no audio available")

	// ErrPersistedStateCorrupt 本地状态无法读回，按不存在处理，不是致命错误
	ErrPersistedStateCorrupt = errors.New("persisted state corrupt")

	// ErrNoResults 搜索无结果
	ErrNoResults = errors.New("no results")

	// ErrInvalidArgument 调用方输入格式错误
	ErrInvalidArgument = errors.New("invalid argument")
)
