package audio

import (
	"context"
	"io"

	"MusicManager/core/filter"
)

// Transcoder 将原始压缩流经滤镜链编码
//
// 每次调用独占一个引擎实例，并发调用之间不共享任何状态。
// raw 实现 io.Closer 时随返回的读取器一起关闭。
type Transcoder interface {
	Transcode(ctx context.Context, raw io.Reader, ops []filter.Op) (io.ReadCloser, error)
}

// Resolver 打开曲目链接背后的原始音频
type Resolver interface {
	Resolve(ctx context.Context, trackURL string) (io.ReadCloser, error)
}
