package audio

import (
	"context"
	"fmt"
	"io"
	"time"

	"MusicManager/core/apperr"
	"MusicManager/core/filter"
	"MusicManager/logger"
	"MusicManager/model"
)

// Pipeline 解析曲目音源并经滤镜链转码
//
// 开启 fastPath 时空滤镜链完全跳过转码，原样返回源字节；否则所有请求都经过
// 转码器，输出统一为 MP3。
type Pipeline struct {
	resolver   Resolver
	transcoder Transcoder
	fastPath   bool
	sampleRate int
}

// NewPipeline 创建转码流水线
func NewPipeline(resolver Resolver, transcoder Transcoder, fastPath bool, sampleRate int) *Pipeline {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Pipeline{
		resolver:   resolver,
		transcoder: transcoder,
		fastPath:   fastPath,
		sampleRate: sampleRate,
	}
}

// FastPath 空滤镜链是否跳过转码
func (p *Pipeline) FastPath() bool {
	return p.fastPath
}

// Compile 按流水线输出采样率编译滤镜选择
func (p *Pipeline) Compile(sel filter.Selection) []filter.Op {
	return filter.CompileAt(sel, p.sampleRate)
}

// Open 获取 trackURL 的编码流，由调用方关闭
func (p *Pipeline) Open(ctx context.Context, trackURL string, ops []filter.Op) (io.ReadCloser, error) {
	raw, err := p.resolver.Resolve(ctx, trackURL)
	if err != nil {
		return nil, err
	}

	if p.fastPath && len(ops) == 0 {
		return raw, nil
	}

	out, err := p.transcoder.Transcode(ctx, raw, ops)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return out, nil
}

// Fetch 把编码流读完成为负载，空负载报告为 apperr.ErrNoAudioAvailable
func (p *Pipeline) Fetch(ctx context.Context, track model.Track, sel filter.Selection) ([]byte, error) {
	start := time.Now()
	ops := p.Compile(sel)

	stream, err := p.Open(ctx, track.URL, ops)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	payload, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("track %s: empty payload: %w", track.ID, apperr.ErrNoAudioAvailable)
	}

	logger.Debug("曲目获取完成",
		logger.String("trackId", track.ID),
		logger.String("filters", filter.Graph(ops)),
		logger.Int("bytes", len(payload)),
		logger.Duration("took", time.Since(start)))
	return payload, nil
}
