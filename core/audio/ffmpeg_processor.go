package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"MusicManager/core/apperr"
	"MusicManager/core/filter"
	"MusicManager/core/utils"
	"MusicManager/logger"
)

const (
	DefaultBitrate    = "320k"
	DefaultSampleRate = 44100
)

// FFmpegTranscoder 每次调用启动一个 ffmpeg 进程，从 stdin 读入、向 stdout 输出 MP3
type FFmpegTranscoder struct {
	ffmpegPath string
	bitrate    string
	sampleRate int
}

// NewFFmpegTranscoder 创建 ffmpeg 转码器，空值或零值使用 320k / 44100 Hz
func NewFFmpegTranscoder(ffmpegPath, bitrate string, sampleRate int) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, bitrate: bitrate, sampleRate: sampleRate}
}

// SampleRate 输出采样率，nightcore 滤镜也会用到
func (t *FFmpegTranscoder) SampleRate() int {
	return t.sampleRate
}

// Args 构建 ffmpeg 参数列表
func (t *FFmpegTranscoder) Args(ops []filter.Op) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
	}
	if graph := filter.Graph(ops); graph != "" {
		args = append(args, "-af", graph)
	}
	args = append(args,
		"-c:a", "libmp3lame",
		"-b:a", t.bitrate,
		"-ar", strconv.Itoa(t.sampleRate),
		"-f", "mp3",
		"pipe:1",
	)
	return args
}

// Transcode 实现 Transcoder
//
// ffmpeg 非零退出、没有输出，或输入在源结束前失败时，流以包装
// apperr.ErrTranscodeFailed 的错误结束。
func (t *FFmpegTranscoder) Transcode(ctx context.Context, raw io.Reader, ops []filter.Op) (io.ReadCloser, error) {
	args := t.Args(ops)
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}

	var closers []io.Closer
	if c, ok := raw.(io.Closer); ok {
		closers = append(closers, c)
	}

	logger.Debug("启动 ffmpeg",
		logger.String("filters", filter.Graph(ops)),
		logger.String("bitrate", t.bitrate))

	proc, err := utils.StartProcess("ffmpeg", cmd, apperr.ErrTranscodeFailed, closers...)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}

	go func() {
		// 源流中途失败时 ffmpeg 只会看到正常的 EOF，必须在关闭 stdin 之前记录错误
		if _, err := io.Copy(stdin, raw); err != nil {
			logger.Debug("ffmpeg 输入复制中断", logger.ErrorField(err))
			proc.FailInput(err)
		}
		stdin.Close()
	}()

	return proc, nil
}

// ffprobeOutput ffprobe JSON 输出结构
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// GetAudioDuration 使用 ffprobe 获取音频文件时长（秒）
func (t *FFmpegTranscoder) GetAudioDuration(ctx context.Context, inputFile string) (float64, error) {
	ffprobePath := strings.Replace(t.ffmpegPath, "ffmpeg", "ffprobe", 1)

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	return parseProbeDuration(out.Bytes())
}

func parseProbeDuration(data []byte) (float64, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w\nFFprobe Output: %s", err, data)
	}

	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output\nFFprobe Output: %s", data)
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string \"%s\": %w", probeData.Format.Duration, err)
	}

	return duration, nil
}
