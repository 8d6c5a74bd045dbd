// Package visual 把当前音源转换为可视化频谱帧，只读取音源，不影响播放
package visual

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/spectrum"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"

	"MusicManager/core/audio"
	"MusicManager/core/player"
	"MusicManager/logger"
)

const (
	Bands     = 32
	BlockSize = 2048

	MinFrequency = 40.0
	MaxFrequency = 16000.0

	// 低于此值按静音绘制
	FloorDB = -90.0
)

// BandFrequencies 对数间隔的频带中心频率，不超过奈奎斯特频率
func BandFrequencies(sampleRate float64) []float64 {
	freqs := make([]float64, Bands)
	ratio := MaxFrequency / MinFrequency
	for i := range freqs {
		f := MinFrequency * math.Pow(ratio, float64(i)/float64(Bands-1))
		freqs[i] = math.Min(f, sampleRate/2)
	}
	return freqs
}

// Levels 测量 block 在每个频带的电平
//
// 结果归一化到 [0, 1]，1 为满幅正弦，0 为 FloorDB 及以下。
func Levels(block []float64, sampleRate float64) ([]float64, error) {
	if len(block) == 0 {
		return make([]float64, Bands), nil
	}

	samples, err := window.ApplyCoefficients(block, window.Generate(window.TypeHann, len(block)))
	if err != nil {
		return nil, err
	}
	g, err := spectrum.NewMultiGoertzel(BandFrequencies(sampleRate), sampleRate)
	if err != nil {
		return nil, err
	}
	g.ProcessBlock(samples)

	// 满幅正弦经 Hann 窗后峰值为 (N/4)^2
	ref := float64(len(block)) / 4
	ref *= ref

	levels := g.Powers()
	for i, p := range levels {
		db := FloorDB
		if p > 0 {
			db = 10 * math.Log10(p/ref)
		}
		levels[i] = math.Max(0, math.Min(1, (db-FloorDB)/-FloorDB))
	}
	return levels, nil
}

// Analyzer 频谱分析器，每个句柄只解码一次负载，按上报位置读取数据块
type Analyzer struct {
	mu     sync.Mutex
	handle string
	stream beep.StreamSeekCloser
	format beep.Format
	buf    [][2]float64

	skipped string // 负载不是 MPEG 音频的句柄
}

// NewAnalyzer 创建频谱分析器
func NewAnalyzer() *Analyzer {
	return &Analyzer{buf: make([][2]float64, 512)}
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// Frame 获取 tap 位置的频谱
//
// tap 为空、没有负载或负载不是 MP3 容器时返回静音帧。句柄变化时解码新负载。
func (a *Analyzer) Frame(tap *player.TapPoint) ([]float64, error) {
	if tap == nil || len(tap.Payload) == 0 {
		return make([]float64, Bands), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// 未转码的快速路径负载是 WebM/M4A 等容器，只能解码 MP3
	if ct := audio.SniffContentType(tap.Payload); ct != audio.TypeMPEG && ct != audio.TypeUnknown {
		if a.skipped != tap.Handle.ID {
			a.skipped = tap.Handle.ID
			logger.Debug("频谱分析跳过非 MP3 负载",
				logger.String("handle", tap.Handle.ID),
				logger.String("contentType", ct))
		}
		return make([]float64, Bands), nil
	}

	if tap.Handle.ID != a.handle || a.stream == nil {
		if err := a.bindLocked(tap.Handle.ID, tap.Payload); err != nil {
			return nil, err
		}
	}

	block, err := a.readLocked(tap.Position)
	if err != nil {
		return nil, err
	}
	return Levels(block, float64(a.format.SampleRate))
}

func (a *Analyzer) bindLocked(handle string, payload []byte) error {
	a.closeLocked()

	stream, format, err := mp3.Decode(nopCloser{bytes.NewReader(payload)})
	if err != nil {
		return fmt.Errorf("decode payload of %s: %w", handle, err)
	}
	if stream.Len() <= 0 {
		stream.Close()
		return fmt.Errorf("payload of %s has no audio frames", handle)
	}
	a.handle = handle
	a.stream = stream
	a.format = format
	logger.Debug("频谱分析切换到新句柄",
		logger.String("handle", handle),
		logger.Int("sampleRate", int(format.SampleRate)),
		logger.Int("samples", stream.Len()))
	return nil
}

// readLocked 从 pos 秒开始读取单声道数据块，超出结尾部分补静音
func (a *Analyzer) readLocked(pos float64) ([]float64, error) {
	at := a.format.SampleRate.N(time.Duration(pos * float64(time.Second)))
	if n := a.stream.Len(); at >= n {
		at = n - 1
	}
	if at < 0 {
		at = 0
	}
	if err := a.stream.Seek(at); err != nil {
		return nil, fmt.Errorf("seek visual tap: %w", err)
	}

	block := make([]float64, BlockSize)
	filled := 0
	for filled < BlockSize {
		want := min(len(a.buf), BlockSize-filled)
		n, ok := a.stream.Stream(a.buf[:want])
		for _, s := range a.buf[:n] {
			block[filled] = (s[0] + s[1]) / 2
			filled++
		}
		if !ok || n == 0 {
			break
		}
	}
	if err := a.stream.Err(); err != nil {
		return nil, err
	}
	return block, nil
}

func (a *Analyzer) closeLocked() {
	if a.stream != nil {
		a.stream.Close()
	}
	a.stream = nil
	a.handle = ""
}

// Close 释放解码流
func (a *Analyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeLocked()
}
