package audio

import "bytes"

// 音频容器类型
const (
	TypeMPEG    = "audio/mpeg"
	TypeWebM    = "audio/webm"
	TypeMP4     = "audio/mp4"
	TypeOgg     = "audio/ogg"
	TypeUnknown = "application/octet-stream"
)

// SniffContentType 根据负载头部识别容器类型
//
// 转码后的负载总是 MP3，快速路径的负载保留源的容器，通常是 WebM/Opus 或 M4A。
func SniffContentType(payload []byte) string {
	switch {
	case bytes.HasPrefix(payload, []byte("ID3")):
		return TypeMPEG
	case bytes.HasPrefix(payload, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return TypeWebM
	case len(payload) >= 8 && bytes.Equal(payload[4:8], []byte("ftyp")):
		return TypeMP4
	case bytes.HasPrefix(payload, []byte("OggS")):
		return TypeOgg
	case len(payload) >= 2 && payload[0] == 0xFF && payload[1]&0xE0 == 0xE0:
		// 无 ID3 标签的 MPEG 帧同步字
		return TypeMPEG
	}
	return TypeUnknown
}

// IsMPEG 负载能否交给 MP3 解码器
func IsMPEG(payload []byte) bool {
	return SniffContentType(payload) == TypeMPEG
}
