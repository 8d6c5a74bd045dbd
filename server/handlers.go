package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"MusicManager/core/apperr"
	"MusicManager/core/audio"
	"MusicManager/core/filter"
	"MusicManager/core/player"
	"MusicManager/logger"
)

// ErrorResponse 失败请求的响应体
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

// audioType 选择响应的 Content-Type，无法识别的负载按 MP3 处理
func audioType(contentType string) string {
	if contentType == "" || contentType == audio.TypeUnknown {
		return audio.TypeMPEG
	}
	return contentType
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor 把错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrNoAudioAvailable):
		return http.StatusFailedDependency
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, player.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure 记录错误并以映射后的状态码响应
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("请求处理失败",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.ErrorField(err))
	} else {
		logger.Debug("请求被拒绝",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.ErrorField(err))
	}
	writeError(w, status, err.Error())
}

// decodeBody 解析 JSON 请求体
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// SearchHandler 搜索曲目 GET /api/search?query=
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	tracks, err := s.searcher.Search(r.Context(), query, s.cfg.SearchLimit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if len(tracks) == 0 {
		writeError(w, http.StatusNotFound, "No results found")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// AutocompleteHandler 获取推荐曲目 GET /api/autocomplete?videoId=
func (s *Server) AutocompleteHandler(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.URL.Query().Get("videoId"))
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "videoId is required")
		return
	}

	tracks, err := s.searcher.Autocomplete(r.Context(), videoID, s.cfg.AutocompleteLimit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if len(tracks) == 0 {
		writeError(w, http.StatusNotFound, "No results found")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

const streamChunkSize = 32 << 10

// StreamHandler 流式输出音频 GET /api/stream?videoUrl=&filters=&bassBoost=
//
// 响应体分块发送并逐块刷新。首字节之前的失败返回状态码，之后的失败直接中断响应，
// 客户端不会把截断的曲目当作完整曲目。
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	videoURL := strings.TrimSpace(q.Get("videoUrl"))
	if videoURL == "" {
		writeError(w, http.StatusBadRequest, "Video URL is required")
		return
	}

	sel := filter.ParseQuery(q.Get("filters"), q.Get("bassBoost"))
	ops := s.streamer.Compile(sel)

	ctx := r.Context()
	body, err := s.streamer.Open(ctx, videoURL, ops)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	defer body.Close()

	buf := make([]byte, streamChunkSize)
	n, err := io.ReadAtLeast(body, buf, 1)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	w.Header().Set("Content-Type", audioType(audio.SniffContentType(buf[:n])))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	total := 0
	for {
		if _, werr := w.Write(buf[:n]); werr != nil {
			logger.Debug("流客户端已断开", logger.String("url", videoURL), logger.ErrorField(werr))
			return
		}
		total += n
		if flusher != nil {
			flusher.Flush()
		}

		n, err = body.Read(buf)
		if n > 0 {
			continue
		}
		if errors.Is(err, io.EOF) {
			logger.Debug("音频流输出完成",
				logger.String("url", videoURL),
				logger.Strings("filters", filterNames(ops)),
				logger.Int("bytes", total))
			return
		}
		if err != nil {
			logger.Error("音频流中断",
				logger.String("url", videoURL),
				logger.Int("bytes", total),
				logger.ErrorField(err))
			panic(http.ErrAbortHandler)
		}
	}
}

func filterNames(ops []filter.Op) []string {
	ids := filter.IDs(ops)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
