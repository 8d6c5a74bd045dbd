package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"MusicManager/core/apperr"
	"MusicManager/core/command"
	"MusicManager/core/filter"
	"MusicManager/core/player"
	"MusicManager/model"

	"github.com/gorilla/mux"
)

// PlayerStateHandler 获取会话状态 GET /api/player
func (s *Server) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) writeSnapshot(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, s.session.Controller().Snapshot())
}

// SelectHandler 选择曲目播放 POST /api/player/select，请求体为曲目
func (s *Server) SelectHandler(w http.ResponseWriter, r *http.Request) {
	var track model.Track
	if !decodeBody(w, r, &track) {
		return
	}
	if err := s.session.SelectTrack(r.Context(), track); err != nil {
		writeFailure(w, r, err)
		return
	}
	s.writeSnapshot(w)
}

// PlayHandler 继续播放 POST /api/player/play
func (s *Server) PlayHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Resume(); err != nil {
		writeFailure(w, r, err)
		return
	}
	s.writeSnapshot(w)
}

// PauseHandler 暂停 POST /api/player/pause
func (s *Server) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Pause(); err != nil {
		writeFailure(w, r, err)
		return
	}
	s.writeSnapshot(w)
}

// NextHandler 下一首 POST /api/player/next
func (s *Server) NextHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Next(r.Context()); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// EndedHandler 当前曲目播放结束 POST /api/player/ended，由渲染端发送
func (s *Server) EndedHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.OnEnded(r.Context()); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// SeekRequest 跳转请求
type SeekRequest struct {
	Position float64 `json:"position"`
}

// SeekHandler 跳转 POST /api/player/seek
func (s *Server) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Position < 0 {
		writeError(w, http.StatusBadRequest, "position must not be negative")
		return
	}
	if err := s.session.Controller().Seek(req.Position); err != nil {
		writeFailure(w, r, err)
		return
	}
	s.writeSnapshot(w)
}

// PositionReport 渲染端对媒体句柄观测到的播放位置
type PositionReport struct {
	Handle   string  `json:"handle"`
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
}

// PositionHandler 上报播放位置 POST /api/player/position
func (s *Server) PositionHandler(w http.ResponseWriter, r *http.Request) {
	var req PositionReport
	if !decodeBody(w, r, &req) {
		return
	}
	accepted := s.session.Controller().ReportPosition(req.Handle, req.Position, req.Playing)
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// VolumeRequest 设置音量、按 delta 调节或切换静音
type VolumeRequest struct {
	Level      *float64 `json:"level,omitempty"`
	Delta      float64  `json:"delta,omitempty"`
	ToggleMute bool     `json:"toggleMute,omitempty"`
}

// VolumeHandler 调节音量 PUT /api/player/volume
func (s *Server) VolumeHandler(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var v player.Volume
	switch {
	case req.ToggleMute:
		v = s.session.ToggleMute()
	case req.Level != nil:
		v = s.session.SetVolume(*req.Level)
	default:
		v = s.session.AdjustVolume(req.Delta)
	}
	writeJSON(w, http.StatusOK, v)
}

// GetFiltersHandler 获取滤镜选择 GET /api/filters
func (s *Server) GetFiltersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Controller().Filters())
}

// PutFiltersHandler 替换滤镜选择并实时应用到当前曲目 PUT /api/filters
func (s *Server) PutFiltersHandler(w http.ResponseWriter, r *http.Request) {
	var sel filter.Selection
	if !decodeBody(w, r, &sel) {
		return
	}
	if err := s.session.ApplyFilters(r.Context(), sel); err != nil {
		writeFailure(w, r, err)
		return
	}
	s.writeSnapshot(w)
}

// FilterCatalogHandler 获取滤镜列表 GET /api/filters/catalog
func (s *Server) FilterCatalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, filter.Catalog())
}

// GetQueueHandler 获取队列 GET /api/queue
func (s *Server) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Queue().Items())
}

// AddToQueueRequest 添加到队列
type AddToQueueRequest struct {
	Tracks []model.Track `json:"tracks"`
	Top    bool          `json:"top,omitempty"`
}

// AddToQueueHandler 加入队列 POST /api/queue
func (s *Server) AddToQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req AddToQueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Tracks) == 0 {
		writeError(w, http.StatusBadRequest, "tracks are required")
		return
	}

	q := s.session.Queue()
	add := q.Append
	if req.Top {
		add = q.Prepend
	}
	if err := add(req.Tracks...); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.Items())
}

// ClearQueueHandler 清空队列 DELETE /api/queue
func (s *Server) ClearQueueHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearQueue(); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Queue().Items())
}

// RemoveFromQueueHandler 删除队列项 DELETE /api/queue/{index}
func (s *Server) RemoveFromQueueHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if err := s.session.Queue().Remove(index); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Queue().Items())
}

// MoveRequest 移动队列项
type MoveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// MoveQueueHandler 移动队列项 POST /api/queue/move
func (s *Server) MoveQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.session.Queue().Move(req.From, req.To); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Queue().Items())
}

// ShuffleQueueHandler 打乱队列 POST /api/queue/shuffle
func (s *Server) ShuffleQueueHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ShuffleQueue(); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Queue().Items())
}

// DragRequest 拖动开始和拖动经过时的下标
type DragRequest struct {
	Index int `json:"index"`
}

// DragHandler 拖动排序 POST /api/queue/drag/{start|over|end}
func (s *Server) DragHandler(w http.ResponseWriter, r *http.Request) {
	q := s.session.Queue()
	action := mux.Vars(r)["action"]

	var err error
	switch action {
	case "end":
		q.DragEnd()
	case "start", "over":
		var req DragRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if action == "start" {
			err = q.DragStart(req.Index)
		} else {
			err = q.DragOver(req.Index)
		}
	default:
		err = fmt.Errorf("unknown drag action %q: %w", action, apperr.ErrInvalidArgument)
	}
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": q.Items(), "dragged": q.Dragged()})
}

// GetModeHandler 获取搜索模式 GET /api/mode
func (s *Server) GetModeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Mode().State())
}

// ToggleModeHandler 切换搜索模式 POST /api/mode/toggle
func (s *Server) ToggleModeHandler(w http.ResponseWriter, r *http.Request) {
	s.session.Mode().Toggle()
	writeJSON(w, http.StatusOK, s.session.Mode().State())
}

// SubmitRequest 搜索提交，Action 覆盖当前模式："play"、"enqueue" 或 "top"
type SubmitRequest struct {
	Query  string `json:"query"`
	Action string `json:"action,omitempty"`
}

// SubmitSearchHandler 提交搜索 POST /api/search/submit
func (s *Server) SubmitSearchHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	var res player.Submit
	var err error
	switch req.Action {
	case "":
		res, err = s.session.SubmitSearch(ctx, req.Query)
	case string(player.ModePlay):
		res, err = s.session.PlayQuery(ctx, req.Query)
	case string(player.ModeEnqueue):
		res, err = s.session.EnqueueQuery(ctx, req.Query)
	case "top":
		res, err = s.session.EnqueueQueryTop(ctx, req.Query)
	default:
		err = fmt.Errorf("unknown action %q: %w", req.Action, apperr.ErrInvalidArgument)
	}
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AutoplayRequest 自动播放开关
type AutoplayRequest struct {
	Enabled bool `json:"enabled"`
}

// AutoplayHandler 开关自动播放 PUT /api/autoplay
func (s *Server) AutoplayHandler(w http.ResponseWriter, r *http.Request) {
	var req AutoplayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.session.SetAutoplay(r.Context(), req.Enabled)
	writeJSON(w, http.StatusOK, AutoplayRequest{Enabled: s.session.Autoplay()})
}

// CommandRequest 语音/文本指令
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandHandler 解析并执行自然语言命令 POST /api/command
func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	if s.interpreter == nil {
		writeError(w, http.StatusServiceUnavailable, "command interpreter is not configured")
		return
	}
	var req CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}

	cmd, err := s.interpreter.Interpret(r.Context(), req.Command)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	out, err := command.Dispatch(r.Context(), s.session, cmd)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// MediaHandler 输出有效媒体句柄背后的负载 GET /media/{handle}，已撤销的句柄返回 404
func (s *Server) MediaHandler(w http.ResponseWriter, r *http.Request) {
	h, payload, ok := s.session.Media().Open(mux.Vars(r)["handle"])
	if !ok {
		writeError(w, http.StatusNotFound, "media handle not found")
		return
	}
	w.Header().Set("Content-Type", audioType(h.ContentType))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, h.TrackID, h.CreatedAt, bytes.NewReader(payload))
}
