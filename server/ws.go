package server

import (
	"net/http"
	"time"

	"MusicManager/core/player"
	"MusicManager/core/visual"
	"MusicManager/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// readPump 读取客户端消息以处理控制帧，连接断开时关闭 done
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096) // 4KB
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket 读取错误", logger.ErrorField(err))
			}
			return
		}
	}
}

func writeWS(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

func ping(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// EventsWebSocketHandler 推送会话事件 GET /ws/events，第一条消息是完整状态快照
func (s *Server) EventsWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	events, cancel := s.session.Bus().Subscribe()
	defer cancel()

	done := make(chan struct{})
	go readPump(conn, done)

	hello := player.Event{Type: player.EventSnapshot, Time: time.Now(), Data: s.session.State()}
	if err := writeWS(conn, hello); err != nil {
		return
	}
	logger.Debug("事件 WebSocket 已连接", logger.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeWS(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := ping(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// TapFrame 当前音源的一帧频谱
type TapFrame struct {
	Handle   string    `json:"handle,omitempty"`
	Position float64   `json:"position"`
	Levels   []float64 `json:"levels"`
}

// TapWebSocketHandler 推送当前音源的频谱帧 GET /ws/tap
//
// 自动跟随换源，没有音源时发送静音帧。
func (s *Server) TapWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go readPump(conn, done)

	analyzer := visual.NewAnalyzer()
	defer analyzer.Close()

	frames := time.NewTicker(s.tapInterval)
	defer frames.Stop()
	pings := time.NewTicker(wsPingPeriod)
	defer pings.Stop()

	failedHandle := ""
	for {
		select {
		case <-frames.C:
			frame := TapFrame{}
			var tap *player.TapPoint
			if t, ok := s.session.Controller().Tap(); ok && t.Handle.ID != failedHandle {
				tap = &t
				frame.Handle = t.Handle.ID
				frame.Position = t.Position
			}
			levels, err := analyzer.Frame(tap)
			if err != nil {
				// 无法解码的负载不再重试
				failedHandle = tap.Handle.ID
				logger.Warn("频谱数据不可用",
					logger.String("handle", failedHandle),
					logger.ErrorField(err))
				levels, _ = analyzer.Frame(nil)
			}
			frame.Levels = levels
			if err := writeWS(conn, frame); err != nil {
				return
			}
		case <-pings.C:
			if err := ping(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
