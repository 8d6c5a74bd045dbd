package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"MusicManager/config"
	"MusicManager/core/command"
	"MusicManager/core/filter"
	"MusicManager/core/player"
	"MusicManager/logger"
	"MusicManager/model"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Searcher 搜索与推荐
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.Track, error)
	Autocomplete(ctx context.Context, trackID string, limit int) ([]model.Track, error)
}

// Streamer 为曲目链接打开带滤镜的音频流
type Streamer interface {
	Compile(sel filter.Selection) []filter.Op
	Open(ctx context.Context, trackURL string, ops []filter.Op) (io.ReadCloser, error)
}

// Interpreter 解析自然语言命令
type Interpreter interface {
	Interpret(ctx context.Context, text string) (command.Command, error)
}

// Options HTTP 层与应用其余部分的连接
type Options struct {
	Config      *config.Config
	Session     *player.Session
	Searcher    Searcher
	Streamer    Streamer
	Interpreter Interpreter // 可选

	// TapInterval /ws/tap 频谱帧的发送周期
	TapInterval time.Duration
}

// Server 播放器 API 服务
type Server struct {
	cfg         *config.Config
	session     *player.Session
	searcher    Searcher
	streamer    Streamer
	interpreter Interpreter
	tapInterval time.Duration
	upgrader    websocket.Upgrader
}

// New 创建 HTTP 服务
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = &config.Config{SearchLimit: 25, AutocompleteLimit: 15}
	}
	if opts.TapInterval <= 0 {
		opts.TapInterval = 50 * time.Millisecond
	}
	return &Server{
		cfg:         opts.Config,
		session:     opts.Session,
		searcher:    opts.Searcher,
		streamer:    opts.Streamer,
		interpreter: opts.Interpreter,
		tapInterval: opts.TapInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Router 构建路由表
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// 搜索与流
	router.HandleFunc("/api/search", s.SearchHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/autocomplete", s.AutocompleteHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/stream", s.StreamHandler).Methods(http.MethodGet)

	// 播放控制
	router.HandleFunc("/api/player", s.PlayerStateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/player/select", s.SelectHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/play", s.PlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/pause", s.PauseHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/next", s.NextHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/ended", s.EndedHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/seek", s.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/position", s.PositionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/volume", s.VolumeHandler).Methods(http.MethodPut)

	// 滤镜
	router.HandleFunc("/api/filters", s.GetFiltersHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/filters", s.PutFiltersHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/filters/catalog", s.FilterCatalogHandler).Methods(http.MethodGet)

	// 队列
	router.HandleFunc("/api/queue", s.GetQueueHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", s.AddToQueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue", s.ClearQueueHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/queue/move", s.MoveQueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/shuffle", s.ShuffleQueueHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/drag/{action}", s.DragHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/queue/{index:[0-9]+}", s.RemoveFromQueueHandler).Methods(http.MethodDelete)

	// 模式 / 自动播放 / 语音指令
	router.HandleFunc("/api/mode", s.GetModeHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/mode/toggle", s.ToggleModeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/search/submit", s.SubmitSearchHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/autoplay", s.AutoplayHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/command", s.CommandHandler).Methods(http.MethodPost)

	// 媒体句柄与 WebSocket
	router.HandleFunc("/media/{handle}", s.MediaHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/ws/events", s.EventsWebSocketHandler)
	router.HandleFunc("/ws/tap", s.TapWebSocketHandler)

	return router
}

// Run 提供服务直到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	// 设置服务器超时; streams have no write timeout
	srv := &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.Router(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务器启动", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("服务器已停止")
	return nil
}
