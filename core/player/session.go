package player

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"MusicManager/core/apperr"
	"MusicManager/core/filter"
	"MusicManager/logger"
	"MusicManager/model"
)

// Provider 会话所需的搜索后端接口
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]model.Track, error)
	Suggester
}

// CacheReconciler 使预取音频与队列保持一致
type CacheReconciler interface {
	AudioCache
	Reconcile(tracks []model.Track) (added, removed []string)
}

// Persister 加载和保存队列及自动播放标志
type Persister interface {
	LoadQueue(ctx context.Context) []model.Track
	SaveQueue(ctx context.Context, tracks []model.Track) error
	LoadAutoplay(ctx context.Context) bool
	SaveAutoplay(ctx context.Context, on bool) error
}

// Options 会话配置
type Options struct {
	Provider          Provider
	Fetcher           Fetcher
	Cache             CacheReconciler // 可选
	Persister         Persister       // 可选
	Media             *MediaRegistry
	Clock             Clock
	Rand              *rand.Rand
	SettleDelay       time.Duration
	NoticeDuration    time.Duration
	SearchLimit       int
	AutocompleteLimit int
}

// Session 应用唯一的播放会话
//
// 它把控制器、队列、编排器和模式状态机组装在一起，并在事件总线上发布每次变化。
type Session struct {
	ctrl  *Controller
	queue *Queue
	orch  *Orchestrator
	mode  *ModeMachine
	bus   *Bus
	media *MediaRegistry

	provider    Provider
	cache       CacheReconciler
	persist     Persister
	rng         *rand.Rand
	searchLimit int

	volMu  sync.Mutex
	volume Volume
}

// NewSession 创建会话并恢复持久化的队列和自动播放标志
func NewSession(ctx context.Context, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Media == nil {
		opts.Media = NewMediaRegistry()
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 25
	}
	if opts.AutocompleteLimit <= 0 {
		opts.AutocompleteLimit = 15
	}

	s := &Session{
		bus:         NewBus(opts.Clock),
		media:       opts.Media,
		provider:    opts.Provider,
		cache:       opts.Cache,
		persist:     opts.Persister,
		rng:         opts.Rand,
		searchLimit: opts.SearchLimit,
		volume:      Volume{Level: 1},
	}
	s.mode = NewModeMachine(opts.Clock, opts.NoticeDuration, s.bus)

	var cache AudioCache
	if opts.Cache != nil {
		cache = opts.Cache
	}
	s.ctrl = NewController(ControllerOptions{
		Fetcher:     opts.Fetcher,
		Cache:       cache,
		Media:       opts.Media,
		Clock:       opts.Clock,
		SettleDelay: opts.SettleDelay,
		Bus:         s.bus,
		OnInstall:   func(model.Track) { s.mode.ObserveTrack(true) },
	})

	var restored []model.Track
	autoplay := false
	if s.persist != nil {
		restored = s.persist.LoadQueue(ctx)
		autoplay = s.persist.LoadAutoplay(ctx)
	}
	s.queue = NewQueue(restored, s.queueChanged)
	s.orch = NewOrchestrator(s.queue, s.ctrl, opts.Provider, opts.AutocompleteLimit, s.bus)
	s.orch.autoplay.Store(autoplay)

	if s.cache != nil && len(restored) > 0 {
		s.cache.Reconcile(restored)
	}
	logger.Info("会话已恢复",
		logger.Int("queued", len(restored)),
		logger.Bool("autoplay", autoplay))
	return s
}

// queueChanged 每次队列修改后执行
func (s *Session) queueChanged(items []model.Track) {
	if s.cache != nil {
		s.cache.Reconcile(items)
	}
	if s.persist != nil {
		if err := s.persist.SaveQueue(context.Background(), items); err != nil {
			logger.Warn("持久化队列失败", logger.ErrorField(err))
		}
	}
	s.bus.Publish(EventQueueChanged, items)
}

// Bus 获取会话事件总线
func (s *Session) Bus() *Bus { return s.bus }

// Media 获取提供会话音源的句柄注册表
func (s *Session) Media() *MediaRegistry { return s.media }

// Controller 获取播放控制器
func (s *Session) Controller() *Controller { return s.ctrl }

// Queue 获取待播队列
func (s *Session) Queue() *Queue { return s.queue }

// Mode 获取搜索模式状态机
func (s *Session) Mode() *ModeMachine { return s.mode }

// State 渲染播放器所需的全部状态
type State struct {
	Playback Snapshot      `json:"playback"`
	Queue    []model.Track `json:"queue"`
	Dragged  int           `json:"dragged"`
	Mode     ModeState     `json:"mode"`
	Autoplay bool          `json:"autoplay"`
	Volume   Volume        `json:"volume"`
}

// State 获取整个会话的快照
func (s *Session) State() State {
	return State{
		Playback: s.ctrl.Snapshot(),
		Queue:    s.queue.Items(),
		Dragged:  s.queue.Dragged(),
		Mode:     s.mode.State(),
		Autoplay: s.orch.Autoplay(),
		Volume:   s.Volume(),
	}
}

// SelectTrack 从头播放曲目
func (s *Session) SelectTrack(ctx context.Context, track model.Track) error {
	return s.ctrl.SelectTrack(ctx, track, false)
}

// ApplyFilters 保存滤镜选择并用它重新渲染当前曲目
func (s *Session) ApplyFilters(ctx context.Context, sel filter.Selection) error {
	s.ctrl.SetFilters(sel)
	return s.ctrl.ApplyFiltersLive(ctx)
}

// OnEnded 处理当前曲目自然结束
func (s *Session) OnEnded(ctx context.Context) error { return s.orch.OnEnded(ctx) }

// Next 跳到当前曲目之后将播放的内容
func (s *Session) Next(ctx context.Context) error { return s.orch.Next(ctx) }

// Autoplay 自动播放是否开启
func (s *Session) Autoplay() bool { return s.orch.Autoplay() }

// SetAutoplay 切换自动播放并持久化
func (s *Session) SetAutoplay(ctx context.Context, on bool) {
	if s.orch.SetAutoplay(on) && s.persist != nil {
		if err := s.persist.SaveAutoplay(ctx, on); err != nil {
			logger.Warn("持久化自动播放标志失败", logger.ErrorField(err))
		}
	}
}

// Pause 暂停当前曲目
func (s *Session) Pause() error { return s.ctrl.Pause() }

// Resume 继续当前曲目
func (s *Session) Resume() error { return s.ctrl.Play() }

// ClearQueue 清空队列
func (s *Session) ClearQueue() error { return s.queue.Clear() }

// ShuffleQueue 均匀随机打乱队列
func (s *Session) ShuffleQueue() error { return s.queue.Shuffle(s.rng) }

// Search 调用提供者搜索
func (s *Session) Search(ctx context.Context, query string) ([]model.Track, error) {
	return s.provider.Search(ctx, query, s.searchLimit)
}

// Submit 搜索提交的结果
type Submit struct {
	Action  Mode          `json:"action"`
	Track   model.Track   `json:"track"`
	Results []model.Track `json:"results"`
}

// SubmitSearch 搜索 query，并按当前模式立即播放首个结果或将其加入队列
func (s *Session) SubmitSearch(ctx context.Context, query string) (Submit, error) {
	return s.submit(ctx, query, s.mode.Mode())
}

func (s *Session) submit(ctx context.Context, query string, action Mode) (Submit, error) {
	if strings.TrimSpace(query) == "" {
		return Submit{}, fmt.Errorf("empty search query: %w", apperr.ErrInvalidArgument)
	}
	results, err := s.Search(ctx, query)
	if err != nil {
		return Submit{}, err
	}
	if len(results) == 0 {
		return Submit{}, fmt.Errorf("no results for %q: %w", query, apperr.ErrNoResults)
	}

	out := Submit{Action: action, Track: results[0], Results: results}
	switch action {
	case ModePlay:
		err = s.SelectTrack(ctx, results[0])
	default:
		err = s.queue.Append(results[0])
	}
	return out, err
}

// PlayQuery 搜索并播放首个结果，不受模式影响
func (s *Session) PlayQuery(ctx context.Context, query string) (Submit, error) {
	return s.submit(ctx, query, ModePlay)
}

// EnqueueQuery 搜索并将首个结果加入队尾，不受模式影响
func (s *Session) EnqueueQuery(ctx context.Context, query string) (Submit, error) {
	return s.submit(ctx, query, ModeEnqueue)
}

// EnqueueQueryTop 搜索并将首个结果放到队首
func (s *Session) EnqueueQueryTop(ctx context.Context, query string) (Submit, error) {
	if strings.TrimSpace(query) == "" {
		return Submit{}, fmt.Errorf("empty search query: %w", apperr.ErrInvalidArgument)
	}
	results, err := s.Search(ctx, query)
	if err != nil {
		return Submit{}, err
	}
	if len(results) == 0 {
		return Submit{}, fmt.Errorf("no results for %q: %w", query, apperr.ErrNoResults)
	}
	return Submit{Action: ModeEnqueue, Track: results[0], Results: results}, s.queue.Prepend(results[0])
}

// Close 释放当前音源，之后会话不可再用
func (s *Session) Close() {
	s.ctrl.Close()
}
