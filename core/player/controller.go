package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MusicManager/core/apperr"
	"MusicManager/core/filter"
	"MusicManager/logger"
	"MusicManager/model"
)

// ErrSuperseded 更新的选曲请求已先完成安装，本次结果被丢弃
var ErrSuperseded = errors.New("superseded by a newer request")

// State 播放控制器状态
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Fetcher 按滤镜选择生成可播放的音频负载
type Fetcher interface {
	Fetch(ctx context.Context, track model.Track, sel filter.Selection) ([]byte, error)
}

// AudioCache 预取缓存的只读接口
type AudioCache interface {
	Get(trackID string) ([]byte, bool)
	Await(ctx context.Context, trackID string) ([]byte, error)
}

// Snapshot 对外可见的播放状态
type Snapshot struct {
	State    State            `json:"state"`
	Track    *model.Track     `json:"track,omitempty"`
	Handle   string           `json:"handle,omitempty"`
	Position float64          `json:"position"`
	Playing  bool             `json:"playing"`
	Loading  bool             `json:"loading"`
	Filters  filter.Selection `json:"filters"`
}

// TapPoint 供可视化读取的当前音源只读视图
type TapPoint struct {
	Handle   Handle
	Payload  []byte
	Position float64
}

// Controller 播放控制器，唯一负责安装音源和移动播放位置的组件
//
// 安装遵循后写者胜：每个请求领取一个代号，只有期间没有更新的请求开始时结果才会被安装。
type Controller struct {
	fetcher Fetcher
	cache   AudioCache
	media   *MediaRegistry
	clock   Clock
	settle  time.Duration
	bus     *Bus

	// 曲目安装完成后回调
	onInstall func(model.Track)

	mu        sync.Mutex
	gen       uint64
	loading   int
	current   *model.Track
	handle    Handle
	filters   filter.Selection
	playing   bool
	stopped   bool
	anchorPos float64
	anchorAt  time.Time
}

// ControllerOptions 播放控制器配置
type ControllerOptions struct {
	Fetcher     Fetcher
	Cache       AudioCache // 可选
	Media       *MediaRegistry
	Clock       Clock
	SettleDelay time.Duration
	Bus         *Bus
	OnInstall   func(model.Track)
}

// NewController 创建播放控制器
func NewController(opts ControllerOptions) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Media == nil {
		opts.Media = NewMediaRegistry()
	}
	if opts.Bus == nil {
		opts.Bus = NewBus(opts.Clock)
	}
	return &Controller{
		fetcher:   opts.Fetcher,
		cache:     opts.Cache,
		media:     opts.Media,
		clock:     opts.Clock,
		settle:    opts.SettleDelay,
		bus:       opts.Bus,
		onInstall: opts.OnInstall,
		filters:   filter.NewSelection(),
	}
}

// positionLocked 当前音源此刻的播放位置
func (c *Controller) positionLocked() float64 {
	if !c.handle.Valid() {
		return 0
	}
	pos := c.anchorPos
	if c.playing {
		pos += c.clock.Now().Sub(c.anchorAt).Seconds()
	}
	if c.current != nil && c.current.Duration > 0 && pos > float64(c.current.Duration) {
		pos = float64(c.current.Duration)
	}
	return pos
}

func (c *Controller) anchorLocked(pos float64, playing bool) {
	if pos < 0 {
		pos = 0
	}
	c.anchorPos = pos
	c.anchorAt = c.clock.Now()
	c.playing = playing
}

func (c *Controller) stateLocked() State {
	switch {
	case c.loading > 0:
		return StateLoading
	case !c.handle.Valid() || c.stopped:
		return StateIdle
	case c.playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    c.stateLocked(),
		Handle:   c.handle.ID,
		Position: c.positionLocked(),
		Playing:  c.playing,
		Loading:  c.loading > 0,
		Filters:  c.filters.Clone(),
	}
	if c.current != nil {
		t := *c.current
		s.Track = &t
	}
	return s
}

// Snapshot 获取当前播放状态
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Current 获取当前曲目
func (c *Controller) Current() (model.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.Track{}, false
	}
	return *c.current, true
}

// Filters 获取滤镜选择的副本
func (c *Controller) Filters() filter.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.Clone()
}

// SetFilters 替换滤镜选择，不影响当前音源
func (c *Controller) SetFilters(sel filter.Selection) {
	c.mu.Lock()
	c.filters = sel.Clone()
	snap := c.filters.Clone()
	c.mu.Unlock()
	c.bus.Publish(EventFiltersChanged, snap)
}

// Tap 获取当前音源，尚未安装任何音源时返回 false
func (c *Controller) Tap() (TapPoint, bool) {
	c.mu.Lock()
	h := c.handle
	pos := c.positionLocked()
	c.mu.Unlock()

	if !h.Valid() {
		return TapPoint{}, false
	}
	h, payload, ok := c.media.Open(h.ID)
	if !ok {
		return TapPoint{}, false
	}
	return TapPoint{Handle: h, Payload: payload, Position: pos}, true
}

// begin 开始一个请求：领取代号并置起加载标志
func (c *Controller) begin() uint64 {
	c.gen++
	c.loading++
	return c.gen
}

// finishLocked 撤下请求的加载标志
func (c *Controller) finishLocked() {
	if c.loading > 0 {
		c.loading--
	}
}

func (c *Controller) publishState() {
	c.bus.Publish(EventStateChanged, c.Snapshot())
}

// setBusy 为代表控制器执行的工作（如自动播放查询）置起或撤下加载标志
func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	if busy {
		c.loading++
	} else {
		c.finishLocked()
	}
	loading := c.loading > 0
	c.mu.Unlock()
	c.bus.Publish(EventLoading, loading)
}

// SelectTrack 加载曲目并设为当前曲目
//
// 未选择滤镜时优先使用预取缓存中的原始负载，否则按当前滤镜获取。
// preservePosition 为 true 时新音源从旧音源的位置继续。
// 失败时保持原有状态不变，错误包装 apperr.ErrNoAudioAvailable。
func (c *Controller) SelectTrack(ctx context.Context, track model.Track, preservePosition bool) error {
	return c.selectTrack(ctx, track, preservePosition, nil)
}

// prefetched 未选择滤镜且缓存已就绪时返回 trackID 的原始负载
func (c *Controller) prefetched(trackID string) []byte {
	if c.cache == nil || !c.Filters().Empty() {
		return nil
	}
	payload, _ := c.cache.Get(trackID)
	return payload
}

// selectTrack 可携带预先从缓存取得负载的 SelectTrack
func (c *Controller) selectTrack(ctx context.Context, track model.Track, preservePosition bool, claimed []byte) error {
	if !track.Valid() {
		return fmt.Errorf("select track: missing id or url: %w", apperr.ErrInvalidArgument)
	}

	c.mu.Lock()
	gen := c.begin()
	p0 := c.positionLocked()
	sel := c.filters.Clone()
	c.mu.Unlock()
	c.bus.Publish(EventLoading, true)

	payload := claimed
	var err error
	if len(payload) == 0 || !sel.Empty() {
		payload, err = c.load(ctx, track, sel)
	}
	if err != nil {
		return c.fail(gen, "select track", track, err)
	}

	target := 0.0
	if preservePosition {
		target = p0
	}
	return c.install(ctx, gen, track, payload, target, true)
}

func (c *Controller) load(ctx context.Context, track model.Track, sel filter.Selection) ([]byte, error) {
	if c.cache != nil && sel.Empty() {
		payload, err := c.cache.Await(ctx, track.ID)
		if err == nil && len(payload) > 0 {
			logger.Debug("使用预取音频", logger.String("trackId", track.ID))
			return payload, nil
		}
	}
	return c.fetcher.Fetch(ctx, track, sel)
}

// ApplyFiltersLive 按当前滤镜重新获取当前曲目并替换音源
//
// 新音源从其就绪时播放本应到达的位置继续。没有当前曲目时不做任何事。
func (c *Controller) ApplyFiltersLive(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return nil
	}
	track := *c.current
	gen := c.begin()
	t0 := c.clock.Now()
	p0 := c.positionLocked()
	wasPlaying := c.playing
	sel := c.filters.Clone()
	c.mu.Unlock()
	c.bus.Publish(EventLoading, true)

	payload, err := c.fetcher.Fetch(ctx, track, sel)
	if err != nil {
		return c.fail(gen, "apply filters", track, err)
	}

	elapsed := c.clock.Now().Sub(t0)
	target := Compensate(p0, elapsed, wasPlaying)
	logger.Debug("滤镜已应用",
		logger.String("trackId", track.ID),
		logger.Float64("from", p0),
		logger.Float64("to", target),
		logger.Duration("elapsed", elapsed))
	return c.install(ctx, gen, track, payload, target, wasPlaying)
}

func (c *Controller) fail(gen uint64, op string, track model.Track, err error) error {
	c.mu.Lock()
	c.finishLocked()
	superseded := gen != c.gen
	c.mu.Unlock()

	c.bus.Publish(EventLoading, false)
	logger.Warn("播放操作失败",
		logger.String("op", op),
		logger.String("trackId", track.ID),
		logger.String("title", track.Title),
		logger.ErrorField(err))
	if !superseded {
		c.bus.Publish(EventError, map[string]string{"op": op, "trackId": track.ID, "error": err.Error()})
	}
	c.publishState()
	return fmt.Errorf("%s %s: %w: %w", op, track.ID, apperr.ErrNoAudioAvailable, err)
}

// install gen 仍是最新请求时换入负载，稳定延迟过后跳转到 target
func (c *Controller) install(ctx context.Context, gen uint64, track model.Track, payload []byte, target float64, play bool) error {
	c.mu.Lock()
	c.finishLocked()
	if gen != c.gen {
		c.mu.Unlock()
		logger.Debug("丢弃已被取代的音源", logger.String("trackId", track.ID))
		c.bus.Publish(EventLoading, false)
		return ErrSuperseded
	}

	trackChanged := c.current == nil || c.current.ID != track.ID
	c.handle = c.media.Swap(c.handle, track.ID, payload)
	t := track
	c.current = &t
	c.stopped = false
	c.anchorLocked(target, play)
	installedAt := c.anchorAt
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.bus.Publish(EventLoading, false)
	if trackChanged {
		c.bus.Publish(EventTrackChanged, snap)
	}
	c.bus.Publish(EventStateChanged, snap)
	if c.onInstall != nil {
		c.onInstall(track)
	}

	if target > 0 {
		c.seekAfterSettle(ctx, gen, target, installedAt)
	}
	return nil
}

// seekAfterSettle 等待新音源可跳转后移动到 target，期间若有更新的请求则放弃
//
// 播放中的音源在等待期间从 target 继续前进。
func (c *Controller) seekAfterSettle(ctx context.Context, gen uint64, target float64, installedAt time.Time) {
	if c.settle > 0 {
		fired := make(chan struct{})
		t := c.clock.AfterFunc(c.settle, func() { close(fired) })
		select {
		case <-fired:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	pos := target
	if c.playing {
		pos += c.clock.Now().Sub(installedAt).Seconds()
	}
	c.anchorLocked(pos, c.playing)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.bus.Publish(EventSeek, snap)
}

// Play 继续播放当前音源
func (c *Controller) Play() error {
	return c.setPlaying(true)
}

// Pause 暂停当前音源
func (c *Controller) Pause() error {
	return c.setPlaying(false)
}

func (c *Controller) setPlaying(playing bool) error {
	c.mu.Lock()
	if !c.handle.Valid() {
		c.mu.Unlock()
		return fmt.Errorf("nothing loaded: %w", apperr.ErrNoAudioAvailable)
	}
	pos := c.positionLocked()
	if playing && c.stopped {
		// 播放结束后重新播放
		pos = 0
	}
	c.stopped = false
	c.anchorLocked(pos, playing)
	c.mu.Unlock()
	c.publishState()
	return nil
}

// Seek 将当前音源跳转到 pos 秒
func (c *Controller) Seek(pos float64) error {
	c.mu.Lock()
	if !c.handle.Valid() {
		c.mu.Unlock()
		return fmt.Errorf("nothing loaded: %w", apperr.ErrNoAudioAvailable)
	}
	if c.current != nil && c.current.Duration > 0 && pos > float64(c.current.Duration) {
		pos = float64(c.current.Duration)
	}
	c.anchorLocked(pos, c.playing)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.bus.Publish(EventSeek, snap)
	return nil
}

// ReportPosition 用渲染端观测到的位置校正位置模型，非当前句柄的上报被忽略
func (c *Controller) ReportPosition(handleID string, pos float64, playing bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.handle.Valid() || handleID != c.handle.ID {
		return false
	}
	c.anchorLocked(pos, playing)
	return true
}

// Stop 当前曲目播放结束后标记为空闲，音源保持安装以便重播
func (c *Controller) Stop() {
	c.mu.Lock()
	pos := c.positionLocked()
	c.anchorLocked(pos, false)
	c.stopped = true
	c.mu.Unlock()
	c.publishState()
}

// Close 释放当前音源
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	if c.handle.Valid() {
		c.media.Revoke(c.handle.ID)
	}
	c.handle = Handle{}
	c.playing = false
	c.mu.Unlock()
}
