package livesession

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/util/conc"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
	"github.com/lk2023060901/danmu-live-session/pkg/util/retry"
)

// Engine 持有会话注册表、两个调度队列及其调度器、不活跃监控器，
// 是会话生命周期的唯一入口。不同 Engine 之间互不共享状态。
type Engine struct {
	log.Binder

	cfg      Config
	clock    clockwork.Clock
	store    Store
	notifier Notifier

	registry       *Registry
	openScheduler  *Scheduler
	breakScheduler *Scheduler
	monitor        *Monitor
	pipeline       *pipeline
	pool           *conc.Pool[struct{}]

	loads       singleflight.Group
	loadRetries uint
}

// Option 用于定制 Engine。
type Option func(*Engine)

// WithClock 替换引擎使用的时钟，测试中通常注入 clockwork.FakeClock。
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger 为引擎及其会话绑定 Logger。
func WithLogger(logger *log.MLogger) Option {
	return func(e *Engine) {
		e.SetLogger(logger)
	}
}

// WithLoadRetries 设置 Attach 加载会话记录时的最大尝试次数。
func WithLoadRetries(attempts uint) Option {
	return func(e *Engine) {
		e.loadRetries = attempts
	}
}

// New 创建引擎。notifier 为 nil 时不发送任何通知。
func New(cfg Config, store Store, notifier Notifier, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, merr.WrapErrParameterMissing("store")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	e := &Engine{
		cfg:         cfg,
		clock:       clockwork.NewRealClock(),
		store:       store,
		notifier:    notifier,
		registry:    NewRegistry(),
		loadRetries: 3,
	}
	e.SetLogger(log.With(log.FieldModule("livesession")))
	for _, opt := range opts {
		opt(e)
	}

	e.pool = conc.NewPool[struct{}](cfg.WorkerPoolSize, conc.WithName("livesession"), conc.WithConcealPanic(true))
	e.openScheduler = newScheduler(scheduleOpen, cfg.OpenTickInterval, NewQueue("open"), e.registry, e.pool, e.clock, e.Logger())
	e.breakScheduler = newScheduler(scheduleBreak, cfg.BreakTickInterval, NewQueue("break"), e.registry, e.pool, e.clock, e.Logger())
	e.monitor = newMonitor(cfg.MonitorTickInterval, cfg.MaxInactiveDuration, e.registry, e.pool, e.clock, e.Logger())
	e.pipeline = newPipeline(e)
	return e, nil
}

// Start 同时启动两个调度器与不活跃监控器，重复调用无副作用。
func (e *Engine) Start(ctx context.Context) {
	e.openScheduler.Start(ctx)
	e.breakScheduler.Start(ctx)
	e.monitor.Start(ctx)
	e.Logger().Info("live session engine started",
		zap.Duration("openTick", e.cfg.OpenTickInterval),
		zap.Duration("breakTick", e.cfg.BreakTickInterval),
		zap.Duration("monitorTick", e.cfg.MonitorTickInterval),
		zap.Duration("maxInactive", e.cfg.MaxInactiveDuration))
}

// Stop 停止所有后台驱动，已派发的迁移会继续执行完毕。重复调用无副作用。
func (e *Engine) Stop() {
	e.openScheduler.Stop()
	e.breakScheduler.Stop()
	e.monitor.Stop()
	e.Logger().Info("live session engine stopped")
}

// Release 停止后台驱动并释放协程池，之后引擎不可再用。
func (e *Engine) Release() {
	e.Stop()
	e.pool.Release()
}

func (e *Engine) Clock() clockwork.Clock { return e.clock }
func (e *Engine) Registry() *Registry { return e.registry }
func (e *Engine) OpenQueue() *Queue { return e.openScheduler.Queue() }
func (e *Engine) BreakQueue() *Queue { return e.breakScheduler.Queue() }
func (e *Engine) OpenScheduler() *Scheduler { return e.openScheduler }
func (e *Engine) BreakScheduler() *Scheduler { return e.breakScheduler }
func (e *Engine) InactivityMonitor() *Monitor { return e.monitor }
func (e *Engine) Session(id string) (*Session, bool) { return e.registry.Get(id) }

// Attach 加载会话记录并注册到引擎，已注册时直接返回现有会话。
// 同一 ID 的并发 Attach 只会加载一次。
func (e *Engine) Attach(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, merr.WrapErrParameterMissing("live session id")
	}
	if sess, ok := e.registry.Get(id); ok {
		return sess, nil
	}

	v, err, _ := e.loads.Do(id, func() (any, error) {
		if sess, ok := e.registry.Get(id); ok {
			return sess, nil
		}
		var rec *SessionRecord
		err := retry.Do(ctx, func() error {
			var err error
			rec, err = e.store.LoadSession(ctx, id)
			return err
		}, retry.Attempts(e.loadRetries), retry.Sleep(50*time.Millisecond), retry.RetryErr(merr.IsRetryableErr))
		if err != nil {
			return nil, err
		}
		if !rec.Status.Live() {
			return nil, merr.WrapErrLiveSessionClosed(id, "attach")
		}
		return e.register(ctx, newSession(e, rec, e.clock.Now())), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// register 将会话加入注册表并按当前状态安排首次调度：
// opened 会话在 Interval 后 break，breaked 会话在 Duration 后 open，
// ready 会话等到 open 时再安排。已开播但尚无开播时间的会话会补记开播时间。
func (e *Engine) register(ctx context.Context, sess *Session) *Session {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !e.registry.Add(sess) {
		existing, _ := e.registry.Get(sess.id)
		return existing
	}

	now := e.clock.Now()
	if sess.breakConfig != nil {
		switch sess.status {
		case StatusOpened:
			_ = e.breakScheduler.scheduleLocked(sess, now)
		case StatusBreaked:
			_ = e.openScheduler.scheduleLocked(sess, now)
		}
	}
	if sess.status != StatusReady {
		if err := e.startLocked(ctx, sess, now); err != nil {
			sess.Logger().Warn("failed to record live session start", zap.Error(err))
		}
	}
	sess.Logger().Info("live session attached", zap.Stringer("status", sess.status))
	return sess
}

// rescheduleLocked 在状态提交后维护注册表与调度队列，要求调用方持有会话锁。
func (e *Engine) rescheduleLocked(sess *Session, now time.Time) {
	switch sess.status {
	case StatusOpened:
		e.openScheduler.unscheduleLocked(sess)
		e.breakScheduler.unscheduleLocked(sess)
		if sess.breakConfig != nil {
			_ = e.breakScheduler.scheduleLocked(sess, now)
		}
	case StatusBreaked:
		e.breakScheduler.unscheduleLocked(sess)
		e.openScheduler.unscheduleLocked(sess)
		if err := e.openScheduler.scheduleLocked(sess, now); err != nil {
			sess.Logger().Warn("breaked live session has no break config, open must be triggered manually",
				zap.Error(err))
		}
	case StatusClosed:
		e.registry.Remove(sess.id)
		e.openScheduler.unscheduleLocked(sess)
		e.breakScheduler.unscheduleLocked(sess)
	}
}

func (e *Engine) lookup(id string) (*Session, error) {
	sess, ok := e.registry.Get(id)
	if !ok {
		return nil, merr.WrapErrLiveSessionNotRegistered(id)
	}
	return sess, nil
}

func (e *Engine) Open(ctx context.Context, id string) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}
	return sess.Open(ctx)
}

func (e *Engine) Break(ctx context.Context, id string) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}
	return sess.Break(ctx)
}

func (e *Engine) Close(ctx context.Context, id string) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}
	return sess.Close(ctx)
}

func (e *Engine) Touch(ctx context.Context, id string) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}
	return sess.Touch(ctx)
}

// MediaAction 为媒体服务器回调的事件类型。
type MediaAction string

const (
	MediaActionPostPublish MediaAction = "post_publish"
	MediaActionDonePublish MediaAction = "done_publish"
	MediaActionDoneRecord  MediaAction = "done_record"
	MediaActionPostPlay    MediaAction = "post_play"
	MediaActionDonePlay    MediaAction = "done_play"
)

var mediaActionAliases = map[string]MediaAction{
	"postpublish": MediaActionPostPublish,
	"donepublish": MediaActionDonePublish,
	"donerecord":  MediaActionDoneRecord,
	"postplay":    MediaActionPostPlay,
	"doneplay":    MediaActionDonePlay,
}

// ParseMediaAction 兼容 post_publish 与 postPublish 两种写法。
func ParseMediaAction(s string) (MediaAction, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if action, ok := mediaActionAliases[key]; ok {
		return action, nil
	}
	return "", merr.WrapErrParameterInvalidMsg("unknown media action %q", s)
}

// HandleMediaEvent 处理媒体服务器的推流回调。
//
// 说明：
//   - post_publish：会话可 open 时开播并刷新活跃时间，否则拒绝，媒体服务器据此断开推流；
//   - done_publish：关闭会话；
//   - done_record、post_play、done_play：忽略。
func (e *Engine) HandleMediaEvent(ctx context.Context, id string, action MediaAction) error {
	switch action {
	case MediaActionPostPublish, MediaActionDonePublish, MediaActionDoneRecord,
		MediaActionPostPlay, MediaActionDonePlay:
	default:
		return merr.WrapErrParameterInvalidMsg("unknown media action %q", action)
	}

	sess, err := e.lookup(id)
	if err != nil {
		return err
	}
	switch action {
	case MediaActionPostPublish:
		return sess.publish(ctx)
	case MediaActionDonePublish:
		return sess.Close(ctx)
	default:
		return nil
	}
}
